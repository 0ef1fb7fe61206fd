// Package repotest connects repository integration tests to a migrated postgres.
//
// Tests use DB_HOST (plus DB_PORT, DB_USER_NAME, DB_PASSWORD, DB_NAME) when it is set.
// Otherwise, with FERN_TESTCONTAINERS=1, one disposable postgres container is started
// for the test binary. Without either the tests are skipped, as they are under -short.
package repotest

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/database"
)

func Logger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

var (
	containerOnce sync.Once
	containerCfg  database.ConnectionConfig
	containerErr  error
)

// Open returns a migrated database scoped to t.
func Open(t *testing.T) database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	cfg, ok := envConfig()
	if !ok {
		if os.Getenv("FERN_TESTCONTAINERS") != "1" {
			t.Skip("DB_HOST not set and FERN_TESTCONTAINERS != 1")
		}
		containerOnce.Do(func() { containerCfg, containerErr = startPostgres() })
		require.NoError(t, containerErr, "start postgres container")
		cfg = containerCfg
	}

	logger := Logger()
	db, err := database.Connect(context.Background(), cfg, logger)
	require.NoError(t, err, "connect to test database")
	t.Cleanup(func() { _ = db.Close() })

	migrator := database.NewMigrator(logger, database.MigrationConfig{Folder: migrationFolder()})
	require.NoError(t, migrator.Up(db.SQL()))
	return db
}

func envConfig() (database.ConnectionConfig, bool) {
	host := os.Getenv("DB_HOST")
	if host == "" {
		return database.ConnectionConfig{}, false
	}
	port, _ := strconv.Atoi(getenv("DB_PORT", "5432"))
	return database.ConnectionConfig{
		Host:     host,
		Port:     port,
		User:     getenv("DB_USER_NAME", "user"),
		Password: getenv("DB_PASSWORD", "password"),
		Name:     getenv("DB_NAME", "fern"),
	}, true
}

// startPostgres runs postgres for the lifetime of the test binary; the testcontainers
// reaper removes it when the process exits.
func startPostgres() (database.ConnectionConfig, error) {
	ctx := context.Background()
	cfg := database.ConnectionConfig{User: "fern", Password: "fern", Name: "fern"}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     cfg.User,
				"POSTGRES_PASSWORD": cfg.Password,
				"POSTGRES_DB":       cfg.Name,
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return cfg, err
	}

	if cfg.Host, err = container.Host(ctx); err != nil {
		return cfg, err
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return cfg, err
	}
	cfg.Port, err = strconv.Atoi(port.Port())
	return cfg, err
}

func migrationFolder() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "db", "pg")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
