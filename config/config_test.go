package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FERN_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "fern", cfg.AppName)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Minute, cfg.Undo.Window)
	assert.Equal(t, 2*time.Second, cfg.Undo.ModificationTolerance)
	assert.Equal(t, 100, cfg.Import.BatchSize)
	assert.Equal(t, 0.6, cfg.Matching.FuzzyThreshold)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FERN_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("DB_HOST", "postgres")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("UNDO_WINDOW", "10m")
	t.Setenv("IMPORT_PARALLELISM", "4")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Host)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 10*time.Minute, cfg.Undo.Window)
	assert.Equal(t, 4, cfg.Import.Parallelism)
}

func TestLoad_DotEnvAndFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("FERN_TEST_UNUSED=1\nREDIS_PORT=6380\n"), 0o600))
	cfgFile := filepath.Join(dir, "fern.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("app_name: fern-test\nundo:\n  page_size: 50\n"), 0o600))

	t.Setenv("FERN_ENV_FILE", envFile)
	t.Setenv("FERN_CONFIG", cfgFile)
	t.Cleanup(func() {
		os.Unsetenv("REDIS_PORT")
		os.Unsetenv("FERN_TEST_UNUSED")
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.Equal(t, "fern-test", cfg.AppName)
	assert.Equal(t, 50, cfg.Undo.PageSize)
}
