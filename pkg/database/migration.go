package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	pkgerrors "github.com/pkg/errors"
)

type MigrationConfig struct {
	// Folder holds NNNNNN_name.up.sql / .down.sql pairs. Relative paths resolve against the working directory.
	Folder string
	// Version pins the schema to a version; 0 means latest.
	Version uint
	// Force marks the schema clean at this version before migrating; 0 disables it.
	Force int
	// AutoRollback marks a dirty schema clean at the previous version after a failed step.
	AutoRollback bool
}

// Migrator applies the migration folder to a postgres pool with golang-migrate.
type Migrator struct {
	cfg    MigrationConfig
	logger ectologger.Logger
}

func NewMigrator(logger ectologger.Logger, cfg MigrationConfig) *Migrator {
	return &Migrator{cfg: cfg, logger: logger}
}

type migrateLog struct {
	ectologger.Logger
}

func (l migrateLog) Verbose() bool { return false }

func (l migrateLog) Printf(format string, v ...any) {
	l.Debugf(strings.TrimSpace(format), v...)
}

func (m *Migrator) folder() (string, error) {
	folder, err := filepath.Abs(m.cfg.Folder)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(folder); err != nil || !info.IsDir() {
		return "", fmt.Errorf("migration folder %s not found", folder)
	}
	return folder, nil
}

// Up brings db to the configured version.
func (m *Migrator) Up(db *sql.DB) error {
	folder, err := m.folder()
	if err != nil {
		return err
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return pkgerrors.Wrap(err, "postgres migration driver")
	}
	mg, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(folder), "postgres", driver)
	if err != nil {
		return pkgerrors.Wrap(err, "open migrations")
	}
	mg.Log = migrateLog{m.logger}

	if m.cfg.Force != 0 {
		if err := mg.Force(m.cfg.Force); err != nil {
			return pkgerrors.Wrapf(err, "force version %d", m.cfg.Force)
		}
	}

	before, _, err := mg.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return pkgerrors.Wrap(err, "read schema version")
	}

	began := time.Now()
	if m.cfg.Version != 0 {
		err = mg.Migrate(m.cfg.Version)
	} else {
		err = mg.Up()
	}
	log := m.logger.WithFields(map[string]any{"from_version": before, "elapsed": time.Since(began)})

	switch {
	case err == nil:
		after, _, _ := mg.Version()
		log.WithField("to_version", after).Info("schema migrated")
		return nil
	case errors.Is(err, migrate.ErrNoChange):
		log.Info("schema up to date")
		return nil
	case strings.Contains(err.Error(), "no migration found for version"):
		// The schema is newer than this binary's folder, typically after a rollback deploy.
		latest, latestErr := latestVersion(folder)
		if latestErr != nil {
			return latestErr
		}
		log.Warnf("schema version %d is unknown to this build, pinning to %d", before, latest)
		return pkgerrors.Wrapf(mg.Force(latest), "force version %d", latest)
	}

	log.WithError(err).Error("schema migration failed")
	if current, dirty, verr := mg.Version(); verr == nil && dirty && m.cfg.AutoRollback {
		target := int(before)
		if before == 0 && current > 0 {
			target = int(current) - 1
		}
		log.Warnf("schema dirty at %d, marking clean at %d", current, target)
		if ferr := mg.Force(target); ferr != nil {
			return pkgerrors.Wrapf(ferr, "force version %d after failed migration", target)
		}
	}
	return pkgerrors.Wrap(err, "apply migrations")
}

var upFile = regexp.MustCompile(`^(\d+)_.+\.up\.sql$`)

func latestVersion(folder string) (int, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return 0, err
	}
	latest := -1
	for _, e := range entries {
		match := upFile.FindStringSubmatch(e.Name())
		if e.IsDir() || match == nil {
			continue
		}
		v, err := strconv.Atoi(match[1])
		if err != nil {
			return 0, err
		}
		latest = max(latest, v)
	}
	if latest < 0 {
		return 0, fmt.Errorf("no up migrations in %s", folder)
	}
	return latest, nil
}
