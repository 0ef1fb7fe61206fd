package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			return a.migrate()
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func (a *app) migrate() error {
	return database.NewMigrator(a.logger, database.MigrationConfig{
		Folder:       a.cfg.Database.MigrationFolderPath,
		Version:      uint(a.cfg.Database.MigrationVersion),
		Force:        a.cfg.Database.MigrationForce,
		AutoRollback: a.cfg.Database.MigrationAutoRollback,
	}).Up(a.db.SQL())
}
