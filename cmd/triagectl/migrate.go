package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"symptom-triage/internal/platform/config"
	"symptom-triage/internal/platform/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			switch cfg.Store {
			case database.DriverPostgres, database.DriverSQLite:
			default:
				return fmt.Errorf("store %q has no migrations", cfg.Store)
			}

			db, err := database.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			if err := database.Migrate(cmd.Context(), cfg.Database, db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied successfully!")
			return nil
		},
	}
}
