package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"infosync/internal/platform/config"
	"infosync/internal/platform/database"
	"infosync/internal/platform/logger"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Creates or upgrades the record, audit and outbox tables for the configured SQL database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, map[string]string{"driver": "database.driver", "dsn": "database.dsn"})
			if err != nil {
				return err
			}
			return runMigrate(cmd, cfg)
		},
	}
	cmd.Flags().String("driver", "", "Database driver (postgres or sqlite)")
	cmd.Flags().String("dsn", "", "Database DSN")
	return cmd
}

func runMigrate(cmd *cobra.Command, cfg *config.Config) error {
	ctx := cmd.Context()
	log := logger.New(cfg.Log)
	if cfg.Database.Driver == config.DriverMemory {
		return fmt.Errorf("database.driver is %q: nothing to migrate", cfg.Database.Driver)
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	log.InfoContext(ctx, "migrations applied", "driver", cfg.Database.Driver)
	return nil
}
