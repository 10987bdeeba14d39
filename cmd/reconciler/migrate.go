package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"filevault-backend/internal/shared/config"
	"filevault-backend/internal/shared/storage/db"
	"filevault-backend/internal/shared/telemetry"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx := cmd.Context()

			sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer sqlDB.Close()

			if err := db.RunMigrations(ctx, sqlDB); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			telemetry.Info("migrate.completed", nil)
			return nil
		},
	}
}
