package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"checkin/internal/platform/config"
	"checkin/internal/platform/logger"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for the configured store and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			log := logger.New(cfg.LogLevel)
			if cfg.Database.Driver == config.DriverMemory {
				log.Info("memory store needs no migrations")
				return nil
			}
			db, err := openDatabase(cmd.Context(), cfg.Database, log)
			if err != nil {
				return err
			}
			defer db.Close()
			log.Info("migrations applied", "store", cfg.Database.Driver)
			return nil
		},
	}
}
