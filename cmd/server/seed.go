package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"checkin/internal/platform/config"
	"checkin/internal/platform/logger"
)

func seedOperatorCmd() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "seed-operator",
		Short: "Create an operator account or reset its password",
		Long: `Creates the operator, or replaces the password of an existing one.
The password is read from CHECKIN_OPERATOR_PASSWORD so it stays out of shell history.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if cfg.Database.Driver == config.DriverMemory {
				return fmt.Errorf("seed-operator needs a persistent store; set CHECKIN_STORE")
			}
			password := os.Getenv("CHECKIN_OPERATOR_PASSWORD")
			if password == "" {
				return fmt.Errorf("CHECKIN_OPERATOR_PASSWORD is required")
			}

			log := logger.New(cfg.LogLevel)
			app, err := build(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()

			op, err := app.Operators.SeedOperator(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			log.Info("operator ready", "username", op.Username, "operator_id", op.ID.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "admin", "Operator username")
	return cmd
}
