// Command server runs the event check-in portal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkin",
		Short: "Event registration and gate check-in portal",
		Long: `checkin issues PREFIX-YEAR-NNNN registration codes to attendees and
admits each code exactly once at the gate.

Configuration is read from CHECKIN_* environment variables.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(serveCmd(), migrateCmd(), seedOperatorCmd())
	return cmd
}
