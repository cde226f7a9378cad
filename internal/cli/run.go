package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve the HTTP API and run the alert evaluation loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var checkCmd = &cobra.Command{
	Use:   "check-alerts",
	Short: "Evaluate every active alert once and print the outcome",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().CheckAlerts(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Migrate(cmd.Context())
	},
}
