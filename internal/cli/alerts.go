package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"price-watch/internal/app"
	"price-watch/internal/storage"
)

var addAlertOpts app.AddAlertOptions

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage price alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListAlerts(cmd.Context())
	},
}

var alertsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an active alert",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().AddAlert(cmd.Context(), addAlertOpts)
	},
}

var alertsToggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Flip an alert between active and inactive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseAlertID(args[0])
		if err != nil {
			return err
		}
		return getApp().ToggleAlert(cmd.Context(), id)
	},
}

var alertsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseAlertID(args[0])
		if err != nil {
			return err
		}
		return getApp().DeleteAlert(cmd.Context(), id)
	},
}

func parseAlertID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid alert id %q", raw)
	}
	return id, nil
}

func init() {
	alertsAddCmd.Flags().StringVar(&addAlertOpts.Email, "email", "", "Address to notify")
	alertsAddCmd.Flags().StringVarP(&addAlertOpts.Query, "query", "q", "", "Product query")
	alertsAddCmd.Flags().StringVar(&addAlertOpts.Target, "target", "", "Target price")
	alertsAddCmd.Flags().StringVar(&addAlertOpts.Method, "method", storage.NotifyEmail, "Notification method (email|telegram)")
	_ = alertsAddCmd.MarkFlagRequired("email")
	_ = alertsAddCmd.MarkFlagRequired("query")
	_ = alertsAddCmd.MarkFlagRequired("target")

	alertsCmd.AddCommand(alertsListCmd, alertsAddCmd, alertsToggleCmd, alertsDeleteCmd)
}
