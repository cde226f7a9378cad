package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"price-watch/internal/app"
	"price-watch/internal/config"
	"price-watch/internal/logging"
)

// overrides are flags that win over file and environment configuration.
type overrides struct {
	configPath string
	logLevel   string
	logFormat  string
	dbDriver   string
	dbDSN      string
}

var (
	flags     overrides
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:           "pricewatch",
	Short:         "Track product prices across stores and alert on target prices",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd == versionCmd || appHandle != nil {
			return nil
		}

		cfg, err := loadConfig(flags)
		if err != nil {
			return err
		}
		appHandle = app.NewApp(cfg, logging.NewLogger(cfg.Logging))
		return nil
	},
}

func loadConfig(o overrides) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	changed := false
	apply := func(dst *string, v string) {
		if v != "" {
			*dst = v
			changed = true
		}
	}
	apply(&cfg.Logging.Level, o.logLevel)
	apply(&cfg.Logging.Format, o.logFormat)
	apply(&cfg.Database.Driver, o.dbDriver)
	apply(&cfg.Database.DSN, o.dbDSN)

	if changed {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Path to configuration file")
	pf.StringVar(&flags.logLevel, "log-level", "", "Override log level defined in config")
	pf.StringVar(&flags.logFormat, "log-format", "", "Override log format (json|console)")
	pf.StringVar(&flags.dbDriver, "db-driver", "", "Override database driver (postgres|sqlite)")
	pf.StringVar(&flags.dbDSN, "db-dsn", "", "Override database DSN")

	rootCmd.AddCommand(
		runCmd,
		checkCmd,
		analyzeCmd,
		exportCmd,
		importCmd,
		alertsCmd,
		simulateCmd,
		migrateCmd,
		versionCmd,
	)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
