package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"price-watch/internal/app"
)

var (
	exportOpts   app.ExportOptions
	exportWindow struct{ from, to string }
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a query's price history as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := exportOpts
		var err error
		if opts.From, err = parseTimeFlag("from", exportWindow.from); err != nil {
			return err
		}
		if opts.To, err = parseTimeFlag("to", exportWindow.to); err != nil {
			return err
		}
		return getApp().Export(cmd.Context(), opts)
	},
}

// parseTimeFlag accepts RFC3339 timestamps or plain YYYY-MM-DD dates (UTC).
func parseTimeFlag(name, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid --%s value %q: want RFC3339 or YYYY-MM-DD", name, raw)
}

func init() {
	f := exportCmd.Flags()
	f.StringVarP(&exportOpts.Query, "query", "q", "", "Product query")
	f.StringVar(&exportWindow.from, "from", "", "Start of window, inclusive (RFC3339 or YYYY-MM-DD)")
	f.StringVar(&exportWindow.to, "to", "", "End of window, exclusive (RFC3339 or YYYY-MM-DD)")
	f.StringVar(&exportOpts.PNGPath, "png", "", "Path to write PNG chart")
	f.StringVar(&exportOpts.CSVPath, "csv", "", "Path to write CSV data")
	f.IntVar(&exportOpts.MaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
	_ = exportCmd.MarkFlagRequired("query")
}
