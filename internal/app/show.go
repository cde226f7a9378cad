package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"price-watch/internal/analytics"
	"price-watch/internal/query"
	"price-watch/internal/service"
	"price-watch/internal/storage"
)

// Analyze prints the analytics report for a query.
func (a *App) Analyze(ctx context.Context, opts AnalyzeOptions) error {
	q, err := query.Parse(opts.Query)
	if err != nil {
		return err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	history, err := store.History(ctx, q)
	if err != nil {
		return err
	}

	report, err := a.newAnalyzer().Analyze(history, time.Now().UTC())
	var notEnough *analytics.NotEnoughDataError
	if errors.As(err, &notEnough) {
		fmt.Fprintln(os.Stdout, notEnough.Reason())
		return nil
	}
	if err != nil {
		return err
	}

	if opts.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return writeReport(os.Stdout, q, report)
}

func writeReport(out io.Writer, q query.Query, report analytics.Report) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintf(writer, "Query\t%s\n", q)
	fmt.Fprintf(writer, "Range\t%s\n", report.Summary.PriceRange)
	fmt.Fprintf(writer, "Average\t%s\n", report.Summary.AveragePrice)
	fmt.Fprintf(writer, "Cheapest store\t%s\n", report.Summary.CheapestStore)
	fmt.Fprintf(writer, "Volatility\t%.2f (%s)\n", report.Volatility.Score, report.Volatility.Stability)
	fmt.Fprintf(writer, "Trend\t%s\n", report.BestTimeToBuy.Message)
	fmt.Fprintln(writer)

	fmt.Fprintln(writer, "Store\tLatest\tTimes cheapest")
	stores := make([]string, 0, len(report.StorePrices))
	for store := range report.StorePrices {
		stores = append(stores, store)
	}
	slices.Sort(stores)
	for _, store := range stores {
		fmt.Fprintf(writer, "%s\t%s\t%d\n", store, report.StorePrices[store], report.StoreConsistency[store])
	}

	return writer.Flush()
}

func writeAlerts(out io.Writer, alerts []storage.Alert) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tQuery\tTarget\tEmail\tMethod\tActive\tCreated (UTC)")
	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\t%s\t%s\t%t\t%s\n",
			alert.ID,
			sanitizeInline(alert.Query.String()),
			alert.TargetPrice,
			alert.Email,
			alert.NotifyMethod,
			alert.IsActive,
			alert.CreatedAt.UTC().Format(time.RFC3339),
		)
	}
	return writer.Flush()
}

func writeCycleReport(out io.Writer, report service.CycleReport) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Cycle %s: evaluated=%d fired=%d skipped=%d failed=%d (%s)\n",
		report.ID, report.Evaluated, report.Fired, report.Skipped, report.Failed,
		report.Finished.Sub(report.Started).Round(time.Millisecond))
	fmt.Fprintln(writer, "Alert\tQuery\tStatus\tBest\tError")
	for _, o := range report.Outcomes {
		best := "-"
		if o.Price.Valid {
			best = o.Price.Decimal.String()
		}
		errMsg := ""
		if o.Err != nil {
			errMsg = sanitizeInline(o.Err.Error())
		}
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\n", o.AlertID, o.Query, o.Status, best, errMsg)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
