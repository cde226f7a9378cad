package app

import (
	"context"
	"os"
)

// CheckAlerts runs one evaluation cycle synchronously and prints its outcome.
func (a *App) CheckAlerts(ctx context.Context) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := a.newWatcher(store, a.newQuoteSource(), a.newNotifier()).RunCycle(ctx)
	if err != nil {
		return err
	}
	return writeCycleReport(os.Stdout, report)
}
