package app

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"os"

	"github.com/shopspring/decimal"

	"price-watch/internal/query"
	"price-watch/internal/storage"
)

// AddAlertOptions describe a new alert created from the CLI.
type AddAlertOptions struct {
	Email  string
	Query  string
	Target string
	Method string
}

// ListAlerts prints every alert.
func (a *App) ListAlerts(ctx context.Context) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	alerts, err := store.ListAlerts(ctx)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}
	return writeAlerts(os.Stdout, alerts)
}

// AddAlert validates and stores a new active alert.
func (a *App) AddAlert(ctx context.Context, opts AddAlertOptions) error {
	input, err := parseNewAlert(opts)
	if err != nil {
		return err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	alert, err := store.CreateAlert(ctx, input)
	if err != nil {
		return err
	}
	a.Logger.Info().Int64("alert_id", alert.ID).Str("query", alert.Query.String()).Msg("alert created")
	return writeAlerts(os.Stdout, []storage.Alert{alert})
}

// ToggleAlert flips an alert's active flag.
func (a *App) ToggleAlert(ctx context.Context, id int64) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	active, err := store.ToggleAlert(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("alert %d not found", id)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "alert %d active=%t\n", id, active)
	return nil
}

// DeleteAlert removes an alert.
func (a *App) DeleteAlert(ctx context.Context, id int64) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	deleted, err := store.DeleteAlert(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("alert %d not found", id)
	}
	fmt.Fprintf(os.Stdout, "alert %d deleted\n", id)
	return nil
}

func parseNewAlert(opts AddAlertOptions) (storage.NewAlert, error) {
	q, err := query.Parse(opts.Query)
	if err != nil {
		return storage.NewAlert{}, err
	}
	addr, err := mail.ParseAddress(opts.Email)
	if err != nil {
		return storage.NewAlert{}, fmt.Errorf("invalid --email %q: %w", opts.Email, err)
	}
	target, err := decimal.NewFromString(opts.Target)
	if err != nil || !target.IsPositive() {
		return storage.NewAlert{}, fmt.Errorf("--target must be a positive number, got %q", opts.Target)
	}
	method := opts.Method
	if method == "" {
		method = storage.NotifyEmail
	}
	if !storage.ValidNotifyMethod(method) {
		return storage.NewAlert{}, fmt.Errorf("--method must be %q or %q", storage.NotifyEmail, storage.NotifyTelegram)
	}
	return storage.NewAlert{Email: addr.Address, Query: q, TargetPrice: target, NotifyMethod: method}, nil
}
