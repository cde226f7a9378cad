package storage

import (
	"context"
	"errors"
	"fmt"

	"price-watch/internal/config"
	"price-watch/internal/query"
)

var (
	// ErrNotConfigured indicates the storage backend was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
	// ErrNotFound is returned when an alert id does not exist.
	ErrNotFound = errors.New("storage: alert not found")
)

// PriceHistoryStore records and returns price observations per query.
type PriceHistoryStore interface {
	InsertPricePoints(ctx context.Context, q query.Query, points []PricePoint) error
	History(ctx context.Context, q query.Query) ([]PricePoint, error)
}

// AlertStore persists alerts. Every mutation touches a single record.
type AlertStore interface {
	ListAlerts(ctx context.Context) ([]Alert, error)
	GetAlert(ctx context.Context, id int64) (Alert, error)
	CreateAlert(ctx context.Context, alert NewAlert) (Alert, error)
	DeactivateAlert(ctx context.Context, id int64) error
	ToggleAlert(ctx context.Context, id int64) (bool, error)
	DeleteAlert(ctx context.Context, id int64) (bool, error)
}

// AdvisoryLocker guards work that only one process may run at a time.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the full persistence surface used by the application.
type Store interface {
	PriceHistoryStore
	AlertStore
	Migrate(ctx context.Context) error
	Close()
}

// Open connects to the configured backend and optionally applies the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case config.DriverPostgres:
		store, err = OpenPostgres(ctx, cfg)
	case config.DriverSQLite:
		store, err = OpenSQLite(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}
	return store, nil
}
