package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"price-watch/internal/config"
	"price-watch/internal/query"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS price_history (
        id          BIGSERIAL PRIMARY KEY,
        query       TEXT        NOT NULL,
        source      TEXT        NOT NULL,
        price       NUMERIC     NOT NULL,
        observed_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE INDEX IF NOT EXISTS price_history_query_observed_idx
        ON price_history (query, observed_at);`,
	`CREATE TABLE IF NOT EXISTS alerts (
        id            BIGSERIAL PRIMARY KEY,
        email         TEXT        NOT NULL,
        query         TEXT        NOT NULL,
        target_price  NUMERIC     NOT NULL,
        notify_method TEXT        NOT NULL DEFAULT 'email',
        is_active     BOOLEAN     NOT NULL DEFAULT TRUE,
        created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE INDEX IF NOT EXISTS alerts_query_idx ON alerts (query);`,
}

const (
	pgInsertPricePointSQL = `INSERT INTO price_history (query, source, price, observed_at)
    VALUES ($1, $2, $3, $4);`

	pgHistorySQL = `SELECT source, price::text, observed_at
    FROM price_history
    WHERE query = $1
    ORDER BY observed_at, id;`

	pgAlertColumns = `id, email, query, target_price::text, notify_method, is_active, created_at`

	pgListAlertsSQL = `SELECT ` + pgAlertColumns + ` FROM alerts ORDER BY id;`

	pgGetAlertSQL = `SELECT ` + pgAlertColumns + ` FROM alerts WHERE id = $1;`

	pgCreateAlertSQL = `INSERT INTO alerts (email, query, target_price, notify_method)
    VALUES ($1, $2, $3, $4)
    RETURNING ` + pgAlertColumns + `;`

	pgDeactivateAlertSQL = `UPDATE alerts SET is_active = FALSE WHERE id = $1;`

	pgToggleAlertSQL = `UPDATE alerts SET is_active = NOT is_active WHERE id = $1 RETURNING is_active;`

	pgDeleteAlertSQL = `DELETE FROM alerts WHERE id = $1;`

	pgTryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`

	pgAdvisoryUnlockSQL = `SELECT pg_advisory_unlock($1);`
)

// PGStore implements Store on PostgreSQL through a pgx pool.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return pool, nil
}

// OpenPostgres dials the pool described by cfg.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig) (*PGStore, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewPGStore(pool), nil
}

// NewPGStore wires a pgx pool into a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PGStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *PGStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts a session-level advisory lock on a dedicated
// connection and returns its release func.
func (s *PGStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, pgTryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, pgAdvisoryUnlockSQL, key); err != nil {
			// closing the connection drops the session lock
			_ = conn.Conn().Close(ctxUnlock)
		}
		conn.Release()
	}
	return unlock, true, nil
}

// Migrate creates tables and indexes when missing.
func (s *PGStore) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply postgres schema: %w", err)
		}
	}
	return nil
}

// InsertPricePoints appends observations for q in a single batch.
func (s *PGStore) InsertPricePoints(ctx context.Context, q query.Query, points []PricePoint) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(pgInsertPricePointSQL, q.String(), p.Store, p.Price.String(), p.Timestamp.UTC())
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for range points {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("insert price point: %w", execErr)
		}
	}
	return nil
}

// History returns observations for q ordered by timestamp, then insertion.
func (s *PGStore) History(ctx context.Context, q query.Query) ([]PricePoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, pgHistorySQL, q.String())
	if queryErr != nil {
		return nil, fmt.Errorf("query price history: %w", queryErr)
	}
	defer rows.Close()

	points := make([]PricePoint, 0)
	for rows.Next() {
		var (
			point    PricePoint
			priceStr string
		)
		if err := rows.Scan(&point.Store, &priceStr, &point.Timestamp); err != nil {
			return nil, err
		}
		if point.Price, err = decimal.NewFromString(priceStr); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		points = append(points, point)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return points, nil
}

// ListAlerts returns every alert, active or not.
func (s *PGStore) ListAlerts(ctx context.Context) ([]Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, pgListAlertsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]Alert, 0)
	for rows.Next() {
		alert, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, alert)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// GetAlert loads a single alert.
func (s *PGStore) GetAlert(ctx context.Context, id int64) (Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return Alert{}, err
	}
	alert, scanErr := scanAlert(pool.QueryRow(ctx, pgGetAlertSQL, id))
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return Alert{}, ErrNotFound
	}
	if scanErr != nil {
		return Alert{}, fmt.Errorf("get alert: %w", scanErr)
	}
	return alert, nil
}

// CreateAlert inserts an active alert.
func (s *PGStore) CreateAlert(ctx context.Context, alert NewAlert) (Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return Alert{}, err
	}

	row := pool.QueryRow(ctx, pgCreateAlertSQL,
		alert.Email,
		alert.Query.String(),
		alert.TargetPrice.String(),
		alert.NotifyMethod,
	)
	created, scanErr := scanAlert(row)
	if scanErr != nil {
		return Alert{}, fmt.Errorf("create alert: %w", scanErr)
	}
	return created, nil
}

// DeactivateAlert clears the active flag. Deactivating an inactive alert is a no-op.
func (s *PGStore) DeactivateAlert(ctx context.Context, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, pgDeactivateAlertSQL, id)
	if execErr != nil {
		return fmt.Errorf("deactivate alert: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleAlert flips the active flag and returns the new value.
func (s *PGStore) ToggleAlert(ctx context.Context, id int64) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	var active bool
	scanErr := pool.QueryRow(ctx, pgToggleAlertSQL, id).Scan(&active)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if scanErr != nil {
		return false, fmt.Errorf("toggle alert: %w", scanErr)
	}
	return active, nil
}

// DeleteAlert removes an alert, reporting whether a row existed.
func (s *PGStore) DeleteAlert(ctx context.Context, id int64) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	tag, execErr := pool.Exec(ctx, pgDeleteAlertSQL, id)
	if execErr != nil {
		return false, fmt.Errorf("delete alert: %w", execErr)
	}
	return tag.RowsAffected() > 0, nil
}

func scanAlert(row pgx.Row) (Alert, error) {
	var (
		alert     Alert
		queryStr  string
		targetStr string
		createdAt time.Time
	)
	if err := row.Scan(
		&alert.ID,
		&alert.Email,
		&queryStr,
		&targetStr,
		&alert.NotifyMethod,
		&alert.IsActive,
		&createdAt,
	); err != nil {
		return Alert{}, err
	}

	target, err := decimal.NewFromString(targetStr)
	if err != nil {
		return Alert{}, fmt.Errorf("parse target price: %w", err)
	}
	alert.Query = query.Query(queryStr)
	alert.TargetPrice = target
	alert.CreatedAt = createdAt
	return alert, nil
}

var _ Store = (*PGStore)(nil)
