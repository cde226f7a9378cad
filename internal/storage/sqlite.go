package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"price-watch/internal/query"
)

// Timestamps are stored as unix nanoseconds and prices as decimal text so
// that ordering and precision survive the round trip.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS price_history (
        id          INTEGER PRIMARY KEY AUTOINCREMENT,
        query       TEXT    NOT NULL,
        source      TEXT    NOT NULL,
        price       TEXT    NOT NULL,
        observed_at INTEGER NOT NULL
    );`,
	`CREATE INDEX IF NOT EXISTS price_history_query_observed_idx
        ON price_history (query, observed_at);`,
	`CREATE TABLE IF NOT EXISTS alerts (
        id            INTEGER PRIMARY KEY AUTOINCREMENT,
        email         TEXT    NOT NULL,
        query         TEXT    NOT NULL,
        target_price  TEXT    NOT NULL,
        notify_method TEXT    NOT NULL DEFAULT 'email',
        is_active     INTEGER NOT NULL DEFAULT 1,
        created_at    INTEGER NOT NULL
    );`,
	`CREATE INDEX IF NOT EXISTS alerts_query_idx ON alerts (query);`,
}

const (
	liteInsertPricePointSQL = `INSERT INTO price_history (query, source, price, observed_at) VALUES (?, ?, ?, ?);`

	liteHistorySQL = `SELECT source, price, observed_at
    FROM price_history
    WHERE query = ?
    ORDER BY observed_at, id;`

	liteAlertColumns = `id, email, query, target_price, notify_method, is_active, created_at`

	liteListAlertsSQL = `SELECT ` + liteAlertColumns + ` FROM alerts ORDER BY id;`

	liteGetAlertSQL = `SELECT ` + liteAlertColumns + ` FROM alerts WHERE id = ?;`

	liteCreateAlertSQL = `INSERT INTO alerts (email, query, target_price, notify_method, is_active, created_at)
    VALUES (?, ?, ?, ?, 1, ?)
    RETURNING ` + liteAlertColumns + `;`

	liteDeactivateAlertSQL = `UPDATE alerts SET is_active = 0 WHERE id = ?;`

	liteToggleAlertSQL = `UPDATE alerts SET is_active = 1 - is_active WHERE id = ? RETURNING is_active;`

	liteDeleteAlertSQL = `DELETE FROM alerts WHERE id = ?;`
)

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at dsn. ":memory:" is supported.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set sqlite journal mode: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// Migrate creates tables and indexes when missing.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}

// InsertPricePoints appends observations for q in one transaction.
func (s *SQLiteStore) InsertPricePoints(ctx context.Context, q query.Query, points []PricePoint) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, liteInsertPricePointSQL)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, q.String(), p.Store, p.Price.String(), p.Timestamp.UTC().UnixNano()); err != nil {
			return fmt.Errorf("insert price point: %w", err)
		}
	}
	return tx.Commit()
}

// History returns observations for q ordered by timestamp, then insertion.
func (s *SQLiteStore) History(ctx context.Context, q query.Query) ([]PricePoint, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, liteHistorySQL, q.String())
	if err != nil {
		return nil, fmt.Errorf("query price history: %w", err)
	}
	defer rows.Close()

	points := make([]PricePoint, 0)
	for rows.Next() {
		var (
			point    PricePoint
			priceStr string
			nanos    int64
		)
		if err := rows.Scan(&point.Store, &priceStr, &nanos); err != nil {
			return nil, err
		}
		if point.Price, err = decimal.NewFromString(priceStr); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		point.Timestamp = time.Unix(0, nanos).UTC()
		points = append(points, point)
	}
	return points, rows.Err()
}

// ListAlerts returns every alert, active or not.
func (s *SQLiteStore) ListAlerts(ctx context.Context) ([]Alert, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, liteListAlertsSQL)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]Alert, 0)
	for rows.Next() {
		alert, err := scanLiteAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// GetAlert loads a single alert.
func (s *SQLiteStore) GetAlert(ctx context.Context, id int64) (Alert, error) {
	db, err := s.getDB()
	if err != nil {
		return Alert{}, err
	}
	alert, err := scanLiteAlert(db.QueryRowContext(ctx, liteGetAlertSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Alert{}, ErrNotFound
	}
	if err != nil {
		return Alert{}, fmt.Errorf("get alert: %w", err)
	}
	return alert, nil
}

// CreateAlert inserts an active alert.
func (s *SQLiteStore) CreateAlert(ctx context.Context, alert NewAlert) (Alert, error) {
	db, err := s.getDB()
	if err != nil {
		return Alert{}, err
	}
	row := db.QueryRowContext(ctx, liteCreateAlertSQL,
		alert.Email,
		alert.Query.String(),
		alert.TargetPrice.String(),
		alert.NotifyMethod,
		s.now().UTC().UnixNano(),
	)
	created, err := scanLiteAlert(row)
	if err != nil {
		return Alert{}, fmt.Errorf("create alert: %w", err)
	}
	return created, nil
}

// DeactivateAlert clears the active flag. Deactivating an inactive alert is a no-op.
func (s *SQLiteStore) DeactivateAlert(ctx context.Context, id int64) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, liteDeactivateAlertSQL, id)
	if err != nil {
		return fmt.Errorf("deactivate alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleAlert flips the active flag and returns the new value.
func (s *SQLiteStore) ToggleAlert(ctx context.Context, id int64) (bool, error) {
	db, err := s.getDB()
	if err != nil {
		return false, err
	}
	var active int64
	err = db.QueryRowContext(ctx, liteToggleAlertSQL, id).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("toggle alert: %w", err)
	}
	return active != 0, nil
}

// DeleteAlert removes an alert, reporting whether a row existed.
func (s *SQLiteStore) DeleteAlert(ctx context.Context, id int64) (bool, error) {
	db, err := s.getDB()
	if err != nil {
		return false, err
	}
	res, err := db.ExecContext(ctx, liteDeleteAlertSQL, id)
	if err != nil {
		return false, fmt.Errorf("delete alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete alert: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLiteAlert(row rowScanner) (Alert, error) {
	var (
		alert     Alert
		queryStr  string
		targetStr string
		active    int64
		created   int64
	)
	if err := row.Scan(
		&alert.ID,
		&alert.Email,
		&queryStr,
		&targetStr,
		&alert.NotifyMethod,
		&active,
		&created,
	); err != nil {
		return Alert{}, err
	}

	target, err := decimal.NewFromString(targetStr)
	if err != nil {
		return Alert{}, fmt.Errorf("parse target price: %w", err)
	}
	alert.Query = query.Query(queryStr)
	alert.TargetPrice = target
	alert.IsActive = active != 0
	alert.CreatedAt = time.Unix(0, created).UTC()
	return alert, nil
}

var _ Store = (*SQLiteStore)(nil)
