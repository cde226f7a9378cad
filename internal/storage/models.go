package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"price-watch/internal/query"
)

// Notification methods an alert may request.
const (
	NotifyEmail    = "email"
	NotifyTelegram = "telegram"
)

// PricePoint is one immutable price observation from a single store.
type PricePoint struct {
	Store     string          `json:"store"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// Alert is a persisted target-price watch.
type Alert struct {
	ID           int64           `json:"id"`
	Email        string          `json:"email"`
	Query        query.Query     `json:"query"`
	TargetPrice  decimal.Decimal `json:"target_price"`
	NotifyMethod string          `json:"notify_method"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewAlert carries the fields supplied when an alert is created.
type NewAlert struct {
	Email        string
	Query        query.Query
	TargetPrice  decimal.Decimal
	NotifyMethod string
}

// ValidNotifyMethod reports whether m names a supported channel.
func ValidNotifyMethod(m string) bool {
	return m == NotifyEmail || m == NotifyTelegram
}
