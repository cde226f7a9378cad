package fetcher

import (
	"context"
	"errors"
	"slices"

	"github.com/shopspring/decimal"

	"price-watch/internal/query"
)

// ErrUpstream marks failures reported by the comparison service itself.
var ErrUpstream = errors.New("quote source error")

// Quote is a current offer for a query. Price is invalid when the upstream
// value could not be parsed as a number; RawPrice keeps the original text.
type Quote struct {
	Source   string              `json:"source"`
	Title    string              `json:"title,omitempty"`
	Price    decimal.NullDecimal `json:"price_numeric"`
	RawPrice string              `json:"price_raw,omitempty"`
	Link     string              `json:"link"`
}

// QuoteSource fetches current quotes for a query, cheapest first.
type QuoteSource interface {
	Fetch(ctx context.Context, q query.Query) ([]Quote, error)
}

// SortByPrice orders quotes ascending by parsed price in place. Quotes without
// a valid price go last; ties keep their upstream order.
func SortByPrice(quotes []Quote) {
	slices.SortStableFunc(quotes, func(a, b Quote) int {
		switch {
		case a.Price.Valid && b.Price.Valid:
			return a.Price.Decimal.Cmp(b.Price.Decimal)
		case a.Price.Valid:
			return -1
		case b.Price.Valid:
			return 1
		default:
			return 0
		}
	})
}

// Priced returns the quotes whose price parsed.
func Priced(quotes []Quote) []Quote {
	out := make([]Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.Price.Valid {
			out = append(out, q)
		}
	}
	return out
}
