// Package analytics derives summary statistics and trend insight from the
// price history of a single query. Analyze is a pure function of its input:
// it holds no state and is safe for concurrent use.
package analytics

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"price-watch/internal/storage"
)

// MinPoints is the smallest history Analyze will report on.
const MinPoints = 2

// NotEnoughDataError is the expected outcome for a query without enough
// history. It is a normal result, not a failure.
type NotEnoughDataError struct {
	Points int
}

func (e *NotEnoughDataError) Error() string {
	return "not enough price history available"
}

// Reason is the human readable explanation shown to callers.
func (e *NotEnoughDataError) Reason() string {
	return fmt.Sprintf("not enough price history available (have %d, need %d)", e.Points, MinPoints)
}

// Summary holds the extremes of the history. Prices are truncated to whole
// currency units.
type Summary struct {
	LowestPrice   decimal.Decimal `json:"lowest_price"`
	HighestPrice  decimal.Decimal `json:"highest_price"`
	AveragePrice  decimal.Decimal `json:"average_price"`
	PriceRange    string          `json:"price_range"`
	CheapestStore string          `json:"cheapest_store"`
}

// Volatility is the sample standard deviation and its stability band.
type Volatility struct {
	Score     float64   `json:"score"`
	Stability Stability `json:"stability"`
}

// Report is the analytics bundle for one query. It is never persisted.
type Report struct {
	Summary          Summary                    `json:"summary"`
	StorePrices      map[string]decimal.Decimal `json:"store_prices"`
	PriceTrend       []storage.PricePoint       `json:"price_trend"`
	Volatility       Volatility                 `json:"volatility"`
	BestTimeToBuy    Insight                    `json:"best_time_to_buy"`
	StoreConsistency map[string]int             `json:"store_consistency"`
}

// Options tune presentation of a report.
type Options struct {
	RecentWindow   time.Duration
	CurrencySymbol string
}

// Engine computes reports.
type Engine struct {
	opts Options
}

// New constructs an Engine, filling unset options with defaults.
func New(opts Options) *Engine {
	if opts.RecentWindow <= 0 {
		opts.RecentWindow = 7 * 24 * time.Hour
	}
	return &Engine{opts: opts}
}

// Analyze builds a report from history as of now. The input is not modified
// and need not be sorted.
func (e *Engine) Analyze(history []storage.PricePoint, now time.Time) (Report, error) {
	if len(history) < MinPoints {
		return Report{}, &NotEnoughDataError{Points: len(history)}
	}

	trend := chronological(history)

	return Report{
		Summary:          e.summarize(history),
		StorePrices:      latestByStore(history),
		PriceTrend:       trend,
		Volatility:       volatility(history),
		BestTimeToBuy:    e.recentInsight(trend, now),
		StoreConsistency: storeConsistency(history),
	}, nil
}

func (e *Engine) summarize(history []storage.PricePoint) Summary {
	lowest := history[0]
	highest := history[0].Price
	sum := decimal.Zero
	for _, p := range history {
		if p.Price.LessThan(lowest.Price) {
			lowest = p
		}
		if p.Price.GreaterThan(highest) {
			highest = p.Price
		}
		sum = sum.Add(p.Price)
	}

	low := lowest.Price.Truncate(0)
	high := highest.Truncate(0)
	return Summary{
		LowestPrice:   low,
		HighestPrice:  high,
		AveragePrice:  sum.Div(decimal.NewFromInt(int64(len(history)))).Truncate(0),
		PriceRange:    fmt.Sprintf("%s%s – %s%s", e.opts.CurrencySymbol, low, e.opts.CurrencySymbol, high),
		CheapestStore: lowest.Store,
	}
}

// chronological returns a copy sorted by timestamp; equal timestamps keep
// their input order.
func chronological(history []storage.PricePoint) []storage.PricePoint {
	sorted := slices.Clone(history)
	slices.SortStableFunc(sorted, func(a, b storage.PricePoint) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return sorted
}

// latestByStore maps each store to its most recent price. For equal
// timestamps the point seen last wins.
func latestByStore(history []storage.PricePoint) map[string]decimal.Decimal {
	latest := make(map[string]storage.PricePoint)
	for _, p := range history {
		cur, ok := latest[p.Store]
		if !ok || !p.Timestamp.Before(cur.Timestamp) {
			latest[p.Store] = p
		}
	}

	prices := make(map[string]decimal.Decimal, len(latest))
	for store, p := range latest {
		prices[store] = p.Price
	}
	return prices
}

func volatility(history []storage.PricePoint) Volatility {
	score := round2(sampleStdDev(history))
	return Volatility{Score: score, Stability: Classify(score)}
}

// sampleStdDev uses the n-1 denominator.
func sampleStdDev(history []storage.PricePoint) float64 {
	n := float64(len(history))
	if n < 2 {
		return 0
	}

	mean := 0.0
	for _, p := range history {
		mean += p.Price.InexactFloat64()
	}
	mean /= n

	variance := 0.0
	for _, p := range history {
		d := p.Price.InexactFloat64() - mean
		variance += d * d
	}
	return math.Sqrt(variance / (n - 1))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// storeConsistency counts, per store, the distinct timestamps at which that
// store had the lowest price. Ties go to the earlier point in the input.
func storeConsistency(history []storage.PricePoint) map[string]int {
	winners := make(map[int64]storage.PricePoint)
	for _, p := range history {
		key := p.Timestamp.UnixNano()
		cur, ok := winners[key]
		if !ok || p.Price.LessThan(cur.Price) {
			winners[key] = p
		}
	}

	counts := make(map[string]int)
	for _, p := range winners {
		counts[p.Store]++
	}
	return counts
}
