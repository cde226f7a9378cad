package analytics

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"price-watch/internal/storage"
)

// Stability labels a standard deviation.
type Stability string

const (
	Stable         Stability = "Stable"
	Moderate       Stability = "Moderate"
	HighlyVolatile Stability = "Highly Volatile"
)

// stabilityBands are upper bounds (exclusive) in the currency units of the
// stored prices. Anything at or above the last bound is HighlyVolatile.
var stabilityBands = []struct {
	below float64
	label Stability
}{
	{below: 500, label: Stable},
	{below: 1500, label: Moderate},
}

// Classify maps a standard deviation onto its stability band.
func Classify(std float64) Stability {
	for _, band := range stabilityBands {
		if std < band.below {
			return band.label
		}
	}
	return HighlyVolatile
}

// Direction of the price movement across the recent window.
type Direction string

const (
	Decreased    Direction = "decreased"
	Increased    Direction = "increased"
	Unchanged    Direction = "stable"
	Insufficient Direction = "insufficient_data"
)

// Insight describes how prices moved between the first and last observation
// inside the recent window. Delta is always non-negative.
type Insight struct {
	Direction Direction       `json:"direction"`
	Delta     decimal.Decimal `json:"delta"`
	Message   string          `json:"message"`
}

// recentInsight expects trend to be chronological.
func (e *Engine) recentInsight(trend []storage.PricePoint, now time.Time) Insight {
	cutoff := now.Add(-e.opts.RecentWindow)
	recent := make([]storage.PricePoint, 0, len(trend))
	for _, p := range trend {
		if !p.Timestamp.Before(cutoff) {
			recent = append(recent, p)
		}
	}

	if len(recent) < 2 {
		return Insight{Direction: Insufficient, Delta: decimal.Zero, Message: "Not enough recent data"}
	}

	delta := recent[len(recent)-1].Price.Sub(recent[0].Price)
	window := describeWindow(e.opts.RecentWindow)
	switch delta.Sign() {
	case -1:
		return Insight{
			Direction: Decreased,
			Delta:     delta.Abs(),
			Message:   fmt.Sprintf("Prices dropped by %s%s in the last %s", e.opts.CurrencySymbol, delta.Abs(), window),
		}
	case 1:
		return Insight{
			Direction: Increased,
			Delta:     delta,
			Message:   fmt.Sprintf("Prices increased by %s%s in the last %s", e.opts.CurrencySymbol, delta, window),
		}
	default:
		return Insight{
			Direction: Unchanged,
			Delta:     decimal.Zero,
			Message:   fmt.Sprintf("Prices remained stable in the last %s", window),
		}
	}
}

func describeWindow(d time.Duration) string {
	const day = 24 * time.Hour
	if d%day == 0 {
		days := int64(d / day)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	return d.String()
}
