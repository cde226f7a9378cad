package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"price-watch/internal/query"
	"price-watch/internal/storage"
)

var csvHeader = []string{"store", "price", "timestamp"}

// Export renders a query's history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	q, err := query.Parse(opts.Query)
	if err != nil {
		return err
	}
	if opts.From != nil && opts.To != nil && !opts.From.Before(*opts.To) {
		return errors.New("from must be before to")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	history, err := store.History(ctx, q)
	if err != nil {
		return err
	}
	points := filterWindow(history, opts.From, opts.To)
	if len(points) == 0 {
		a.Logger.Info().Str("query", q.String()).Msg("no history found for export window")
		return nil
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().Str("query", q.String()).Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting history")

	if opts.CSVPath != "" {
		if err := writePointsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writePointsPNG(opts.PNGPath, q, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func filterWindow(points []storage.PricePoint, from, to *time.Time) []storage.PricePoint {
	out := make([]storage.PricePoint, 0, len(points))
	for _, p := range points {
		if from != nil && p.Timestamp.Before(*from) {
			continue
		}
		if to != nil && !p.Timestamp.Before(*to) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func downsamplePoints(points []storage.PricePoint, max int) []storage.PricePoint {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return points[len(points)-1:]
	}

	result := make([]storage.PricePoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writePointsCSV(path string, points []storage.PricePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	for _, p := range points {
		record := []string{
			p.Store,
			p.Price.String(),
			p.Timestamp.UTC().Format(time.RFC3339Nano),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writePointsPNG(path string, q query.Query, points []storage.PricePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	graph := priceChart(q, points)

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

// priceChart draws one line per store. Degenerate ranges are padded so a
// flat or single-instant history still renders.
func priceChart(q query.Query, points []storage.PricePoint) *chart.Chart {
	byStore := make(map[string]*chart.TimeSeries)
	order := make([]string, 0)
	minY, maxY := math.Inf(1), math.Inf(-1)
	minX, maxX := points[0].Timestamp, points[0].Timestamp

	for _, p := range points {
		series, ok := byStore[p.Store]
		if !ok {
			series = &chart.TimeSeries{Name: p.Store}
			byStore[p.Store] = series
			order = append(order, p.Store)
		}
		price := p.Price.InexactFloat64()
		series.XValues = append(series.XValues, p.Timestamp)
		series.YValues = append(series.YValues, price)

		minY, maxY = math.Min(minY, price), math.Max(maxY, price)
		if p.Timestamp.Before(minX) {
			minX = p.Timestamp
		}
		if p.Timestamp.After(maxX) {
			maxX = p.Timestamp
		}
	}
	slices.Sort(order)

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := &chart.Chart{
		Title:  "Price history: " + q.String(),
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
	}
	if minY == maxY {
		graph.YAxis.Range = &chart.ContinuousRange{Min: minY - 1, Max: maxY + 1}
	}
	if minX.Equal(maxX) {
		graph.XAxis.Range = &chart.ContinuousRange{
			Min: chart.TimeToFloat64(minX.Add(-time.Hour)),
			Max: chart.TimeToFloat64(maxX.Add(time.Hour)),
		}
	}

	for _, store := range order {
		graph.Series = append(graph.Series, *byStore[store])
	}
	graph.Elements = []chart.Renderable{chart.Legend(graph)}
	return graph
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
