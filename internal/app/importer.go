package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"price-watch/internal/query"
	"price-watch/internal/storage"
)

const importBatchSize = 500

// Import loads store,price,timestamp rows into a query's history. Rows that
// fail to parse are logged and skipped.
func (a *App) Import(ctx context.Context, opts ImportOptions) error {
	q, err := query.Parse(opts.Query)
	if err != nil {
		return err
	}

	file, err := os.Open(opts.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	points, skipped, err := a.readPointsCSV(file)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return errors.New("文件中没有可导入的价格记录")
	}

	if opts.DryRun {
		a.Logger.Warn().Int("rows", len(points)).Int("skipped", skipped).Msg("导入 dry-run：不会写入数据库")
		return nil
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	imported := 0
	for start := 0; start < len(points); start += importBatchSize {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		end := min(start+importBatchSize, len(points))
		if err := store.InsertPricePoints(ctx, q, points[start:end]); err != nil {
			return fmt.Errorf("insert rows %d-%d: %w", start, end, err)
		}
		imported += end - start
	}

	a.Logger.Info().Str("query", q.String()).Int("imported", imported).Int("skipped", skipped).Msg("导入完成")
	return nil
}

func (a *App) readPointsCSV(r io.Reader) ([]storage.PricePoint, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		points  []storage.PricePoint
		skipped int
		line    int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, 0, fmt.Errorf("read csv line %d: %w", line, err)
		}
		if line == 1 && isHeader(record) {
			continue
		}

		point, err := parsePointRecord(record)
		if err != nil {
			skipped++
			a.Logger.Warn().Err(err).Int("line", line).Msg("跳过无法解析的行")
			continue
		}
		points = append(points, point)
	}
	return points, skipped, nil
}

func isHeader(record []string) bool {
	return len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), csvHeader[0])
}

func parsePointRecord(record []string) (storage.PricePoint, error) {
	if len(record) < 3 {
		return storage.PricePoint{}, fmt.Errorf("expected 3 columns, got %d", len(record))
	}
	source := strings.TrimSpace(record[0])
	if source == "" {
		return storage.PricePoint{}, errors.New("empty store")
	}
	price, err := decimal.NewFromString(strings.TrimSpace(record[1]))
	if err != nil {
		return storage.PricePoint{}, fmt.Errorf("invalid price %q", record[1])
	}
	if price.IsNegative() {
		return storage.PricePoint{}, fmt.Errorf("negative price %q", record[1])
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(record[2]))
	if err != nil {
		return storage.PricePoint{}, fmt.Errorf("invalid timestamp %q", record[2])
	}
	return storage.PricePoint{Store: source, Price: price, Timestamp: ts.UTC()}, nil
}
