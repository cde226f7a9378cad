package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"price-watch/internal/fetcher"
	"price-watch/internal/query"
	"price-watch/internal/service"
	"price-watch/internal/storage"
)

// SimulateAlert 构造一个虚拟告警与报价，走一遍真实的告警通道。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	input, err := parseNewAlert(AddAlertOptions{
		Email:  opts.Email,
		Query:  opts.Query,
		Target: opts.Target,
		Method: opts.Method,
	})
	if err != nil {
		return err
	}
	price, err := decimal.NewFromString(opts.Price)
	if err != nil || !price.IsPositive() {
		return fmt.Errorf("--price must be a positive number, got %q", opts.Price)
	}

	notifier := a.newNotifier()
	if len(notifier.Methods()) == 0 {
		return errors.New("未配置任何告警通道")
	}

	alerts := &memoryAlerts{alerts: []storage.Alert{{
		ID:           1,
		Email:        input.Email,
		Query:        input.Query,
		TargetPrice:  input.TargetPrice,
		NotifyMethod: input.NotifyMethod,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}}}
	quotes := &staticQuoteSource{quote: fetcher.Quote{
		Source:   "simulated",
		Title:    input.Query.String(),
		Price:    decimal.NewNullDecimal(price),
		RawPrice: price.String(),
		Link:     "https://example.com/simulated",
	}}

	report, err := a.newWatcher(alerts, quotes, notifier).RunCycle(ctx)
	if err != nil {
		return err
	}
	if err := writeCycleReport(os.Stdout, report); err != nil {
		return err
	}
	if report.Failed > 0 {
		return errors.New("模拟告警发送失败，请检查日志")
	}
	return nil
}

type staticQuoteSource struct {
	quote fetcher.Quote
}

func (s *staticQuoteSource) Fetch(ctx context.Context, q query.Query) ([]fetcher.Quote, error) {
	return []fetcher.Quote{s.quote}, nil
}

// memoryAlerts keeps simulated alerts out of the real store.
type memoryAlerts struct {
	mu     sync.Mutex
	alerts []storage.Alert
}

func (m *memoryAlerts) ListAlerts(ctx context.Context) ([]storage.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Alert(nil), m.alerts...), nil
}

func (m *memoryAlerts) DeactivateAlert(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			m.alerts[i].IsActive = false
			return nil
		}
	}
	return storage.ErrNotFound
}

var (
	_ fetcher.QuoteSource = (*staticQuoteSource)(nil)
	_ service.AlertSource = (*memoryAlerts)(nil)
)
