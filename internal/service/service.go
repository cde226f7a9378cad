package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"price-watch/internal/alerting"
	"price-watch/internal/fetcher"
	"price-watch/internal/query"
	"price-watch/internal/scheduler"
	"price-watch/internal/storage"
)

var (
	// ErrFetchFailed wraps quote source failures and timeouts.
	ErrFetchFailed = errors.New("quote fetch failed")
	// ErrMalformedQuote marks a quote list where no price could be parsed.
	ErrMalformedQuote = errors.New("malformed quote data")
	// ErrDeliveryFailed wraps notification failures; the alert stays active.
	ErrDeliveryFailed = errors.New("notification delivery failed")
	// ErrCyclePanic is returned when a cycle panicked outside alert isolation.
	ErrCyclePanic = errors.New("evaluation cycle panicked")
	// ErrAlreadyRunning is returned by Start on a running watcher.
	ErrAlreadyRunning = errors.New("watcher already running")
	// ErrStopped is returned once Stop has been called.
	ErrStopped = errors.New("watcher stopped")
)

// AlertSource is the slice of the alert store the evaluation loop needs.
type AlertSource interface {
	ListAlerts(ctx context.Context) ([]storage.Alert, error)
	DeactivateAlert(ctx context.Context, id int64) error
}

// Options tune the evaluation loop.
type Options struct {
	Interval        time.Duration
	AlignToBucket   bool
	StartupDelay    time.Duration
	Concurrency     int
	QuoteTimeout    time.Duration
	NotifyTimeout   time.Duration
	CurrencySymbol  string
	AdvisoryLockKey int64
}

// Watcher runs the alert evaluation loop. It owns its scheduler goroutine and
// any manually triggered cycles; Start and Stop bound their lifetime.
type Watcher struct {
	alerts AlertSource
	source fetcher.QuoteSource
	sink   alerting.Notifier
	locker storage.AdvisoryLocker
	opts   Options
	logger zerolog.Logger

	mu       sync.Mutex
	baseCtx  context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopped  bool
	inflight sync.WaitGroup

	now func() time.Time
}

// New constructs a Watcher. The quote source should be uncached so every
// cycle sees fresh prices.
func New(alerts AlertSource, source fetcher.QuoteSource, sink alerting.Notifier, opts Options, logger zerolog.Logger) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.QuoteTimeout <= 0 {
		opts.QuoteTimeout = 12 * time.Second
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 15 * time.Second
	}

	w := &Watcher{
		alerts:  alerts,
		source:  source,
		sink:    sink,
		opts:    opts,
		logger:  logger.With().Str("component", "alert_watcher").Logger(),
		baseCtx: context.Background(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	if l, ok := alerts.(storage.AdvisoryLocker); ok && opts.AdvisoryLockKey != 0 {
		w.locker = l
	}
	return w
}

// Start launches the periodic loop in the background.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return ErrStopped
	}
	if w.done != nil {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.baseCtx = runCtx
	w.cancel = cancel
	w.done = make(chan struct{})

	sched := scheduler.New(scheduler.Options{
		Interval:     w.opts.Interval,
		AlignToStart: w.opts.AlignToBucket,
		StartupDelay: w.opts.StartupDelay,
	}, w.logger)

	go func(done chan struct{}) {
		defer close(done)
		err := sched.Run(runCtx, w.tick)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error().Err(err).Msg("scheduler exited")
		}
	}(w.done)

	w.logger.Info().Dur("interval", w.opts.Interval).Int("concurrency", w.opts.Concurrency).Msg("alert watcher started")
	return nil
}

// Stop halts the timer and waits for in-flight cycles until ctx expires.
// Alerts already being evaluated finish; queued ones are skipped.
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	drained := make(chan struct{})
	go func() {
		if done != nil {
			<-done
		}
		w.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		w.logger.Info().Msg("alert watcher stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for in-flight cycles: %w", ctx.Err())
	}
}

// TriggerNow schedules an out-of-band cycle and returns its id immediately.
func (w *Watcher) TriggerNow() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return "", ErrStopped
	}

	id := uuid.NewString()
	ctx := w.baseCtx
	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		if _, err := w.runCycle(ctx, id); err != nil {
			w.logger.Error().Err(err).Str("cycle_id", id).Msg("manual cycle failed")
		}
	}()

	w.logger.Info().Str("cycle_id", id).Msg("manual cycle triggered")
	return id, nil
}

// RunCycle evaluates every alert once, synchronously.
func (w *Watcher) RunCycle(ctx context.Context) (CycleReport, error) {
	return w.runCycle(ctx, uuid.NewString())
}

func (w *Watcher) tick(ctx context.Context, at time.Time) error {
	if w.locker != nil {
		unlock, acquired, err := w.locker.TryAdvisoryLock(ctx, w.opts.AdvisoryLockKey)
		if err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !acquired {
			w.logger.Debug().Time("tick", at).Msg("skip cycle because advisory lock held elsewhere")
			return nil
		}
		defer unlock()
	}

	_, err := w.runCycle(ctx, uuid.NewString())
	return err
}

func (w *Watcher) runCycle(ctx context.Context, id string) (report CycleReport, err error) {
	logger := w.logger.With().Str("cycle_id", id).Logger()
	report = CycleReport{ID: id, Started: w.now()}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCyclePanic, r)
			logger.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("recovered panic in evaluation cycle")
		}
		report.Finished = w.now()
	}()

	alerts, err := w.alerts.ListAlerts(ctx)
	if err != nil {
		return report, fmt.Errorf("list alerts: %w", err)
	}

	outcomes := make([]Outcome, len(alerts))
	var g errgroup.Group
	g.SetLimit(w.opts.Concurrency)

	for i, alert := range alerts {
		if !alert.IsActive {
			outcomes[i] = Outcome{AlertID: alert.ID, Query: alert.Query, Status: StatusInactive}
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = Outcome{AlertID: alert.ID, Query: alert.Query, Status: StatusCancelled, Err: ctx.Err()}
				return nil
			}
			outcomes[i] = w.evaluate(ctx, logger, alert)
			return nil
		})
	}
	_ = g.Wait()

	report.Outcomes = outcomes
	report.tally()

	logger.Info().
		Int("alerts", len(alerts)).
		Int("evaluated", report.Evaluated).
		Int("fired", report.Fired).
		Int("failed", report.Failed).
		Msg("evaluation cycle finished")
	return report, nil
}

// evaluate runs fetch, compare, notify and deactivate for one alert. It never
// panics and never returns an error; failures become the outcome status.
func (w *Watcher) evaluate(parent context.Context, cycleLogger zerolog.Logger, alert storage.Alert) (out Outcome) {
	out = Outcome{AlertID: alert.ID, Query: alert.Query}
	logger := cycleLogger.With().Int64("alert_id", alert.ID).Str("query", alert.Query.String()).Logger()

	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusPanic
			out.Err = fmt.Errorf("alert evaluation panicked: %v", r)
			logger.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("recovered panic in alert evaluation")
		}
	}()

	// shutdown must not abort a started evaluation halfway
	ctx := context.WithoutCancel(parent)

	quotes, err := w.fetch(ctx, alert.Query)
	if err != nil {
		out.Status = StatusFetchFailed
		out.Err = fmt.Errorf("%w: %w", ErrFetchFailed, err)
		logger.Error().Err(err).Msg("quote fetch failed, skipping alert")
		return out
	}
	if len(quotes) == 0 {
		out.Status = StatusNoQuotes
		logger.Debug().Msg("no quotes yet")
		return out
	}

	best, ok := BestQuote(quotes)
	if !ok {
		out.Status = StatusMalformedQuote
		out.Err = fmt.Errorf("%w: %d quotes, none with a numeric price", ErrMalformedQuote, len(quotes))
		logger.Warn().Str("price_raw", quotes[0].RawPrice).Msg("malformed quote data, skipping alert")
		return out
	}
	out.Price = best.Price

	if best.Price.Decimal.GreaterThan(alert.TargetPrice) {
		out.Status = StatusNotTriggered
		logger.Debug().Str("best", best.Price.Decimal.String()).Str("target", alert.TargetPrice.String()).Msg("target not reached")
		return out
	}

	msg := alerting.PriceDrop(alert, best, w.opts.CurrencySymbol)
	if err := w.send(ctx, msg); err != nil {
		out.Status = StatusNotifyFailed
		out.Err = fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
		logger.Error().Err(err).Str("method", alert.NotifyMethod).Msg("notification failed, alert stays active")
		return out
	}

	if err := w.deactivate(ctx, alert.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// deleted mid-cycle; nothing left to deactivate
			logger.Warn().Msg("alert vanished before deactivation")
			out.Status = StatusFired
			return out
		}
		out.Status = StatusDeactivateFailed
		out.Err = fmt.Errorf("deactivate alert: %w", err)
		logger.Error().Err(err).Msg("alert fired but deactivation failed; it may fire again")
		return out
	}

	out.Status = StatusFired
	logger.Info().
		Str("store", best.Source).
		Str("best", best.Price.Decimal.String()).
		Str("target", alert.TargetPrice.String()).
		Msg("alert fired and deactivated")
	return out
}

func (w *Watcher) fetch(ctx context.Context, q query.Query) ([]fetcher.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, w.opts.QuoteTimeout)
	defer cancel()
	return w.source.Fetch(ctx, q)
}

func (w *Watcher) send(ctx context.Context, msg alerting.Message) error {
	if w.sink == nil {
		return alerting.ErrNoChannel
	}
	ctx, cancel := context.WithTimeout(ctx, w.opts.NotifyTimeout)
	defer cancel()
	return w.sink.Send(ctx, msg)
}

func (w *Watcher) deactivate(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, w.opts.NotifyTimeout)
	defer cancel()
	return w.alerts.DeactivateAlert(ctx, id)
}

// BestQuote returns the cheapest quote with a parseable price. The input is
// not modified; ok is false when no price parses.
func BestQuote(quotes []fetcher.Quote) (fetcher.Quote, bool) {
	sorted := make([]fetcher.Quote, len(quotes))
	copy(sorted, quotes)
	fetcher.SortByPrice(sorted)
	if len(sorted) == 0 || !sorted[0].Price.Valid {
		return fetcher.Quote{}, false
	}
	return sorted[0], true
}

// Status is the result of evaluating one alert in a cycle.
type Status string

// Outcome statuses.
const (
	StatusInactive         Status = "inactive"
	StatusCancelled        Status = "cancelled"
	StatusFetchFailed      Status = "fetch_failed"
	StatusNoQuotes         Status = "no_quotes"
	StatusMalformedQuote   Status = "malformed_quote"
	StatusNotTriggered     Status = "not_triggered"
	StatusNotifyFailed     Status = "notify_failed"
	StatusFired            Status = "fired"
	StatusDeactivateFailed Status = "deactivate_failed"
	StatusPanic            Status = "panic"
)

// Outcome records what happened to one alert.
type Outcome struct {
	AlertID int64
	Query   query.Query
	Status  Status
	Price   decimal.NullDecimal
	Err     error
}

// CycleReport summarises one evaluation cycle.
type CycleReport struct {
	ID        string
	Started   time.Time
	Finished  time.Time
	Evaluated int
	Fired     int
	Skipped   int
	Failed    int
	Outcomes  []Outcome
}

func (r *CycleReport) tally() {
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusInactive, StatusCancelled:
			r.Skipped++
			continue
		}
		r.Evaluated++
		switch o.Status {
		case StatusFired:
			r.Fired++
		case StatusDeactivateFailed:
			r.Fired++
			r.Failed++
		case StatusFetchFailed, StatusMalformedQuote, StatusNotifyFailed, StatusPanic:
			r.Failed++
		}
	}
}
