package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"price-watch/internal/alerting"
	"price-watch/internal/analytics"
	"price-watch/internal/api"
	"price-watch/internal/config"
	"price-watch/internal/fetcher"
	"price-watch/internal/logging"
	"price-watch/internal/service"
	"price-watch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app")}
}

func (a *App) openStore(ctx context.Context) (storage.Store, error) {
	return storage.Open(ctx, a.Config.Database)
}

func (a *App) newQuoteSource() *fetcher.HTTPSource {
	return fetcher.NewHTTPSource(fetcher.HTTPOptions{
		BaseURL:   a.Config.Quotes.BaseURL,
		Timeout:   a.Config.Quotes.RequestTimeout,
		UserAgent: a.Config.Quotes.UserAgent,
	}, a.Logger)
}

// newRequestSource wraps the quote source with the redis cache when one is
// configured. An unreachable redis disables caching instead of failing.
func (a *App) newRequestSource(ctx context.Context, direct fetcher.QuoteSource) (fetcher.QuoteSource, func()) {
	if a.Config.Cache.RedisURL == "" {
		return direct, func() {}
	}

	client, err := fetcher.NewRedisClient(ctx, a.Config.Cache.RedisURL)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("redis unavailable; quote cache disabled")
		return direct, func() {}
	}
	return fetcher.NewCachedSource(direct, client, a.Config.Cache.TTL, a.Logger), func() { _ = client.Close() }
}

func (a *App) newNotifier() *alerting.Router {
	router := alerting.NewRouter()

	if cfg := a.Config.Notify.Email; cfg.Enabled {
		router.Register(storage.NotifyEmail, alerting.NewEmailNotifier(alerting.EmailOptions{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.Sender(),
			Timeout:  a.Config.Notify.Timeout,
		}, a.Logger))
	}
	if cfg := a.Config.Notify.Telegram; cfg.Enabled {
		router.Register(storage.NotifyTelegram, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, a.Config.Notify.Timeout, a.Logger))
	}

	if len(router.Methods()) == 0 {
		a.Logger.Warn().Msg("no notification channel enabled; triggered alerts will stay active")
	}
	return router
}

func (a *App) newWatcher(alerts service.AlertSource, source fetcher.QuoteSource, sink alerting.Notifier) *service.Watcher {
	return service.New(alerts, source, sink, service.Options{
		Interval:        a.Config.Scheduler.Interval,
		AlignToBucket:   a.Config.Scheduler.AlignToBucket,
		StartupDelay:    a.Config.Scheduler.StartupDelay,
		Concurrency:     a.Config.Scheduler.Concurrency,
		QuoteTimeout:    a.Config.Quotes.RequestTimeout,
		NotifyTimeout:   a.Config.Notify.Timeout,
		CurrencySymbol:  a.Config.Notify.CurrencySymbol,
		AdvisoryLockKey: a.Config.Scheduler.AdvisoryLockKey,
	}, a.Logger)
}

func (a *App) newAnalyzer() *analytics.Engine {
	return analytics.New(analytics.Options{
		RecentWindow:   a.Config.Analytics.RecentWindow,
		CurrencySymbol: a.Config.Analytics.CurrencySymbol,
	})
}

// Run serves the HTTP API and runs the alert evaluation loop until SIGINT or
// SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	direct := a.newQuoteSource()
	requestSource, closeCache := a.newRequestSource(ctx, direct)
	defer closeCache()

	// the loop always sees fresh prices; only request handlers use the cache
	watcher := a.newWatcher(store, direct, a.newNotifier())
	if err := watcher.Start(ctx); err != nil {
		return err
	}

	server := api.New(store, requestSource, a.newAnalyzer(), watcher, api.Options{
		QuoteTimeout: a.Config.Quotes.RequestTimeout,
		CORSOrigins:  a.Config.HTTP.CORSOrigins,
		Debug:        a.Config.Logging.Level == "debug",
	}, a.Logger)

	a.Logger.Info().Str("addr", a.Config.HTTP.Addr).Str("driver", a.Config.Database.Driver).Msg("starting price watch service")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx, a.Config.HTTP.Addr, a.Config.HTTP.ShutdownTimeout)
	})
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout)
		defer stopCancel()
		return watcher.Stop(stopCtx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("price watch service stopped")
	return nil
}

// Migrate applies the schema to the configured database.
func (a *App) Migrate(ctx context.Context) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	a.Logger.Info().Str("driver", a.Config.Database.Driver).Msg("schema up to date")
	return nil
}

// ExportOptions hold parameters for exporting a query's history.
type ExportOptions struct {
	Query     string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ImportOptions configure a CSV history import.
type ImportOptions struct {
	Query  string
	Path   string
	DryRun bool
}

// AnalyzeOptions configure the analyze command.
type AnalyzeOptions struct {
	Query string
	JSON  bool
}

// SimulateOptions describe a synthetic alert pushed through the real
// notification channels.
type SimulateOptions struct {
	Email  string
	Query  string
	Target string
	Price  string
	Method string
}
