// Package api exposes price comparison, history, analytics and alert
// management over HTTP. Raw query strings are normalised here, once.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"price-watch/internal/analytics"
	"price-watch/internal/errx"
	"price-watch/internal/fetcher"
	"price-watch/internal/logging"
	"price-watch/internal/storage"
)

// Store is the persistence the handlers need.
type Store interface {
	storage.PriceHistoryStore
	storage.AlertStore
}

// Trigger starts an out-of-band alert evaluation and returns its cycle id.
type Trigger interface {
	TriggerNow() (string, error)
}

// Options tune the HTTP surface.
type Options struct {
	QuoteTimeout time.Duration
	CORSOrigins  []string
	Debug        bool
}

// Server wires handlers onto a gin engine.
type Server struct {
	engine   *gin.Engine
	store    Store
	quotes   fetcher.QuoteSource
	analyzer *analytics.Engine
	trigger  Trigger
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

// New constructs the API server. trigger may be nil, in which case the
// manual trigger endpoint answers 503.
func New(store Store, quotes fetcher.QuoteSource, analyzer *analytics.Engine, trigger Trigger, opts Options, logger zerolog.Logger) *Server {
	if opts.QuoteTimeout <= 0 {
		opts.QuoteTimeout = 12 * time.Second
	}
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		engine:   gin.New(),
		store:    store,
		quotes:   quotes,
		analyzer: analyzer,
		trigger:  trigger,
		opts:     opts,
		logger:   logging.Component(logger, "api"),
		now:      func() time.Time { return time.Now().UTC() },
	}

	s.engine.Use(gin.Recovery(), s.requestLogger(), corsMiddleware(opts.CORSOrigins))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.health)

	s.engine.GET("/compare", s.compare)
	s.engine.GET("/history", s.history)
	s.engine.GET("/analytics", s.report)

	alerts := s.engine.Group("/alerts")
	alerts.GET("", s.listAlerts)
	alerts.POST("", s.createAlert)
	alerts.DELETE("/:id", s.deleteAlert)
	alerts.PATCH("/:id/toggle", s.toggleAlert)

	s.engine.POST("/debug/trigger-alerts", s.triggerAlerts)
}

// Handler exposes the router for http.Server and tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("http server stopped")
	return nil
}

// fail writes err as {"detail": message}, the shape every error response uses.
func (s *Server) fail(c *gin.Context, err error) {
	status, message := errx.StatusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": message})
}
