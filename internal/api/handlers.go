package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"price-watch/internal/analytics"
	"price-watch/internal/errx"
	"price-watch/internal/fetcher"
	"price-watch/internal/query"
	"price-watch/internal/storage"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func queryParam(c *gin.Context) (query.Query, error) {
	q, err := query.Parse(c.Query("q"))
	if err != nil {
		return "", errx.BadRequest(err)
	}
	return q, nil
}

func (s *Server) compare(c *gin.Context) {
	q, err := queryParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	quotes, err := s.fetchAndRecord(c.Request.Context(), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": q, "results": quotes})
}

// fetchAndRecord fetches current quotes and appends every priced one to the
// query's history. A history write failure is logged, not returned.
func (s *Server) fetchAndRecord(ctx context.Context, q query.Query) ([]fetcher.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.QuoteTimeout)
	defer cancel()

	quotes, err := s.quotes.Fetch(ctx, q)
	if err != nil {
		return nil, errx.WrapUpstream(err)
	}
	fetcher.SortByPrice(quotes)

	priced := fetcher.Priced(quotes)
	if len(priced) == 0 {
		return quotes, nil
	}

	at := s.now()
	points := make([]storage.PricePoint, 0, len(priced))
	for _, quote := range priced {
		points = append(points, storage.PricePoint{Store: quote.Source, Price: quote.Price.Decimal, Timestamp: at})
	}
	if err := s.store.InsertPricePoints(context.WithoutCancel(ctx), q, points); err != nil {
		s.logger.Error().Err(err).Str("query", q.String()).Msg("failed to record price history")
	}
	return quotes, nil
}

func (s *Server) history(c *gin.Context) {
	q, err := queryParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	points, err := s.store.History(c.Request.Context(), q)
	if err != nil {
		s.fail(c, fmt.Errorf("load history: %w", err))
		return
	}
	if len(points) == 0 {
		s.fail(c, errx.NotFound("No price history available"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": q, "history": points})
}

func (s *Server) report(c *gin.Context) {
	q, err := queryParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	points, err := s.store.History(c.Request.Context(), q)
	if err != nil {
		s.fail(c, fmt.Errorf("load history: %w", err))
		return
	}

	report, err := s.analyzer.Analyze(points, s.now())
	var notEnough *analytics.NotEnoughDataError
	if errors.As(err, &notEnough) {
		s.logger.Debug().Str("query", q.String()).Int("points", notEnough.Points).Msg("not enough history for analytics")
		s.fail(c, errx.NotFound(notEnough.Reason()))
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type createAlertRequest struct {
	Email        string          `json:"email" binding:"required"`
	Query        string          `json:"query" binding:"required"`
	TargetPrice  decimal.Decimal `json:"target_price"`
	NotifyMethod string          `json:"notify_method"`
}

func (r createAlertRequest) validate() (storage.NewAlert, error) {
	q, err := query.Parse(r.Query)
	if err != nil {
		return storage.NewAlert{}, err
	}
	addr, err := mail.ParseAddress(r.Email)
	if err != nil {
		return storage.NewAlert{}, fmt.Errorf("invalid email %q", r.Email)
	}
	if !r.TargetPrice.IsPositive() {
		return storage.NewAlert{}, errors.New("target_price must be greater than zero")
	}
	method := r.NotifyMethod
	if method == "" {
		method = storage.NotifyEmail
	}
	if !storage.ValidNotifyMethod(method) {
		return storage.NewAlert{}, fmt.Errorf("notify_method must be %q or %q", storage.NotifyEmail, storage.NotifyTelegram)
	}
	return storage.NewAlert{
		Email:        addr.Address,
		Query:        q,
		TargetPrice:  r.TargetPrice,
		NotifyMethod: method,
	}, nil
}

func (s *Server) createAlert(c *gin.Context) {
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errx.BadRequest(err))
		return
	}
	input, err := req.validate()
	if err != nil {
		s.fail(c, errx.BadRequest(err))
		return
	}

	ctx := c.Request.Context()
	s.seedHistory(ctx, input.Query)

	alert, err := s.store.CreateAlert(ctx, input)
	if err != nil {
		s.fail(c, fmt.Errorf("create alert: %w", err))
		return
	}

	s.logger.Info().Int64("alert_id", alert.ID).Str("query", alert.Query.String()).Str("method", alert.NotifyMethod).Msg("alert created")
	c.JSON(http.StatusOK, gin.H{"status": "ok", "alert": alert})
}

// seedHistory records a first set of quotes for a query nobody has compared
// yet, so the alert's product has history from the start.
func (s *Server) seedHistory(ctx context.Context, q query.Query) {
	points, err := s.store.History(ctx, q)
	if err != nil || len(points) > 0 {
		return
	}
	if _, err := s.fetchAndRecord(ctx, q); err != nil {
		s.logger.Warn().Err(err).Str("query", q.String()).Msg("could not seed history for new alert")
	}
}

func (s *Server) listAlerts(c *gin.Context) {
	alerts, err := s.store.ListAlerts(c.Request.Context())
	if err != nil {
		s.fail(c, fmt.Errorf("list alerts: %w", err))
		return
	}
	if alerts == nil {
		alerts = []storage.Alert{}
	}
	c.JSON(http.StatusOK, alerts)
}

func alertID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errx.BadRequest(fmt.Errorf("invalid alert id %q", c.Param("id")))
	}
	return id, nil
}

func (s *Server) deleteAlert(c *gin.Context) {
	id, err := alertID(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	deleted, err := s.store.DeleteAlert(c.Request.Context(), id)
	if err != nil {
		s.fail(c, fmt.Errorf("delete alert: %w", err))
		return
	}
	if !deleted {
		s.fail(c, errx.NotFound("Alert not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Alert deleted"})
}

func (s *Server) toggleAlert(c *gin.Context) {
	id, err := alertID(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	active, err := s.store.ToggleAlert(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.fail(c, errx.NotFound("Alert not found"))
		return
	}
	if err != nil {
		s.fail(c, fmt.Errorf("toggle alert: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "is_active": active})
}

func (s *Server) triggerAlerts(c *gin.Context) {
	if s.trigger == nil {
		s.fail(c, errx.New(nil, http.StatusServiceUnavailable, "alert watcher not running"))
		return
	}

	id, err := s.trigger.TriggerNow()
	if err != nil {
		s.fail(c, errx.New(err, http.StatusServiceUnavailable, "alert watcher not running"))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"status":   "ok",
		"cycle_id": id,
		"message":  "Alert check triggered in background",
	})
}
