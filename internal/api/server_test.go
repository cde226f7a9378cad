package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-watch/internal/analytics"
	"price-watch/internal/config"
	"price-watch/internal/fetcher"
	"price-watch/internal/query"
	"price-watch/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubQuotes struct {
	quotes []fetcher.Quote
	err    error
	calls  int
}

func (s *stubQuotes) Fetch(ctx context.Context, q query.Query) ([]fetcher.Quote, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]fetcher.Quote, len(s.quotes))
	copy(out, s.quotes)
	return out, nil
}

type stubTrigger struct {
	calls int
	err   error
}

func (s *stubTrigger) TriggerNow() (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "cycle-1", nil
}

func priced(source string, price int64) fetcher.Quote {
	return fetcher.Quote{Source: source, Price: decimal.NewNullDecimal(decimal.NewFromInt(price)), Link: "https://" + source + ".example"}
}

type testEnv struct {
	server  *Server
	store   storage.Store
	quotes  *stubQuotes
	trigger *stubTrigger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.Open(context.Background(), config.DatabaseConfig{
		Driver:      config.DriverSQLite,
		DSN:         ":memory:",
		AutoMigrate: true,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)

	quotes := &stubQuotes{}
	trigger := &stubTrigger{}
	srv := New(store, quotes, analytics.New(analytics.Options{CurrencySymbol: "₹"}), trigger, Options{
		QuoteTimeout: time.Second,
		CORSOrigins:  []string{"http://localhost:5500"},
		Debug:        true,
	}, zerolog.Nop())
	return &testEnv{server: srv, store: store, quotes: quotes, trigger: trigger}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestCompareRecordsHistory(t *testing.T) {
	env := newTestEnv(t)
	env.quotes.quotes = []fetcher.Quote{
		priced("amazon", 1200),
		{Source: "shop", RawPrice: "N/A"},
		priced("flipkart", 1100),
	}

	rec := env.do(t, http.MethodGet, "/compare?q=%20Pixel%209%20", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decode[struct {
		Query   string          `json:"query"`
		Results []fetcher.Quote `json:"results"`
	}](t, rec)
	if body.Query != "pixel 9" {
		t.Fatalf("query should be normalised, got %q", body.Query)
	}
	if len(body.Results) != 3 || body.Results[0].Source != "flipkart" || body.Results[2].Source != "shop" {
		t.Fatalf("results should be sorted cheapest first, unpriced last: %+v", body.Results)
	}

	history, err := env.store.History(context.Background(), "pixel 9")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("only priced quotes should be recorded, got %d", len(history))
	}
}

func TestCompareErrors(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, http.MethodGet, "/compare?q=%20%20", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank query should be 400, got %d", rec.Code)
	}

	env.quotes.err = context.DeadlineExceeded
	if rec := env.do(t, http.MethodGet, "/compare?q=pixel", ""); rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("timeout should be 504, got %d", rec.Code)
	}

	env.quotes.err = errors.New("scraper crashed")
	rec := env.do(t, http.MethodGet, "/compare?q=pixel", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("upstream failure should be 502, got %d", rec.Code)
	}
	if detail := decode[map[string]string](t, rec)["detail"]; strings.Contains(detail, "crashed") {
		t.Fatalf("internal detail leaked: %q", detail)
	}
}

func TestHistoryAndAnalytics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if rec := env.do(t, http.MethodGet, "/history?q=pixel", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("empty history should be 404, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/analytics?q=pixel", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("no history should be 404, got %d", rec.Code)
	}

	now := time.Now().UTC()
	err := env.store.InsertPricePoints(ctx, "pixel", []storage.PricePoint{
		{Store: "amazon", Price: decimal.NewFromInt(1000), Timestamp: now.Add(-72 * time.Hour)},
		{Store: "flipkart", Price: decimal.NewFromInt(800), Timestamp: now.Add(-time.Hour)},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/history?q=PIXEL", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/analytics?q=Pixel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("analytics status = %d body=%s", rec.Code, rec.Body.String())
	}
	report := decode[map[string]json.RawMessage](t, rec)
	for _, key := range []string{"summary", "store_prices", "price_trend", "volatility", "best_time_to_buy", "store_consistency"} {
		if _, ok := report[key]; !ok {
			t.Fatalf("report missing %q: %s", key, rec.Body.String())
		}
	}
	var insight analytics.Insight
	if err := json.Unmarshal(report["best_time_to_buy"], &insight); err != nil {
		t.Fatalf("decode insight: %v", err)
	}
	if insight.Direction != analytics.Decreased || !insight.Delta.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("unexpected insight %+v", insight)
	}
}

func TestAlertLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.quotes.quotes = []fetcher.Quote{priced("amazon", 1200)}

	rec := env.do(t, http.MethodPost, "/alerts", `{"email":"Buyer <buyer@example.com>","query":"  Pixel 9 ","target_price":1000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body.String())
	}
	created := decode[struct {
		Status string        `json:"status"`
		Alert  storage.Alert `json:"alert"`
	}](t, rec)
	if created.Alert.Query != "pixel 9" || created.Alert.Email != "buyer@example.com" || created.Alert.NotifyMethod != storage.NotifyEmail || !created.Alert.IsActive {
		t.Fatalf("unexpected alert %+v", created.Alert)
	}
	if env.quotes.calls != 1 {
		t.Fatalf("new query should seed history once, calls=%d", env.quotes.calls)
	}

	rec = env.do(t, http.MethodGet, "/alerts", "")
	if list := decode[[]storage.Alert](t, rec); len(list) != 1 {
		t.Fatalf("expected one alert, got %d", len(list))
	}

	id := created.Alert.ID
	rec = env.do(t, http.MethodPatch, "/alerts/"+itoa(id)+"/toggle", "")
	if rec.Code != http.StatusOK || decode[map[string]any](t, rec)["is_active"] != false {
		t.Fatalf("toggle should deactivate: %d %s", rec.Code, rec.Body.String())
	}

	if rec := env.do(t, http.MethodDelete, "/alerts/"+itoa(id), ""); rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/alerts/"+itoa(id), ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete should be 404, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPatch, "/alerts/"+itoa(id)+"/toggle", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("toggle on missing alert should be 404, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/alerts/abc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id should be 400, got %d", rec.Code)
	}
}

func TestCreateAlertValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]string{
		"missing email":  `{"query":"pixel","target_price":10}`,
		"bad email":      `{"email":"nope","query":"pixel","target_price":10}`,
		"blank query":    `{"email":"a@b.co","query":"   ","target_price":10}`,
		"zero target":    `{"email":"a@b.co","query":"pixel","target_price":0}`,
		"negative":       `{"email":"a@b.co","query":"pixel","target_price":-5}`,
		"unknown method": `{"email":"a@b.co","query":"pixel","target_price":10,"notify_method":"sms"}`,
		"not json":       `{`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if rec := env.do(t, http.MethodPost, "/alerts", body); rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestTriggerAlerts(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/debug/trigger-alerts", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decode[map[string]string](t, rec); body["status"] != "ok" || body["cycle_id"] != "cycle-1" {
		t.Fatalf("unexpected body %v", body)
	}

	env.trigger.err = errors.New("watcher stopped")
	if rec := env.do(t, http.MethodPost, "/debug/trigger-alerts", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("stopped watcher should be 503, got %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/alerts", nil)
	req.Header.Set("Origin", "http://localhost:5500")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5500" {
		t.Fatalf("allowed origin not echoed: %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unknown origin must not be allowed, got %q", got)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
