package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-watch/internal/query"
	"price-watch/internal/version"
)

const comparePath = "/compare"

// HTTPOptions parameterise the comparison-service client.
type HTTPOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// HTTPSource fetches quotes from the comparison service over HTTP.
type HTTPSource struct {
	opts    HTTPOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewHTTPSource constructs a quote source.
func NewHTTPSource(opts HTTPOptions, logger zerolog.Logger) *HTTPSource {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 12 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	return &HTTPSource{
		opts:    opts,
		logger:  logger.With().Str("component", "quote_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Fetch calls GET /compare?q= and decodes the result list.
func (s *HTTPSource) Fetch(ctx context.Context, q query.Query) ([]Quote, error) {
	if q == "" {
		return nil, fmt.Errorf("empty query")
	}

	endpoint := s.baseURL + comparePath + "?" + url.Values{"q": {q.String()}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", version.UserAgent())
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	var res compareResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode compare response: %w", err)
	}

	quotes := make([]Quote, 0, len(res.Results))
	for _, item := range res.Results {
		price, raw := parsePrice(item.PriceNumeric)
		if !price.Valid {
			s.logger.Debug().Str("query", q.String()).Str("source", item.Source).Str("raw_price", raw).Msg("unparseable quote price")
		}
		quotes = append(quotes, Quote{
			Source:   item.Source,
			Title:    item.Title,
			Price:    price,
			RawPrice: raw,
			Link:     item.Link,
		})
	}
	return quotes, nil
}

type compareResponse struct {
	Query   string        `json:"query"`
	Results []compareItem `json:"results"`
}

type compareItem struct {
	Source       string          `json:"source"`
	Title        string          `json:"title"`
	Link         string          `json:"link"`
	PriceNumeric json.RawMessage `json:"price_numeric"`
}

type errorResponse struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

// parsePrice accepts a JSON number or a numeric string.
func parsePrice(raw json.RawMessage) (decimal.NullDecimal, string) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return decimal.NullDecimal{}, ""
	}

	text := string(trimmed)
	if trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return decimal.NullDecimal{}, string(trimmed)
		}
		text = strings.TrimSpace(text)
	}

	value, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.NullDecimal{}, text
	}
	return decimal.NewNullDecimal(value), text
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Detail != "" {
			return fmt.Errorf("%w (%d): %s", ErrUpstream, status, apiErr.Detail)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("%w (%d): %s", ErrUpstream, status, apiErr.Message)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("%w (%d): %s", ErrUpstream, status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("%w (%d)", ErrUpstream, status)
}

var _ QuoteSource = (*HTTPSource)(nil)
