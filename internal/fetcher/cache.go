package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"price-watch/internal/query"
)

const cacheKeyPrefix = "pricewatch:quotes:"

// NewRedisClient parses url, connects and pings.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// CachedSource serves recent quotes from redis and falls through to next on
// a miss. Cache errors degrade to a direct fetch.
type CachedSource struct {
	next   QuoteSource
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedSource wraps next with a redis-backed cache.
func NewCachedSource(next QuoteSource, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedSource{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "quote_cache").Logger(),
	}
}

// Fetch returns cached quotes for q when present.
func (c *CachedSource) Fetch(ctx context.Context, q query.Query) ([]Quote, error) {
	key := cacheKey(q)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var quotes []Quote
		if jsonErr := json.Unmarshal(data, &quotes); jsonErr == nil {
			return quotes, nil
		}
		c.logger.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn().Err(err).Str("key", key).Msg("quote cache read failed")
	}

	quotes, err := c.next.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return quotes, nil
	}

	payload, err := json.Marshal(quotes)
	if err != nil {
		return quotes, nil
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("quote cache write failed")
	}
	return quotes, nil
}

func cacheKey(q query.Query) string {
	return cacheKeyPrefix + q.String()
}

var _ QuoteSource = (*CachedSource)(nil)
