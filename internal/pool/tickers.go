package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"binance-ats/internal/binance"
	"binance-ats/internal/cache"
	"binance-ats/internal/logging"
)

// DefaultTickerTTL bounds how long a 24h ticker snapshot is reused.
const DefaultTickerTTL = 60 * time.Second

// TickerSource fetches the 24h ticker snapshot. *binance.Client implements it.
type TickerSource interface {
	Tickers24h(ctx context.Context) ([]binance.Ticker24h, error)
}

// TickerCache memoises 24h tickers so the base pool and the overlay update
// share one fetch per pass.
type TickerCache struct {
	source TickerSource
	cache  cache.Cache
	ttl    time.Duration
	logger *logging.Logger
}

func NewTickerCache(source TickerSource, c cache.Cache, ttl time.Duration) *TickerCache {
	if ttl <= 0 {
		ttl = DefaultTickerTTL
	}
	return &TickerCache{
		source: source,
		cache:  c,
		ttl:    ttl,
		logger: logging.WithComponent("pool"),
	}
}

// TTL returns the snapshot lifetime.
func (tc *TickerCache) TTL() time.Duration { return tc.ttl }

// Get returns the cached snapshot, fetching a new one when it has expired.
func (tc *TickerCache) Get(ctx context.Context) ([]binance.Ticker24h, error) {
	raw, ok, err := tc.cache.Get(ctx, cache.PrefixTickers)
	if err != nil {
		tc.logger.Warn("ticker cache read failed", "error", err)
	}
	if ok {
		var tickers []binance.Ticker24h
		if err := json.Unmarshal(raw, &tickers); err == nil {
			return tickers, nil
		}
		tc.logger.Warn("discarding undecodable ticker snapshot")
	}
	return tc.Fresh(ctx)
}

// Fresh always fetches and replaces the cached snapshot.
func (tc *TickerCache) Fresh(ctx context.Context) ([]binance.Ticker24h, error) {
	tickers, err := tc.source.Tickers24h(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch 24h tickers: %w", err)
	}
	raw, err := json.Marshal(tickers)
	if err != nil {
		return nil, fmt.Errorf("encode tickers: %w", err)
	}
	if err := tc.cache.Set(ctx, cache.PrefixTickers, raw, tc.ttl); err != nil {
		tc.logger.Warn("ticker cache write failed", "error", err)
	}
	return tickers, nil
}
