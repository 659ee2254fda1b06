// Package cache provides the TTL caches behind the daily symbol pool and the
// 24h ticker snapshot. Redis is used when configured, with an in-process
// fallback when it is not reachable.
package cache

import (
	"context"
	"sync"
	"time"

	"binance-ats/config"
	"binance-ats/internal/logging"
)

// Cache is a byte-oriented key/value store with per-entry TTL. A zero TTL
// means the entry never expires.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Key prefixes
const (
	PrefixDailyPool = "ats:pool:%s"
	PrefixTickers   = "ats:tickers:24h"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// GetStats reports the in-memory backend.
func (m *MemoryCache) GetStats() Stats {
	return Stats{Backend: "memory", Healthy: true}
}

// StatsOf returns the stats of caches that report them.
func StatsOf(c Cache) (Stats, bool) {
	if r, ok := c.(interface{ GetStats() Stats }); ok {
		return r.GetStats(), true
	}
	return Stats{}, false
}

// NewFromConfig returns a RedisCache when Redis is enabled, otherwise a
// MemoryCache. An unreachable Redis still yields a RedisCache that serves
// from memory until the server comes back.
func NewFromConfig(ctx context.Context, cfg config.RedisConfig) Cache {
	if !cfg.Enabled {
		logging.WithComponent("cache").Info("redis disabled, using in-memory cache")
		return NewMemoryCache()
	}
	return NewRedisCache(ctx, cfg)
}
