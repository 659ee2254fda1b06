package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"binance-ats/config"
	"binance-ats/internal/logging"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores entries in Redis. After maxFailures consecutive errors it
// marks Redis unhealthy and serves from an in-memory fallback, probing Redis
// again every checkInterval.
type RedisCache struct {
	client   redis.Cmdable
	address  string
	fallback *MemoryCache
	logger   *logging.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
	now           func() time.Time
}

// NewRedisCache connects to Redis and verifies connectivity. A failed ping
// returns the cache in degraded mode.
func NewRedisCache(ctx context.Context, cfg config.RedisConfig) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 1,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	rc := newRedisCache(client, cfg.Address)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		rc.logger.Warn("initial redis connection failed, serving from memory", "address", cfg.Address, "error", err)
		rc.lastCheck = rc.now()
		return rc
	}

	rc.healthy = true
	rc.lastCheck = rc.now()
	rc.logger.Info("redis connected", "address", cfg.Address)
	return rc
}

func newRedisCache(client redis.Cmdable, address string) *RedisCache {
	return &RedisCache{
		client:        client,
		address:       address,
		fallback:      NewMemoryCache(),
		logger:        logging.WithComponent("cache"),
		maxFailures:   3,
		checkInterval: 30 * time.Second,
		now:           time.Now,
	}
}

// IsHealthy returns whether Redis is currently used.
func (rc *RedisCache) IsHealthy() bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.healthy
}

func (rc *RedisCache) recordFailure(err error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.failureCount++
	if rc.failureCount >= rc.maxFailures {
		if rc.healthy {
			rc.logger.Warn("redis marked unhealthy", "failures", rc.failureCount, "error", err)
		}
		rc.healthy = false
		rc.lastCheck = rc.now()
	}
}

func (rc *RedisCache) recordSuccess() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if !rc.healthy {
		rc.logger.Info("redis recovered", "address", rc.address)
	}
	rc.healthy = true
	rc.failureCount = 0
	rc.lastCheck = rc.now()
}

// checkHealth probes Redis when it is marked unhealthy and the check
// interval has passed.
func (rc *RedisCache) checkHealth(ctx context.Context) {
	rc.mu.RLock()
	shouldCheck := !rc.healthy && rc.now().Sub(rc.lastCheck) >= rc.checkInterval
	rc.mu.RUnlock()
	if !shouldCheck {
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rc.client.Ping(pingCtx).Err(); err != nil {
		rc.mu.Lock()
		rc.lastCheck = rc.now()
		rc.mu.Unlock()
		return
	}
	rc.recordSuccess()
}

func (rc *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	rc.checkHealth(ctx)
	if !rc.IsHealthy() {
		return rc.fallback.Get(ctx, key)
	}

	val, err := rc.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		rc.recordSuccess()
		return nil, false, nil
	}
	if err != nil {
		rc.recordFailure(err)
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	rc.recordSuccess()
	return val, true, nil
}

// Set writes to Redis and mirrors the value into the fallback so a later
// outage still serves the last known value.
func (rc *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_ = rc.fallback.Set(ctx, key, value, ttl)

	rc.checkHealth(ctx)
	if !rc.IsHealthy() {
		return nil
	}

	if err := rc.client.Set(ctx, key, value, ttl).Err(); err != nil {
		rc.recordFailure(err)
		return fmt.Errorf("redis set failed: %w", err)
	}

	rc.recordSuccess()
	return nil
}

func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	_ = rc.fallback.Delete(ctx, key)

	rc.checkHealth(ctx)
	if !rc.IsHealthy() {
		return nil
	}

	if err := rc.client.Del(ctx, key).Err(); err != nil {
		rc.recordFailure(err)
		return fmt.Errorf("redis delete failed: %w", err)
	}

	rc.recordSuccess()
	return nil
}

// Stats returns cache statistics for the status API.
type Stats struct {
	Backend      string `json:"backend"`
	Healthy      bool   `json:"healthy"`
	FailureCount int    `json:"failure_count"`
	Address      string `json:"address"`
}

func (rc *RedisCache) GetStats() Stats {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	return Stats{
		Backend:      "redis",
		Healthy:      rc.healthy,
		FailureCount: rc.failureCount,
		Address:      rc.address,
	}
}

// Close closes the Redis connection.
func (rc *RedisCache) Close() error {
	if c, ok := rc.client.(*redis.Client); ok {
		return c.Close()
	}
	return nil
}
