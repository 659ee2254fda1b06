package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"binance-ats/config"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemoryCache()
	m.now = clock.now

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, m.Set(ctx, "forever", []byte("x"), 0))

	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(v))

	clock.advance(time.Minute)
	_, ok, _ = m.Get(ctx, "k")
	assert.False(t, ok, "entry expires at its deadline")

	_, ok, _ = m.Get(ctx, "forever")
	assert.True(t, ok)

	require.NoError(t, m.Delete(ctx, "forever"))
	_, ok, _ = m.Get(ctx, "forever")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestMemoryCacheCopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCache()
	buf := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", buf, 0))
	buf[0] = 'z'

	v, _, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(v))
}

func TestNewFromConfigDisabled(t *testing.T) {
	c := NewFromConfig(context.Background(), config.RedisConfig{Enabled: false})
	_, ok := c.(*MemoryCache)
	assert.True(t, ok)
}

func TestRedisCacheGetSet(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	rc := newRedisCache(db, "mock")
	rc.healthy = true

	mock.ExpectGet("hit").SetVal("value")
	v, ok, err := rc.Get(ctx, "hit")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "value", string(v))

	mock.ExpectGet("miss").RedisNil()
	_, ok, err = rc.Get(ctx, "miss")
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectSet("pool", []byte(`["BTCUSDT"]`), time.Hour).SetVal("OK")
	require.NoError(t, rc.Set(ctx, "pool", []byte(`["BTCUSDT"]`), time.Hour))

	mock.ExpectDel("pool").SetVal(1)
	require.NoError(t, rc.Delete(ctx, "pool"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheDegradesAndRecovers(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	db, mock := redismock.NewClientMock()
	rc := newRedisCache(db, "mock")
	rc.now = clock.now
	rc.healthy = true

	mock.ExpectSet("k", []byte("v1"), time.Hour).SetVal("OK")
	require.NoError(t, rc.Set(ctx, "k", []byte("v1"), time.Hour))

	boom := errors.New("connection refused")
	for i := 0; i < 3; i++ {
		mock.ExpectGet("k").SetErr(boom)
		_, _, err := rc.Get(ctx, "k")
		assert.Error(t, err)
	}
	assert.False(t, rc.IsHealthy())
	assert.Equal(t, 3, rc.GetStats().FailureCount)

	// served from memory without touching redis
	v, ok, err := rc.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", string(v))

	clock.advance(30 * time.Second)
	mock.ExpectPing().SetVal("PONG")
	mock.ExpectGet("k").SetVal("v2")
	v, ok, err = rc.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", string(v))
	assert.True(t, rc.IsHealthy())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheFailedProbeStaysDegraded(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	db, mock := redismock.NewClientMock()
	rc := newRedisCache(db, "mock")
	rc.now = clock.now
	rc.lastCheck = clock.t

	clock.advance(time.Minute)
	mock.ExpectPing().SetErr(errors.New("still down"))
	require.NoError(t, rc.Set(ctx, "k", []byte("v"), 0))
	assert.False(t, rc.IsHealthy())

	// the next probe waits for another interval
	v, ok, err := rc.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(v))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsOf(t *testing.T) {
	st, ok := StatsOf(NewMemoryCache())
	require.True(t, ok)
	assert.Equal(t, "memory", st.Backend)
	assert.True(t, st.Healthy)

	db, _ := redismock.NewClientMock()
	st, ok = StatsOf(newRedisCache(db, "localhost:6379"))
	require.True(t, ok)
	assert.Equal(t, "redis", st.Backend)
	assert.Equal(t, "localhost:6379", st.Address)
}
