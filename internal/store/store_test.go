package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"binance-ats/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, newMemoryStore(t))
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("ATS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ATS_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	for _, table := range []string{"cooldowns", "risk_budget", "overlay_queue", "plans"} {
		_, err := s.pool.Exec(ctx, "DELETE FROM "+table)
		require.NoError(t, err)
	}
	exerciseStore(t, s)
}

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("heat bump and top", func(t *testing.T) {
		require.NoError(t, s.AddHeat(ctx, []string{"BTCUSDT", "ETHUSDT"}, 1, now))
		require.NoError(t, s.AddHeat(ctx, []string{"BTCUSDT"}, 2, now.Add(time.Minute)))
		require.NoError(t, s.AddHeat(ctx, nil, 5, now))

		top, err := s.TopHeat(ctx, 10, 0.01)
		require.NoError(t, err)
		require.Len(t, top, 2)
		assert.Equal(t, "BTCUSDT", top[0].Symbol)
		assert.InDelta(t, 3, top[0].Heat, 1e-12)
		assert.Equal(t, now.Add(time.Minute).Unix(), top[0].LastTouch)
		assert.Equal(t, now.Unix(), top[0].TS, "a bump keeps the decay timestamp")

		limited, err := s.TopHeat(ctx, 1, 0.01)
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		hot, err := s.TopHeat(ctx, 10, 2)
		require.NoError(t, err)
		assert.Len(t, hot, 1)
	})

	t.Run("heat update in one pass", func(t *testing.T) {
		err := s.UpdateHeat(ctx, func(e HeatEntry) HeatEntry {
			e.Heat /= 2
			e.TS = now.Add(time.Hour).Unix()
			return e
		})
		require.NoError(t, err)

		top, err := s.TopHeat(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, top, 2)
		assert.InDelta(t, 1.5, top[0].Heat, 1e-12)
		assert.InDelta(t, 0.5, top[1].Heat, 1e-12)
		assert.Equal(t, now.Add(time.Hour).Unix(), top[1].TS)
	})

	t.Run("cooldowns", func(t *testing.T) {
		_, err := s.CooldownUntil(ctx, "SOLUSDT", "long")
		assert.True(t, errors.Is(err, ErrNotFound))

		until := now.Add(6 * time.Hour)
		require.NoError(t, s.SetCooldown(ctx, "SOLUSDT", "long", until, "opened"))
		got, err := s.CooldownUntil(ctx, "SOLUSDT", "long")
		require.NoError(t, err)
		assert.True(t, got.Equal(until))

		later := now.Add(12 * time.Hour)
		require.NoError(t, s.SetCooldown(ctx, "SOLUSDT", "long", later, "reopened"))
		got, err = s.CooldownUntil(ctx, "SOLUSDT", "long")
		require.NoError(t, err)
		assert.True(t, got.Equal(later))
	})

	t.Run("risk budget", func(t *testing.T) {
		require.NoError(t, s.RecordRiskUsage(ctx, now.Add(-2*time.Hour), 1, 0.5))
		require.NoError(t, s.RecordRiskUsage(ctx, now.Add(5*time.Minute), 1, 0.5))
		require.NoError(t, s.RecordRiskUsage(ctx, now.Add(10*time.Minute), 1, 1.0))

		used, err := s.RiskUsedSince(ctx, now)
		require.NoError(t, err)
		assert.InDelta(t, 2, used, 1e-12)

		none, err := s.RiskUsedSince(ctx, now.Add(24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0.0, none)
	})

	t.Run("plans", func(t *testing.T) {
		older := PlanRecord{TS: now.Unix(), Symbol: "BTCUSDT", Side: "long", L1: 100, L2: 99, L3: 98,
			W1: 0.6, W2: 0.3, W3: 0.1, SL: 97, TP1: 102, TP2: 104, R: 3, CostR: 0.02, Room: 1,
			Gates: `{"A":true,"B":true,"C":true,"D":true}`, Mode: ModeDry}
		newer := older
		newer.TS = now.Add(time.Hour).Unix()
		newer.Symbol = "ETHUSDT"
		newer.Mode = ModeLive

		require.NoError(t, s.InsertPlan(ctx, older))
		require.NoError(t, s.InsertPlan(ctx, newer))

		plans, err := s.RecentPlans(ctx, 10)
		require.NoError(t, err)
		require.Len(t, plans, 2)
		assert.Equal(t, newer, plans[0])
		assert.Equal(t, older, plans[1])

		one, err := s.RecentPlans(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, one, 1)
	})

	require.NoError(t, s.Ping(ctx))
}

func TestOpenSQLiteFileCreatesDirectory(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "state.db")
	s, err := Open(context.Background(), config.DatabaseConfig{Driver: DriverSQLite, DSN: dsn})
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dsn)
	assert.NoError(t, err)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "mongo"})
	assert.Error(t, err)
}
