package overlay

import (
	"context"
	"testing"
	"time"

	"binance-ats/internal/binance"
	"binance-ats/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOverlay(t *testing.T) (*Overlay, store.Store) {
	t.Helper()
	s, err := store.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s), s
}

func heatOf(t *testing.T, s store.Store, symbol string) float64 {
	t.Helper()
	entries, err := s.TopHeat(context.Background(), 100, -1)
	require.NoError(t, err)
	for _, e := range entries {
		if e.Symbol == symbol {
			return e.Heat
		}
	}
	t.Fatalf("%s not in overlay", symbol)
	return 0
}

func TestDecayIdempotentAtZeroElapsed(t *testing.T) {
	ctx := context.Background()
	o, s := newOverlay(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, o.Bump(ctx, now, []string{"BTCUSDT"}, 4))
	require.NoError(t, o.Decay(ctx, now, 2))
	assert.InDelta(t, 4, heatOf(t, s, "BTCUSDT"), 1e-12)

	require.NoError(t, o.Decay(ctx, now, 2))
	assert.InDelta(t, 4, heatOf(t, s, "BTCUSDT"), 1e-12)
}

func TestDecayHalvesAfterOneHalfLife(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for _, initial := range []float64{0.5, 1, 7.25} {
		o, s := newOverlay(t)
		require.NoError(t, o.Bump(ctx, now, []string{"AUSDT"}, initial))

		require.NoError(t, o.Decay(ctx, now.Add(2*time.Hour), 2))
		assert.InDelta(t, initial/2, heatOf(t, s, "AUSDT"), 1e-9)

		require.NoError(t, o.Decay(ctx, now.Add(4*time.Hour), 2))
		assert.InDelta(t, initial/4, heatOf(t, s, "AUSDT"), 1e-9)
	}
}

func TestDecayClampsHalfLife(t *testing.T) {
	ctx := context.Background()
	o, s := newOverlay(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, o.Bump(ctx, now, []string{"ETHUSDT"}, 1))
	require.NoError(t, o.Decay(ctx, now.Add(6*time.Minute), 0))
	assert.InDelta(t, 0.5, heatOf(t, s, "ETHUSDT"), 1e-9)
}

func TestBumpFiltersAndIgnoresBadWeights(t *testing.T) {
	ctx := context.Background()
	o, s := newOverlay(t)
	now := time.Now()

	require.NoError(t, o.Bump(ctx, now, []string{"BTCUSDT", "ETHBTC", "", "BTCUSDT"}, 1))
	require.NoError(t, o.Bump(ctx, now, []string{"SOLUSDT"}, 0))
	require.NoError(t, o.Bump(ctx, now, []string{"SOLUSDT"}, -3))

	entries, err := s.TopHeat(ctx, 10, -1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "BTCUSDT", entries[0].Symbol)
	assert.InDelta(t, 1, entries[0].Heat, 1e-12)
}

func TestTopOrdersByHeat(t *testing.T) {
	ctx := context.Background()
	o, _ := newOverlay(t)
	now := time.Now()

	require.NoError(t, o.Bump(ctx, now, []string{"AUSDT", "BUSDT", "CUSDT"}, 1))
	require.NoError(t, o.Bump(ctx, now, []string{"CUSDT", "BUSDT"}, 1))
	require.NoError(t, o.Bump(ctx, now, []string{"CUSDT"}, 1))

	top, err := o.Top(ctx, 18, 0.01)
	require.NoError(t, err)
	assert.Equal(t, []string{"CUSDT", "BUSDT", "AUSDT"}, top)

	top, err = o.Top(ctx, 2, 1.5)
	require.NoError(t, err)
	assert.Equal(t, []string{"CUSDT", "BUSDT"}, top)
}

func TestUpdateFromTickers(t *testing.T) {
	ctx := context.Background()
	o, _ := newOverlay(t)
	now := time.Now()

	tickers := []binance.Ticker24h{
		{Symbol: "BTCUSDT", PriceChangePercent: 1.5},
		{Symbol: "DOGEUSDT", PriceChangePercent: -12},
		{Symbol: "ETHBTC", PriceChangePercent: 30},
		{Symbol: "PEPEUSDT", PriceChangePercent: 8},
		{Symbol: "XRPUSDT", PriceChangePercent: 0.2},
	}

	bumped, err := o.UpdateFromTickers(ctx, now, tickers, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"DOGEUSDT", "PEPEUSDT"}, bumped)

	top, err := o.Top(ctx, 10, 0.01)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"DOGEUSDT", "PEPEUSDT"}, top)
}
