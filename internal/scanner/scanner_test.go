package scanner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"binance-ats/config"
	"binance-ats/internal/binance"
	"binance-ats/internal/gates"
	"binance-ats/internal/metrics"
	"binance-ats/internal/overlay"
	"binance-ats/internal/planner"
	"binance-ats/internal/pool"
	"binance-ats/internal/risk"
	"binance-ats/internal/runner"
	"binance-ats/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// risingKlines: close 100+i, high close+0.1, low close-0.1, open close-0.5.
// Without breakout the last bar closes 2 below the previous close.
func risingKlines(n int, breakout bool) []binance.Kline {
	out := make([]binance.Kline, n)
	for i := range out {
		c := 100 + float64(i)
		out[i] = binance.Kline{OpenTime: int64(i) * 3600_000, Open: c - 0.5, High: c + 0.1, Low: c - 0.1, Close: c, Volume: 1000}
	}
	if !breakout {
		last := &out[n-1]
		last.Close = out[n-2].Close - 2
		last.Open = out[n-2].Close
		last.High = last.Open + 0.1
		last.Low = last.Close - 0.1
	}
	return out
}

type fakeMarket struct {
	mu     sync.Mutex
	klines map[string][]binance.Kline
	fail   map[string]error
	panics map[string]bool
	syncs  int
}

func (f *fakeMarket) SyncTime(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs++
	return 42, nil
}

func (f *fakeMarket) Klines(ctx context.Context, symbol, interval string, limit int) ([]binance.Kline, error) {
	if f.panics[symbol] {
		panic("boom")
	}
	if err := f.fail[symbol]; err != nil {
		return nil, err
	}
	return f.klines[symbol], nil
}

func (f *fakeMarket) FundingRates(ctx context.Context, symbol string, limit int) ([]binance.FundingRate, error) {
	rates := make([]binance.FundingRate, 10)
	for i := range rates {
		rates[i] = binance.FundingRate{Symbol: symbol, FundingRate: 0.0001 * float64(10-i)}
	}
	return rates, nil
}

func (f *fakeMarket) Depth(ctx context.Context, symbol string, limit int) (*binance.OrderBook, error) {
	return &binance.OrderBook{
		Bids: [][]string{{"298.99", "100"}},
		Asks: [][]string{{"299.01", "100"}},
	}, nil
}

func (f *fakeMarket) PremiumIndex(ctx context.Context, symbol string) (*binance.PremiumIndex, error) {
	return &binance.PremiumIndex{Symbol: symbol, MarkPrice: 299}, nil
}

type fakeDaily struct {
	symbols []string
	err     error
}

func (f *fakeDaily) Get(ctx context.Context, now time.Time) (*pool.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &pool.Snapshot{Date: pool.DayKey(now), Symbols: f.symbols}, nil
}

type fakeTickers struct{ tickers []binance.Ticker24h }

func (f *fakeTickers) Get(ctx context.Context) ([]binance.Ticker24h, error) { return f.tickers, nil }

type fakeExecutor struct {
	mu        sync.Mutex
	planModes []string
	placed    []bool // dry flag per call
	tickPanic bool
	ticks     int
}

func (f *fakeExecutor) OnPlan(ctx context.Context, plan *planner.Plan, report gates.Report, mode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.planModes = append(f.planModes, plan.Symbol+":"+mode)
	return nil
}

func (f *fakeExecutor) PlaceOrders(ctx context.Context, plan *planner.Plan, dry bool) ([]runner.Leg, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, dry)
	return []runner.Leg{{Index: 1, Price: "299.0", Quantity: "0.2", Dry: dry}}, nil
}

func (f *fakeExecutor) Tick(ctx context.Context, live bool) (runner.TickStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks++
	if f.tickPanic {
		panic("tick exploded")
	}
	return runner.TickStatus{}, nil
}

type fakeGuard struct {
	allow  bool
	reason string
}

func (f fakeGuard) CanOpen(ctx context.Context, sw risk.Switches, symbol, side string, now time.Time) (bool, string, error) {
	return f.allow, f.reason, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeNotifier) SendText(ctx context.Context, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
}

func (f *fakeNotifier) joined() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.texts, "\n---\n")
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.ScannerConfig.SymbolPause = time.Millisecond
	cfg.Thresholds.APlus = config.APlusThresholds{MinTotal: 0}
	cfg.Thresholds.Gates.B.NearEMAATR = 100
	cfg.Thresholds.Gates.C = config.GateCThresholds{FundingPctl: 101, SpeedPctl: 101, ZBig: 1e9, ZSmall: 1e9, FundingLimit: 10}
	cfg.Thresholds.Gates.D.RoomATRMin = 0.5
	return cfg
}

type harness struct {
	sc       *Scanner
	market   *fakeMarket
	daily    *fakeDaily
	exec     *fakeExecutor
	notifier *fakeNotifier
	metrics  *metrics.Metrics
}

func newHarness(t *testing.T, guard Guard) *harness {
	t.Helper()
	st, err := store.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	h := &harness{
		market: &fakeMarket{
			klines: map[string][]binance.Kline{
				"AUSDT": risingKlines(200, true),
				"CUSDT": risingKlines(200, false),
			},
			fail:   map[string]error{"BUSDT": errors.New("klines unavailable")},
			panics: map[string]bool{},
		},
		daily:    &fakeDaily{symbols: []string{"AUSDT", "BUSDT"}},
		exec:     &fakeExecutor{},
		notifier: &fakeNotifier{},
		metrics:  metrics.New(),
	}
	h.sc = New(Deps{
		Market:   h.market,
		Daily:    h.daily,
		Tickers:  &fakeTickers{tickers: []binance.Ticker24h{{Symbol: "CUSDT", PriceChangePercent: 25}}},
		Overlay:  overlay.New(st),
		Executor: h.exec,
		Guard:    guard,
		Notifier: h.notifier,
		Metrics:  h.metrics,
	}, testConfig())
	h.sc.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 30, 0, time.UTC) }
	h.sc.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	h.sc.switches = func() risk.Switches { return risk.Switches{DryRun: true, BlackoutMinutes: 5} }
	return h
}

func TestNextRun(t *testing.T) {
	tests := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), time.Date(2024, 5, 1, 11, 0, 15, 0, time.UTC)},
		{time.Date(2024, 5, 1, 10, 59, 59, 0, time.UTC), time.Date(2024, 5, 1, 11, 0, 15, 0, time.UTC)},
		{time.Date(2024, 5, 1, 11, 0, 12, 0, time.UTC), time.Date(2024, 5, 1, 12, 0, 15, 0, time.UTC)},
		{time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC), time.Date(2024, 5, 2, 0, 0, 15, 0, time.UTC)},
		{time.Date(2024, 5, 1, 18, 30, 0, 0, time.FixedZone("UTC+8", 8*3600)), time.Date(2024, 5, 1, 11, 0, 15, 0, time.UTC)},
	}
	for _, tt := range tests {
		got := NextRun(tt.now)
		assert.True(t, got.Equal(tt.want), "NextRun(%s) = %s, want %s", tt.now, got, tt.want)
		assert.GreaterOrEqual(t, got.Sub(tt.now), minLeadIn)
	}
}

func TestScanOnceDryPass(t *testing.T) {
	h := newHarness(t, fakeGuard{allow: false, reason: "dry run"})

	res, err := h.sc.ScanOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.PoolSize)
	assert.Equal(t, []string{"CUSDT"}, res.Overlay)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 1, res.ErrorCount)
	assert.Equal(t, "dry", res.Mode)
	assert.ElementsMatch(t, []string{"AUSDT", "CUSDT"}, res.Candidates)
	require.Len(t, res.Plans, 1)
	assert.Contains(t, res.Plans[0], "AUSDT")

	require.Len(t, res.Results, 3)
	assert.Equal(t, "BUSDT", res.Results[2].Symbol, "unscored symbols sort last")
	for _, r := range res.Results {
		switch r.Symbol {
		case "AUSDT":
			assert.True(t, r.Gates.Passed)
			assert.Equal(t, store.ModeDry, r.Mode)
			assert.Equal(t, "dry run", r.Blocked)
			assert.Len(t, r.Legs, 1)
		case "CUSDT":
			assert.False(t, r.Gates.Passed)
			assert.Equal(t, gates.NameA, r.Gates.RejectedBy)
			assert.Nil(t, r.Plan)
		case "BUSDT":
			assert.Contains(t, r.Error, "klines unavailable")
		}
	}

	assert.Equal(t, []string{"AUSDT:dry"}, h.exec.planModes)
	assert.Equal(t, []bool{true}, h.exec.placed)
	assert.Equal(t, 1, h.exec.ticks)

	summary := h.notifier.joined()
	assert.Contains(t, summary, "Scan complete")
	assert.Contains(t, summary, "Pool: 3 | scanned: 3 | mode: dry")
	assert.Contains(t, summary, "BUSDT: klines: klines unavailable")
	assert.Contains(t, summary, "Gates=Y")
	assert.Equal(t, summary, res.Summary)

	assert.Equal(t, StateSleeping, h.sc.State())
	assert.Same(t, res, h.sc.LastResult())
	assert.NoError(t, h.sc.LastError())
}

func TestScanOnceLiveWhenGuardAllows(t *testing.T) {
	h := newHarness(t, fakeGuard{allow: true})
	h.sc.switches = func() risk.Switches { return risk.Switches{TradingEnabled: true} }

	res, err := h.sc.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "live", res.Mode)
	assert.Equal(t, []string{"AUSDT:live"}, h.exec.planModes)
	assert.Equal(t, []bool{false}, h.exec.placed)
}

func TestScanOnceSymbolPanicIsContained(t *testing.T) {
	h := newHarness(t, fakeGuard{})
	h.daily.symbols = []string{"PANICUSDT", "AUSDT"}
	h.market.panics["PANICUSDT"] = true

	res, err := h.sc.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.ErrorCount)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, "PANICUSDT", res.Results[len(res.Results)-1].Symbol)
	assert.Contains(t, res.Results[len(res.Results)-1].Error, "panic: boom")
}

func TestScanOncePoolFailure(t *testing.T) {
	h := newHarness(t, fakeGuard{})
	h.daily.err = errors.New("tickers down")

	res, err := h.sc.ScanOnce(context.Background())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "tickers down")
	assert.Equal(t, StateSleeping, h.sc.State())
	assert.Error(t, h.sc.LastError())
	assert.Nil(t, h.sc.LastResult())
}

func TestScanLimitTruncatesPool(t *testing.T) {
	h := newHarness(t, fakeGuard{})
	h.sc.config.PoolConfig.ScanLimit = 1

	symbols, hot, err := h.sc.BuildPool(context.Background(), h.sc.now())
	require.NoError(t, err)
	assert.Equal(t, []string{"CUSDT"}, symbols, "overlay symbols come first")
	assert.Equal(t, []string{"CUSDT"}, hot)
}

func TestRunRecoversAndStops(t *testing.T) {
	h := newHarness(t, fakeGuard{})
	h.exec.tickPanic = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu     sync.Mutex
		sleeps int
	)
	h.sc.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		if d == h.sc.config.ScannerConfig.SymbolPause {
			return ctx.Err()
		}
		sleeps++
		if sleeps > 2 {
			cancel()
		}
		return ctx.Err()
	}

	require.NoError(t, h.sc.Run(ctx))

	out := h.notifier.joined()
	assert.Contains(t, out, "🚀 ATS started (mode: dry)")
	assert.Contains(t, out, "💓 ATS heartbeat")
	assert.Contains(t, out, "❌ Scan failed: scan panicked: tick exploded")
	assert.Equal(t, 2, h.exec.ticks, "the loop continues after a failed pass")
	assert.Equal(t, StateSleeping, h.sc.State())
	assert.GreaterOrEqual(t, h.market.syncs, 3)
}
