package pool

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"binance-ats/config"
	"binance-ats/internal/binance"
	"binance-ats/internal/cache"
)

type fakeSource struct {
	tickers []binance.Ticker24h
	err     error
	calls   int
}

func (f *fakeSource) Tickers24h(ctx context.Context) ([]binance.Ticker24h, error) {
	f.calls++
	return f.tickers, f.err
}

type sentFile struct {
	path, caption string
}

type fakePublisher struct {
	sent []sentFile
}

func (f *fakePublisher) SendFile(ctx context.Context, path, caption string) {
	f.sent = append(f.sent, sentFile{path, caption})
}

func sampleTickers() []binance.Ticker24h {
	return []binance.Ticker24h{
		{Symbol: "BTCUSDT", QuoteVolume: 9e9, PriceChangePercent: 2.0},
		{Symbol: "ETHUSDT", QuoteVolume: 5e9, PriceChangePercent: -2.0},
		{Symbol: "SOLUSDT", QuoteVolume: 1e9, PriceChangePercent: 7.5},
		{Symbol: "DOGEUSDT", QuoteVolume: 4e7, PriceChangePercent: 20},
		{Symbol: "XRPUSDT", QuoteVolume: 2e9, PriceChangePercent: 0.4},
		{Symbol: "ETHBTC", QuoteVolume: 9e9, PriceChangePercent: 9},
		{Symbol: "BNBUSDC", QuoteVolume: 9e9, PriceChangePercent: 9},
	}
}

func TestBuildBase(t *testing.T) {
	got := Symbols(BuildBase(sampleTickers(), 10, 5e7, 1.0))
	want := []string{"SOLUSDT", "BTCUSDT", "ETHUSDT"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}

	if got := BuildBase(sampleTickers(), 1, 5e7, 1.0); len(got) != 1 || got[0].Symbol != "SOLUSDT" {
		t.Errorf("size 1 should keep the top mover, got %v", got)
	}
}

func TestBuildBaseExcludesLowVolumeAndForeignQuotes(t *testing.T) {
	floor := 1e9
	for _, c := range BuildBase(sampleTickers(), 100, floor, 0) {
		if c.QuoteVolume < floor {
			t.Errorf("%s below floor: %f", c.Symbol, c.QuoteVolume)
		}
		if len(c.Symbol) < 4 || c.Symbol[len(c.Symbol)-4:] != "USDT" {
			t.Errorf("%s is not USDT quoted", c.Symbol)
		}
	}
}

func TestMerge(t *testing.T) {
	got := Merge([]string{"PEPEUSDT", "BTCUSDT"}, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, 3)
	want := []string{"PEPEUSDT", "BTCUSDT", "ETHUSDT"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}

	if got := Merge(nil, []string{"A", "B"}, 0); len(got) != 2 {
		t.Errorf("max 0 should not truncate, got %v", got)
	}
}

func TestTickerCacheReusesSnapshot(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{tickers: sampleTickers()}
	tc := NewTickerCache(src, cache.NewMemoryCache(), time.Minute)

	first, err := tc.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, err := tc.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if src.calls != 1 {
		t.Errorf("expected one fetch, got %d", src.calls)
	}
	if len(first) != len(second) || second[2].PriceChangePercent != 7.5 {
		t.Errorf("cached snapshot differs: %v", second)
	}

	if _, err := tc.Fresh(ctx); err != nil {
		t.Fatal(err)
	}
	if src.calls != 2 {
		t.Errorf("Fresh must refetch, got %d calls", src.calls)
	}
}

func TestTickerCacheError(t *testing.T) {
	src := &fakeSource{err: errors.New("down")}
	tc := NewTickerCache(src, cache.NewMemoryCache(), 0)
	if tc.TTL() != DefaultTickerTTL {
		t.Errorf("ttl = %s, want default", tc.TTL())
	}
	if _, err := tc.Get(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestDailyBuildsOncePerDay(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := &fakeSource{tickers: sampleTickers()}
	c := cache.NewMemoryCache()
	d := NewDaily(NewTickerCache(src, c, time.Minute), c, config.PoolConfig{
		MaxSymbols:      10,
		MinQuoteVolume:  5e7,
		MinAbsChangePct: 1.0,
		SnapshotDir:     dir,
	})

	now := time.Date(2024, 7, 3, 9, 0, 15, 0, time.UTC)
	snap, err := d.Get(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Symbols) != 3 || snap.Symbols[0] != "SOLUSDT" {
		t.Errorf("unexpected pool %v", snap.Symbols)
	}

	if _, err := d.Get(ctx, now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if src.calls != 1 {
		t.Errorf("pool should be cached for the day, got %d fetches", src.calls)
	}

	onDisk, err := ReadSnapshot(dir, "20240703")
	if err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	if onDisk.Date != "20240703" || len(onDisk.Candidates) != 3 || onDisk.Candidates[0].QuoteVolume != 1e9 {
		t.Errorf("unexpected snapshot %+v", onDisk)
	}
}

func TestDailyPublishesSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := &fakeSource{tickers: sampleTickers()}
	c := cache.NewMemoryCache()
	d := NewDaily(NewTickerCache(src, c, time.Minute), c, config.PoolConfig{
		MaxSymbols:      10,
		MinQuoteVolume:  5e7,
		MinAbsChangePct: 1.0,
		SnapshotDir:     dir,
	})
	pub := &fakePublisher{}
	d.SetPublisher(pub)

	now := time.Date(2024, 7, 3, 9, 0, 15, 0, time.UTC)
	if _, err := d.Get(ctx, now); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Get(ctx, now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if len(pub.sent) != 1 {
		t.Fatalf("expected one snapshot upload per day, got %d", len(pub.sent))
	}
	if pub.sent[0].path != SnapshotPath(dir, "20240703") {
		t.Errorf("uploaded %q", pub.sent[0].path)
	}
	if !strings.Contains(pub.sent[0].caption, "20240703") {
		t.Errorf("caption %q should name the day", pub.sent[0].caption)
	}

	if _, err := d.Refresh(ctx, now.Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if len(pub.sent) != 2 {
		t.Errorf("a forced refresh should upload again, got %d uploads", len(pub.sent))
	}
}

func TestDailyWithoutSnapshotDirPublishesNothing(t *testing.T) {
	src := &fakeSource{tickers: sampleTickers()}
	c := cache.NewMemoryCache()
	d := NewDaily(NewTickerCache(src, c, time.Minute), c, config.PoolConfig{MaxSymbols: 10, MinAbsChangePct: 1.0})
	pub := &fakePublisher{}
	d.SetPublisher(pub)

	if _, err := d.Refresh(context.Background(), time.Now()); err != nil {
		t.Fatal(err)
	}
	if len(pub.sent) != 0 {
		t.Errorf("nothing should be uploaded without a snapshot, got %d", len(pub.sent))
	}
}

func TestDayKeyAndTTL(t *testing.T) {
	now := time.Date(2024, 12, 31, 22, 30, 0, 0, time.UTC)
	if got := DayKey(now); got != "ats:pool:20241231" {
		t.Errorf("DayKey = %s", got)
	}
	if got := UntilMidnight(now); got != 90*time.Minute {
		t.Errorf("UntilMidnight = %s, want 1h30m", got)
	}

	local := time.Date(2025, 1, 1, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*3600))
	if got := DayKey(local); got != "ats:pool:20241231" {
		t.Errorf("DayKey must use the UTC day, got %s", got)
	}
}
