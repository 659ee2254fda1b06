package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"binance-ats/config"
	"binance-ats/internal/cache"
	"binance-ats/internal/logging"
)

const dayLayout = "20060102"

// Snapshot is the daily pool artifact written to the snapshot directory and
// kept in the cache for the rest of the UTC day.
type Snapshot struct {
	Date        string      `json:"date"`
	GeneratedAt time.Time   `json:"generated_at"`
	Symbols     []string    `json:"symbols"`
	Candidates  []Candidate `json:"candidates"`
}

// FilePublisher pushes a written artifact to an outside sink.
// notification.Manager implements it.
type FilePublisher interface {
	SendFile(ctx context.Context, path, caption string)
}

// Daily owns the base pool for the current UTC day.
type Daily struct {
	tickers   *TickerCache
	cache     cache.Cache
	config    config.PoolConfig
	publisher FilePublisher
	logger    *logging.Logger
}

func NewDaily(tickers *TickerCache, c cache.Cache, cfg config.PoolConfig) *Daily {
	return &Daily{
		tickers: tickers,
		cache:   c,
		config:  cfg,
		logger:  logging.WithComponent("pool"),
	}
}

// SetPublisher makes Refresh push each written snapshot to p.
func (d *Daily) SetPublisher(p FilePublisher) {
	d.publisher = p
}

// DayKey is the cache key of the pool for now's UTC calendar day.
func DayKey(now time.Time) string {
	return fmt.Sprintf(cache.PrefixDailyPool, now.UTC().Format(dayLayout))
}

// UntilMidnight returns the time left until the next UTC midnight.
func UntilMidnight(now time.Time) time.Duration {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return next.Sub(now)
}

// Get returns today's pool, building it on the first call of the day.
func (d *Daily) Get(ctx context.Context, now time.Time) (*Snapshot, error) {
	raw, ok, err := d.cache.Get(ctx, DayKey(now))
	if err != nil {
		d.logger.Warn("daily pool cache read failed", "error", err)
	}
	if ok {
		var snap Snapshot
		if err := json.Unmarshal(raw, &snap); err == nil {
			return &snap, nil
		}
		d.logger.Warn("discarding undecodable daily pool", "key", DayKey(now))
	}
	return d.Refresh(ctx, now)
}

// Refresh rebuilds today's pool from fresh tickers, caches it until UTC
// midnight and writes the pool_YYYYMMDD.json snapshot.
func (d *Daily) Refresh(ctx context.Context, now time.Time) (*Snapshot, error) {
	tickers, err := d.tickers.Fresh(ctx)
	if err != nil {
		return nil, err
	}

	cands := BuildBase(tickers, d.config.MaxSymbols, d.config.MinQuoteVolume, d.config.MinAbsChangePct)
	snap := &Snapshot{
		Date:        now.UTC().Format(dayLayout),
		GeneratedAt: now.UTC(),
		Symbols:     Symbols(cands),
		Candidates:  cands,
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode daily pool: %w", err)
	}
	if err := d.cache.Set(ctx, DayKey(now), raw, UntilMidnight(now)); err != nil {
		d.logger.Warn("daily pool cache write failed", "error", err)
	}

	if d.config.SnapshotDir != "" {
		path, err := writeSnapshot(d.config.SnapshotDir, snap)
		if err != nil {
			d.logger.Warn("failed to write pool snapshot", "dir", d.config.SnapshotDir, "error", err)
		} else if d.publisher != nil {
			d.publisher.SendFile(ctx, path, fmt.Sprintf("📦 Daily pool %s (%d symbols)", snap.Date, len(snap.Symbols)))
		}
	}

	d.logger.Info("daily pool built",
		"date", snap.Date,
		"tickers", len(tickers),
		"symbols", len(snap.Symbols))
	return snap, nil
}

// SnapshotPath is where the snapshot for date (YYYYMMDD) is written.
func SnapshotPath(dir, date string) string {
	return filepath.Join(dir, "pool_"+date+".json")
}

func writeSnapshot(dir string, snap *Snapshot) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", err
	}
	path := SnapshotPath(dir, snap.Date)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return path, nil
}

// ReadSnapshot loads a snapshot written by Refresh.
func ReadSnapshot(dir, date string) (*Snapshot, error) {
	data, err := os.ReadFile(SnapshotPath(dir, date))
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", date, err)
	}
	return &snap, nil
}
