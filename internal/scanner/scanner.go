// Package scanner is the hourly orchestrator: it builds the scan pool, runs
// every symbol through scoring, the gates and the planner, hands plans to the
// runner and reports the pass.
package scanner

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"binance-ats/config"
	"binance-ats/internal/events"
	"binance-ats/internal/logging"
	"binance-ats/internal/metrics"
	"binance-ats/internal/notification"
	"binance-ats/internal/overlay"
	"binance-ats/internal/pool"
	"binance-ats/internal/risk"
	"binance-ats/internal/store"

	"github.com/google/uuid"
)

const (
	runOffset        = 15 * time.Second
	minLeadIn        = 5 * time.Second
	heartbeatTimeout = 10 * time.Second
)

// Deps are the collaborators of a Scanner. Bus may be nil.
type Deps struct {
	Market   MarketData
	Daily    PoolSource
	Tickers  TickerSource
	Overlay  *overlay.Overlay
	Executor Executor
	Guard    Guard
	Notifier Notifier
	Bus      *events.EventBus
	Metrics  *metrics.Metrics
}

// Scanner orchestrates scan passes. Passes never overlap.
type Scanner struct {
	deps   Deps
	config *config.Config
	logger *logging.Logger

	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	switches func() risk.Switches

	passMu sync.Mutex

	mu         sync.RWMutex
	state      State
	lastResult *ScanResult
	lastError  error
}

// New creates a scanner in the sleeping state.
func New(deps Deps, cfg *config.Config) *Scanner {
	return &Scanner{
		deps:     deps,
		config:   cfg,
		logger:   logging.WithComponent("scanner"),
		now:      time.Now,
		sleep:    sleepCtx,
		switches: risk.LoadSwitches,
		state:    StateSleeping,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NextRun returns the next top of the hour plus 15 seconds, skipping an
// hour when that is less than 5 seconds away.
func NextRun(now time.Time) time.Time {
	now = now.UTC()
	next := now.Truncate(time.Hour).Add(time.Hour + runOffset)
	if next.Sub(now) < minLeadIn {
		next = next.Add(time.Hour)
	}
	return next
}

// State returns the current loop state.
func (sc *Scanner) State() State {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.state
}

// LastResult returns the most recent completed pass, or nil.
func (sc *Scanner) LastResult() *ScanResult {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.lastResult
}

// LastError returns the error of the most recent pass, or nil.
func (sc *Scanner) LastError() error {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.lastError
}

func (sc *Scanner) setState(to State) {
	sc.mu.Lock()
	from := sc.state
	sc.state = to
	sc.mu.Unlock()

	if from != to {
		sc.deps.Metrics.SetScanning(to == StateScanning)
		sc.deps.Bus.PublishStateChanged(string(from), string(to))
	}
}

// Run sends the startup notice and a heartbeat, then scans once per hour
// until ctx is cancelled. A failed or panicking pass is reported and the
// loop continues.
func (sc *Scanner) Run(ctx context.Context) error {
	sw := sc.switches()
	sc.deps.Notifier.SendText(ctx, fmt.Sprintf("🚀 ATS started (mode: %s)", sw.Mode()))
	sc.heartbeat(ctx)
	sc.deps.Bus.Publish(events.Event{Type: events.EventBotStarted, Timestamp: sc.now(), Data: map[string]interface{}{"mode": sw.Mode()}})

	for {
		now := sc.now()
		next := NextRun(now)
		wait := next.Sub(now)
		sc.logger.Info("sleeping until next scan", "next", next.Format(time.RFC3339), "sleep_s", int(wait.Seconds()))

		if err := sc.sleep(ctx, wait); err != nil {
			sc.logger.Info("scan loop stopped", "reason", err.Error())
			sc.deps.Bus.Publish(events.Event{Type: events.EventBotStopped, Timestamp: sc.now()})
			return nil
		}

		sc.runSafely(ctx)
	}
}

func (sc *Scanner) heartbeat(ctx context.Context) {
	hbCtx, cancel := context.WithTimeout(ctx, heartbeatTimeout)
	defer cancel()

	offset, err := sc.deps.Market.SyncTime(hbCtx)
	if err != nil {
		sc.logger.Warn("heartbeat failed", "error", err)
		return
	}
	sc.deps.Notifier.SendText(ctx, fmt.Sprintf("💓 ATS heartbeat\nServer time offset: %d ms", offset))
}

// runSafely runs one pass and turns errors and panics into a report.
func (sc *Scanner) runSafely(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("scan panicked: %v", r)
			sc.logger.Error("scan panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			sc.finishFailed(ctx, err)
		}
	}()

	if _, err := sc.deps.Market.SyncTime(ctx); err != nil {
		sc.logger.Warn("server time sync failed", "error", err)
	}
	if _, err := sc.ScanOnce(ctx); err != nil && ctx.Err() == nil {
		sc.deps.Notifier.SendText(ctx, fmt.Sprintf("❌ Scan failed: %v", err))
	}
}

func (sc *Scanner) finishFailed(ctx context.Context, err error) {
	sc.mu.Lock()
	sc.lastError = err
	sc.mu.Unlock()
	sc.setState(StateSleeping)
	sc.deps.Metrics.ScanFinished(false, 0, sc.now())
	sc.deps.Bus.PublishError("scanner", "scan failed", err)
	sc.deps.Notifier.SendText(ctx, fmt.Sprintf("❌ Scan failed: %v", err))
}

// BuildPool decays and bumps the overlay, then merges the hottest symbols
// with today's base pool. Overlay failures only shrink the pool to the
// base; a base pool failure fails the pass.
func (sc *Scanner) BuildPool(ctx context.Context, now time.Time) (symbols, hot []string, err error) {
	snap, err := sc.deps.Daily.Get(ctx, now)
	if err != nil {
		return nil, nil, fmt.Errorf("daily pool: %w", err)
	}

	ov := sc.config.OverlayConfig
	if ov.Enabled && sc.deps.Overlay != nil {
		hot = sc.overlayTop(ctx, now, ov)
	}

	symbols = pool.Merge(hot, snap.Symbols, sc.config.PoolConfig.MaxSymbols)
	if limit := sc.config.PoolConfig.ScanLimit; limit > 0 && len(symbols) > limit {
		symbols = symbols[:limit]
	}

	sc.deps.Metrics.PoolSize.Set(float64(len(symbols)))
	sc.deps.Metrics.OverlaySize.Set(float64(len(hot)))
	return symbols, hot, nil
}

func (sc *Scanner) overlayTop(ctx context.Context, now time.Time, ov config.OverlayConfig) []string {
	if err := sc.deps.Overlay.Decay(ctx, now, ov.HalfLifeHours); err != nil {
		sc.logger.Warn("overlay decay failed", "error", err)
	}

	tickers, err := sc.deps.Tickers.Get(ctx)
	if err != nil {
		sc.logger.Warn("overlay tickers unavailable", "error", err)
	} else if bumped, err := sc.deps.Overlay.UpdateFromTickers(ctx, now, tickers, ov.TopK, ov.Weight); err != nil {
		sc.logger.Warn("overlay bump failed", "error", err)
	} else {
		sc.logger.Debug("overlay bumped", "symbols", len(bumped))
	}

	hot, err := sc.deps.Overlay.Top(ctx, ov.Limit, ov.MinHeat)
	if err != nil {
		sc.logger.Warn("overlay top failed", "error", err)
		return nil
	}
	return hot
}

// ScanOnce runs one full pass: pool, per-symbol pipeline, summary and
// runner tick. Per-symbol failures are collected, not returned.
func (sc *Scanner) ScanOnce(ctx context.Context) (*ScanResult, error) {
	sc.passMu.Lock()
	defer sc.passMu.Unlock()

	start := sc.now()
	sw := sc.switches()
	res := &ScanResult{
		ScanID:    uuid.NewString(),
		StartTime: start,
		Switches:  sw,
		Mode:      sw.Mode(),
	}
	logger := logging.ScanContext(res.ScanID)

	sc.setState(StateScanning)
	defer sc.setState(StateSleeping)

	symbols, hot, err := sc.BuildPool(ctx, start)
	if err != nil {
		sc.mu.Lock()
		sc.lastError = err
		sc.mu.Unlock()
		sc.deps.Metrics.ScanFinished(false, sc.now().Sub(start), sc.now())
		sc.deps.Bus.PublishError("scanner", "pool build failed", err)
		return nil, err
	}
	res.PoolSize = len(symbols)
	res.Overlay = hot

	logger.Info("scan started", "pool", len(symbols), "overlay", len(hot), "mode", res.Mode)
	sc.deps.Bus.PublishScanStarted(res.ScanID, len(symbols))

	for i, sym := range symbols {
		if i > 0 {
			if err := sc.sleep(ctx, sc.config.ScannerConfig.SymbolPause); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		r := sc.evaluateSafely(ctx, logger, sym, sw)
		res.Scanned++
		if r.Error != "" {
			res.ErrorCount++
		}
		if r.APlus {
			res.Candidates = append(res.Candidates, r.Symbol)
		}
		if r.Plan != nil {
			res.Plans = append(res.Plans, planLine(r))
		}
		res.Results = append(res.Results, r)
	}

	sort.SliceStable(res.Results, func(i, j int) bool {
		a, b := res.Results[i], res.Results[j]
		if a.Scored != b.Scored {
			return a.Scored
		}
		return a.Score.Total > b.Score.Total
	})

	if st, err := sc.deps.Executor.Tick(ctx, res.Mode == store.ModeLive); err != nil {
		logger.Warn("runner tick failed", "error", err)
	} else {
		res.Tick = &st
	}

	res.EndTime = sc.now()
	res.Duration = res.EndTime.Sub(start)
	res.Summary = notification.FormatScanSummary(sc.summary(res), sc.config.ScannerConfig.TopN)

	sc.deps.Notifier.SendText(ctx, res.Summary)
	sc.deps.Metrics.ScanFinished(true, res.Duration, res.EndTime)
	sc.deps.Bus.PublishScanCompleted(res.ScanID, res.Scanned, len(res.Candidates), len(res.Plans), res.ErrorCount, res.Duration)

	logger.Info("scan complete",
		"scanned", res.Scanned,
		"candidates", len(res.Candidates),
		"plans", len(res.Plans),
		"errors", res.ErrorCount,
		"duration_ms", res.Duration.Milliseconds())

	sc.mu.Lock()
	sc.lastResult = res
	sc.lastError = nil
	sc.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (sc *Scanner) summary(res *ScanResult) notification.Summary {
	s := notification.Summary{
		TS:         res.EndTime,
		PoolSize:   res.PoolSize,
		Scanned:    res.Scanned,
		Mode:       res.Mode,
		Plans:      res.Plans,
		ErrorCount: res.ErrorCount,
	}
	maxSamples := sc.config.ScannerConfig.ErrorSamples
	for _, r := range res.Results {
		if r.Error != "" && len(s.ErrorSamples) < maxSamples {
			s.ErrorSamples = append(s.ErrorSamples, notification.ErrorSample{Symbol: r.Symbol, Error: r.Error})
		}
		if !r.Scored {
			continue
		}
		row := notification.SummaryRow{
			Symbol:    r.Symbol,
			Trend:     roundInt(r.Score.Trend),
			Structure: roundInt(r.Score.Structure),
			Volume:    roundInt(r.Score.Volume),
			Total:     r.Score.Total,
			Gates:     r.Gates.Passed,
		}
		s.Rows = append(s.Rows, row)
		if r.APlus {
			s.APlus = append(s.APlus, row)
		}
	}
	return s
}

func planLine(r SymbolResult) string {
	p := r.Plan
	line := fmt.Sprintf("%s L1 %.6g / SL %.6g / TP1 %.6g [%s]", p.Symbol, p.Entries[0], p.StopLoss, p.TP1, r.Mode)
	if r.Blocked != "" {
		line += " (" + r.Blocked + ")"
	}
	return line
}
