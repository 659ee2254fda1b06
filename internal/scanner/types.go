package scanner

import (
	"context"
	"time"

	"binance-ats/internal/binance"
	"binance-ats/internal/gates"
	"binance-ats/internal/planner"
	"binance-ats/internal/pool"
	"binance-ats/internal/risk"
	"binance-ats/internal/runner"
	"binance-ats/internal/scoring"
)

// State of the orchestrator loop.
type State string

const (
	StateSleeping State = "sleeping"
	StateScanning State = "scanning"
)

// MarketData is the subset of the exchange client a scan reads from.
type MarketData interface {
	SyncTime(ctx context.Context) (int64, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]binance.Kline, error)
	FundingRates(ctx context.Context, symbol string, limit int) ([]binance.FundingRate, error)
	Depth(ctx context.Context, symbol string, limit int) (*binance.OrderBook, error)
	PremiumIndex(ctx context.Context, symbol string) (*binance.PremiumIndex, error)
}

// PoolSource yields the daily base pool.
type PoolSource interface {
	Get(ctx context.Context, now time.Time) (*pool.Snapshot, error)
}

// TickerSource yields the (possibly cached) 24h tickers for the overlay.
type TickerSource interface {
	Get(ctx context.Context) ([]binance.Ticker24h, error)
}

// Executor records and executes plans.
type Executor interface {
	OnPlan(ctx context.Context, plan *planner.Plan, report gates.Report, mode string) error
	PlaceOrders(ctx context.Context, plan *planner.Plan, dry bool) ([]runner.Leg, error)
	Tick(ctx context.Context, live bool) (runner.TickStatus, error)
}

// Guard decides whether a new position may be opened.
type Guard interface {
	CanOpen(ctx context.Context, sw risk.Switches, symbol, side string, now time.Time) (bool, string, error)
}

// Notifier pushes fire-and-forget text.
type Notifier interface {
	SendText(ctx context.Context, text string)
}

// SymbolResult is the outcome of one symbol in one pass.
type SymbolResult struct {
	Symbol  string           `json:"symbol"`
	Score   scoring.Result   `json:"score"`
	Scored  bool             `json:"scored"`
	APlus   bool             `json:"aplus"`
	Gates   gates.Report     `json:"gates"`
	Crowd   *gates.Crowding  `json:"crowding,omitempty"`
	Book    *gates.Orderbook `json:"orderbook,omitempty"`
	Plan    *planner.Plan    `json:"plan,omitempty"`
	Mode    string           `json:"mode,omitempty"`
	Blocked string           `json:"blocked,omitempty"`
	Legs    []runner.Leg     `json:"legs,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// ScanResult aggregates one pass. Results are sorted by total score, best
// first; symbols that failed before scoring sort last.
type ScanResult struct {
	ScanID     string             `json:"scan_id"`
	StartTime  time.Time          `json:"start_time"`
	EndTime    time.Time          `json:"end_time"`
	Duration   time.Duration      `json:"duration"`
	Switches   risk.Switches      `json:"switches"`
	Mode       string             `json:"mode"`
	PoolSize   int                `json:"pool_size"`
	Overlay    []string           `json:"overlay"`
	Scanned    int                `json:"scanned"`
	Results    []SymbolResult     `json:"results"`
	Candidates []string           `json:"candidates"`
	Plans      []string           `json:"plans"`
	ErrorCount int                `json:"error_count"`
	Summary    string             `json:"summary"`
	Tick       *runner.TickStatus `json:"tick,omitempty"`
}
