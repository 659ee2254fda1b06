package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"binance-ats/config"
	"binance-ats/internal/logging"
	"binance-ats/internal/store"
)

// Guard layers per-symbol cooldowns and an hourly budget of new opens on top
// of the switch gate. State lives in the store so restarts keep it.
type Guard struct {
	store  store.Store
	config config.RunnerConfig
	logger *logging.Logger
	mu     sync.Mutex
}

// NewGuard creates a new Guard
func NewGuard(s store.Store, cfg config.RunnerConfig) *Guard {
	return &Guard{
		store:  s,
		config: cfg,
		logger: logging.WithComponent("risk"),
	}
}

// CanOpen checks whether a new position on symbol/side may be opened at now.
// A false result carries the reason; err is only set when the store fails.
func (g *Guard) CanOpen(ctx context.Context, sw Switches, symbol, side string, now time.Time) (bool, string, error) {
	if ok, reason := AllowNewOpen(sw, now); !ok {
		return false, reason, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	until, err := g.store.CooldownUntil(ctx, symbol, side)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return false, "", fmt.Errorf("cooldown lookup: %w", err)
	case now.Before(until):
		return false, fmt.Sprintf("cooldown until %s", until.UTC().Format("15:04")), nil
	}

	if g.config.MaxNewPerHour > 0 {
		used, err := g.store.RiskUsedSince(ctx, now.UTC().Truncate(time.Hour))
		if err != nil {
			return false, "", fmt.Errorf("risk budget lookup: %w", err)
		}
		if used >= float64(g.config.MaxNewPerHour) {
			return false, fmt.Sprintf("hourly budget used (%.0f/%d)", used, g.config.MaxNewPerHour), nil
		}
	}

	return true, "", nil
}

// RecordOpen stamps the cooldown and consumes one unit of the hourly budget.
// portfolioR is the total planned risk in R units and is stored for reporting.
func (g *Guard) RecordOpen(ctx context.Context, symbol, side string, now time.Time, portfolioR float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	until := now.Add(g.config.Cooldown)
	if err := g.store.SetCooldown(ctx, symbol, side, until, "opened"); err != nil {
		return err
	}
	if err := g.store.RecordRiskUsage(ctx, now, 1, portfolioR); err != nil {
		return err
	}

	g.logger.Info("position opened",
		"symbol", symbol,
		"side", side,
		"cooldown_until", until.UTC().Format(time.RFC3339))
	return nil
}

// Remaining returns how many new opens are left in the current hour, or -1
// when the budget is unlimited.
func (g *Guard) Remaining(ctx context.Context, now time.Time) (int, error) {
	if g.config.MaxNewPerHour <= 0 {
		return -1, nil
	}
	used, err := g.store.RiskUsedSince(ctx, now.UTC().Truncate(time.Hour))
	if err != nil {
		return 0, err
	}
	left := g.config.MaxNewPerHour - int(used)
	if left < 0 {
		left = 0
	}
	return left, nil
}
