// Package overlay keeps a decaying heat score per symbol so that recent large
// movers get scanned ahead of the daily base pool.
package overlay

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"binance-ats/internal/binance"
	"binance-ats/internal/logging"
	"binance-ats/internal/store"
)

const minHalfLifeHours = 0.1

// Overlay operates on the overlay_queue table of a store.
type Overlay struct {
	store  store.Store
	logger *logging.Logger
}

func New(s store.Store) *Overlay {
	return &Overlay{store: s, logger: logging.WithComponent("overlay")}
}

// Decay multiplies every heat by 0.5^(elapsed/halfLife) and stamps now. Rows
// are updated in a single transaction. Zero elapsed time leaves heat as is.
func (o *Overlay) Decay(ctx context.Context, now time.Time, halfLifeHours float64) error {
	hl := math.Max(minHalfLifeHours, halfLifeHours) * 3600
	nowTS := now.Unix()

	err := o.store.UpdateHeat(ctx, func(e store.HeatEntry) store.HeatEntry {
		last := e.TS
		if last == 0 {
			last = nowTS
		}
		dt := math.Max(0, float64(nowTS-last))
		e.Heat = math.Max(0, e.Heat*math.Pow(0.5, dt/hl))
		e.TS = nowTS
		return e
	})
	if err != nil {
		return fmt.Errorf("overlay decay: %w", err)
	}
	return nil
}

// Bump adds weight to each USDT symbol. Non-positive weights are ignored.
func (o *Overlay) Bump(ctx context.Context, now time.Time, symbols []string, weight float64) error {
	if weight <= 0 {
		return nil
	}
	seen := make(map[string]bool, len(symbols))
	picked := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" || !strings.HasSuffix(s, "USDT") || seen[s] {
			continue
		}
		seen[s] = true
		picked = append(picked, s)
	}
	if len(picked) == 0 {
		return nil
	}

	if err := o.store.AddHeat(ctx, picked, weight, now); err != nil {
		return fmt.Errorf("overlay bump: %w", err)
	}
	o.logger.Debug("overlay bumped", "symbols", len(picked), "weight", weight)
	return nil
}

// Top returns up to limit symbols with heat above minHeat, hottest first.
func (o *Overlay) Top(ctx context.Context, limit int, minHeat float64) ([]string, error) {
	entries, err := o.Entries(ctx, limit, minHeat)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Symbol
	}
	return out, nil
}

// Entries is Top with the heat values.
func (o *Overlay) Entries(ctx context.Context, limit int, minHeat float64) ([]store.HeatEntry, error) {
	entries, err := o.store.TopHeat(ctx, limit, minHeat)
	if err != nil {
		return nil, fmt.Errorf("overlay top: %w", err)
	}
	return entries, nil
}

// UpdateFromTickers bumps the k USDT symbols with the largest absolute 24h
// change and returns them.
func (o *Overlay) UpdateFromTickers(ctx context.Context, now time.Time, tickers []binance.Ticker24h, k int, weight float64) ([]string, error) {
	movers := make([]binance.Ticker24h, 0, len(tickers))
	for _, t := range tickers {
		if strings.HasSuffix(t.Symbol, "USDT") {
			movers = append(movers, t)
		}
	}
	sort.SliceStable(movers, func(i, j int) bool {
		return math.Abs(movers[i].PriceChangePercent) > math.Abs(movers[j].PriceChangePercent)
	})
	if k >= 0 && len(movers) > k {
		movers = movers[:k]
	}

	symbols := make([]string, len(movers))
	for i, t := range movers {
		symbols[i] = t.Symbol
	}
	if err := o.Bump(ctx, now, symbols, weight); err != nil {
		return nil, err
	}
	return symbols, nil
}
