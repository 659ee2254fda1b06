package scanner

import (
	"context"
	"errors"
	"fmt"
	"math"

	"binance-ats/internal/binance"
	"binance-ats/internal/gates"
	"binance-ats/internal/logging"
	"binance-ats/internal/metrics"
	"binance-ats/internal/planner"
	"binance-ats/internal/risk"
	"binance-ats/internal/runner"
	"binance-ats/internal/scoring"
	"binance-ats/internal/series"
	"binance-ats/internal/store"
)

// evaluateSafely runs the symbol pipeline and converts errors and panics
// into the result so one bad symbol never ends the pass.
func (sc *Scanner) evaluateSafely(ctx context.Context, scanLog *logging.Logger, symbol string, sw risk.Switches) (r SymbolResult) {
	r.Symbol = symbol
	defer func() {
		if p := recover(); p != nil {
			r.Error = fmt.Sprintf("panic: %v", p)
			sc.symbolFailed(scanLog, symbol, errors.New(r.Error))
		}
	}()

	if err := sc.evaluate(ctx, scanLog, &r, sw); err != nil {
		r.Error = err.Error()
		sc.symbolFailed(scanLog, symbol, err)
	}
	return r
}

func (sc *Scanner) symbolFailed(scanLog *logging.Logger, symbol string, err error) {
	logging.SymbolContext(scanLog, symbol, "evaluate").Warn("symbol failed", "error", err)
	sc.deps.Metrics.Symbol(metrics.OutcomeError)
	sc.deps.Bus.PublishSymbolError(symbol, err)
}

// evaluate runs klines, scoring, the A+ filter, gates A to D with the plan
// built before gate D, then persists the plan and executes it live or dry.
func (sc *Scanner) evaluate(ctx context.Context, scanLog *logging.Logger, r *SymbolResult, sw risk.Switches) error {
	cfg := sc.config
	th := cfg.Thresholds

	klines, err := sc.deps.Market.Klines(ctx, r.Symbol, cfg.SamplingConfig.Interval, cfg.SamplingConfig.Bars)
	if err != nil {
		return fmt.Errorf("klines: %w", err)
	}
	s := series.FromKlines(r.Symbol, cfg.SamplingConfig.Interval, klines)
	if err := s.Require(th.Gates.A.Lookback + 1); err != nil {
		return err
	}

	r.Score = scoring.Score(s, th)
	r.Scored = true
	if !scoring.APlus(r.Score, th.APlus) {
		sc.deps.Metrics.Symbol(metrics.OutcomeNotAPlus)
		return nil
	}
	r.APlus = true
	sc.deps.Metrics.Symbol(metrics.OutcomeCandidate)

	var plan *planner.Plan
	pipeline := gates.NewPipeline(
		func(context.Context) (bool, string, error) {
			pass, reason := gates.GateA(s, th.Gates.A)
			return pass, reason, nil
		},
		func(context.Context) (bool, string, error) {
			pass, reason := gates.GateB(s, th.Gates.B)
			return pass, reason, nil
		},
		func(ctx context.Context) (bool, string, error) {
			rates, err := sc.deps.Market.FundingRates(ctx, r.Symbol, th.Gates.C.FundingLimit)
			if err != nil {
				return false, "", fmt.Errorf("funding: %w", err)
			}
			history := make([]float64, len(rates))
			for i, fr := range rates {
				history[i] = fr.FundingRate
			}
			m := gates.CrowdingMetrics(s, history)
			r.Crowd = &m
			pass, reason := gates.GateC(m, th.Gates.C)
			return pass, reason, nil
		},
		func(ctx context.Context) (bool, string, error) {
			p, err := planner.Build(s, planner.Long, cfg.PlannerConfig)
			if err != nil {
				return false, "", fmt.Errorf("plan: %w", err)
			}
			plan = p

			book, err := sc.deps.Market.Depth(ctx, r.Symbol, th.Gates.D.DepthLevels)
			if err != nil {
				return false, "", fmt.Errorf("depth: %w", err)
			}
			m := gates.EstimateOrderbookMetrics(book, sc.mid(ctx, r.Symbol, book), th.Gates.D.NotionalUSDT, th.Gates.D.DepthLevels)
			r.Book = &m
			pass, reason := gates.GateD(m, p.RoomATR, p.CostR, th.Gates.D)
			return pass, reason, nil
		},
	)

	report, err := pipeline.Run(ctx)
	r.Gates = report
	if err != nil {
		return err
	}
	if !report.Passed {
		sc.deps.Metrics.GateRejected(report.RejectedBy)
		sc.deps.Metrics.Symbol(metrics.OutcomeRejected)
		logging.SymbolContext(scanLog, r.Symbol, "gates").Debug("rejected", "gate", report.RejectedBy, "reason", report.Reason)
		return nil
	}
	r.Plan = plan

	now := sc.now()
	allowed, why, err := sc.deps.Guard.CanOpen(ctx, sw, r.Symbol, string(plan.Side), now)
	if err != nil {
		return fmt.Errorf("risk guard: %w", err)
	}
	r.Mode = store.ModeDry
	if allowed {
		r.Mode = store.ModeLive
	} else {
		r.Blocked = why
	}

	if err := sc.deps.Executor.OnPlan(ctx, plan, report, r.Mode); err != nil {
		return fmt.Errorf("record plan: %w", err)
	}
	sc.deps.Metrics.Plan(r.Mode)
	sc.deps.Metrics.Symbol(metrics.OutcomePlanned)

	legs, err := sc.deps.Executor.PlaceOrders(ctx, plan, !allowed)
	r.Legs = legs
	switch {
	case errors.Is(err, runner.ErrNoLegs):
		sc.deps.Metrics.Order("skipped")
		r.Blocked = "no placeable legs"
		return nil
	case err != nil:
		sc.deps.Metrics.Order("failed")
		return fmt.Errorf("place orders: %w", err)
	case allowed:
		sc.deps.Metrics.Order("placed")
	default:
		sc.deps.Metrics.Order("dry")
	}

	logging.SymbolContext(scanLog, r.Symbol, "runner").Info("plan executed",
		"mode", r.Mode,
		"legs", len(legs),
		"blocked", r.Blocked)
	return nil
}

// mid prefers the mark price and falls back to the book mid.
func (sc *Scanner) mid(ctx context.Context, symbol string, book *binance.OrderBook) float64 {
	idx, err := sc.deps.Market.PremiumIndex(ctx, symbol)
	if err == nil && idx.MarkPrice > 0 {
		return idx.MarkPrice
	}
	if err != nil {
		sc.logger.Debug("mark price unavailable, using book mid", "symbol", symbol, "error", err)
	}
	if book == nil {
		return 0
	}
	bids, asks := book.BidLevels(1), book.AskLevels(1)
	if len(bids) == 0 || len(asks) == 0 {
		return 0
	}
	return (bids[0].Price + asks[0].Price) / 2
}

func roundInt(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(math.Round(v))
}
