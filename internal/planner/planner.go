// Package planner turns a candidate that passed every gate into an entry
// ladder with stop and targets expressed as ATR multiples.
package planner

import (
	"errors"
	"fmt"
	"math"

	"binance-ats/config"
	"binance-ats/internal/indicators"
	"binance-ats/internal/series"
)

var (
	// ErrShortUnsupported is returned for short plans; only longs are planned.
	ErrShortUnsupported = errors.New("planner: short side is not supported")
	// ErrInvalidATR is returned when ATR is undefined or not positive.
	ErrInvalidATR = errors.New("planner: atr undefined")
)

// Side of a plan.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

const minR = 1e-8

// Plan is an immutable long entry ladder. Entries are ordered nearest first.
type Plan struct {
	Symbol   string     `json:"symbol"`
	Side     Side       `json:"side"`
	Close    float64    `json:"close"`
	ATR      float64    `json:"atr"`
	Entries  [3]float64 `json:"entries"`
	Weights  [3]float64 `json:"weights"`
	StopLoss float64    `json:"sl"`
	TP1      float64    `json:"tp1"`
	TP2      float64    `json:"tp2"`
	R        float64    `json:"R"`
	CostR    float64    `json:"costR"`
	RoomATR  float64    `json:"room"`
}

// WeightSum is the total ladder weight.
func (p *Plan) WeightSum() float64 {
	return p.Weights[0] + p.Weights[1] + p.Weights[2]
}

// Build computes the plan for the last bar of s.
//
//	l_i  = close - entry_i*ATR
//	sl   = close - sl*ATR
//	tp_k = close + tp_k*ATR
//	R    = max(l1 - sl, 1e-8)
//	room = (tp1 - l1) / ATR
//
// CostR is the configured cost_r when positive, otherwise cost_bps of the
// first entry expressed in R.
func Build(s series.Series, side Side, cfg config.PlannerConfig) (*Plan, error) {
	if side == Short {
		return nil, ErrShortUnsupported
	}
	if side != Long {
		return nil, fmt.Errorf("planner: unknown side %q", side)
	}
	if s.Len() == 0 {
		return nil, fmt.Errorf("%w: empty series", ErrInvalidATR)
	}

	period := cfg.ATRPeriod
	if period <= 0 {
		period = 14
	}
	atr := indicators.Last(indicators.ATR(s.Highs(), s.Lows(), s.Closes(), period))
	if math.IsNaN(atr) || atr <= 0 {
		return nil, fmt.Errorf("%w: %s atr(%d) over %d bars", ErrInvalidATR, s.Symbol, period, s.Len())
	}

	c := s.Last().Close
	p := &Plan{
		Symbol:   s.Symbol,
		Side:     Long,
		Close:    c,
		ATR:      atr,
		Weights:  cfg.Weights,
		StopLoss: c - cfg.SL*atr,
		TP1:      c + cfg.TP1*atr,
		TP2:      c + cfg.TP2*atr,
	}
	for i, mult := range cfg.Entry {
		p.Entries[i] = c - mult*atr
	}

	l1 := p.Entries[0]
	p.R = math.Max(l1-p.StopLoss, minR)
	if cfg.CostR > 0 {
		p.CostR = cfg.CostR
	} else {
		p.CostR = (l1 * cfg.CostBps / 1e4) / p.R
	}
	// Taken from the multipliers so it stays exact at any price level.
	p.RoomATR = cfg.TP1 - cfg.Entry[0]

	return p, nil
}
