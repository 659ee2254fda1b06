// Package runner persists plans and turns them into post-only entry ladders.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"binance-ats/config"
	"binance-ats/internal/binance"
	"binance-ats/internal/events"
	"binance-ats/internal/gates"
	"binance-ats/internal/logging"
	"binance-ats/internal/planner"
	"binance-ats/internal/store"

	"github.com/shopspring/decimal"
)

// ErrNoLegs is returned when every leg falls below the exchange minimums.
var ErrNoLegs = errors.New("runner: no leg meets the exchange minimums")

const exchangeInfoTTL = time.Hour

// Exchange is the subset of the futures client the runner needs.
type Exchange interface {
	ExchangeInfo(ctx context.Context) (*binance.ExchangeInfo, error)
	PlaceOrder(ctx context.Context, params binance.OrderParams) (*binance.Order, error)
	OpenOrders(ctx context.Context, symbol string) ([]binance.Order, error)
	PositionRisk(ctx context.Context) ([]binance.Position, error)
}

// OpenRecorder stamps cooldowns and the hourly budget after a live open.
// *risk.Guard implements it.
type OpenRecorder interface {
	RecordOpen(ctx context.Context, symbol, side string, now time.Time, portfolioR float64) error
}

// Leg is one rung of the entry ladder, rounded to the symbol filters.
type Leg struct {
	Index         int     `json:"index"`
	Price         string  `json:"price"`
	Quantity      string  `json:"quantity"`
	Weight        float64 `json:"weight"`
	ClientOrderID string  `json:"client_order_id"`
	OrderID       int64   `json:"order_id,omitempty"`
	Skipped       string  `json:"skipped,omitempty"`
	Dry           bool    `json:"dry"`
}

// TickStatus is what the monitor saw on the account.
type TickStatus struct {
	OpenOrders int `json:"open_orders"`
	Positions  int `json:"positions"`
}

// Runner executes plans.
type Runner struct {
	exchange Exchange
	store    store.Store
	recorder OpenRecorder
	bus      *events.EventBus
	config   config.RunnerConfig
	logger   *logging.Logger
	now      func() time.Time

	mu     sync.Mutex
	info   *binance.ExchangeInfo
	infoAt time.Time
}

func New(exchange Exchange, s store.Store, recorder OpenRecorder, bus *events.EventBus, cfg config.RunnerConfig) *Runner {
	return &Runner{
		exchange: exchange,
		store:    s,
		recorder: recorder,
		bus:      bus,
		config:   cfg,
		logger:   logging.WithComponent("runner"),
		now:      time.Now,
	}
}

// OnPlan persists a plan with its gate verdicts and the mode it ran in.
func (r *Runner) OnPlan(ctx context.Context, plan *planner.Plan, report gates.Report, mode string) error {
	verdicts, err := json.Marshal(report.Map())
	if err != nil {
		return fmt.Errorf("encode gate verdicts: %w", err)
	}

	rec := store.PlanRecord{
		TS:     r.now().Unix(),
		Symbol: plan.Symbol,
		Side:   string(plan.Side),
		L1:     plan.Entries[0],
		L2:     plan.Entries[1],
		L3:     plan.Entries[2],
		W1:     plan.Weights[0],
		W2:     plan.Weights[1],
		W3:     plan.Weights[2],
		SL:     plan.StopLoss,
		TP1:    plan.TP1,
		TP2:    plan.TP2,
		R:      plan.R,
		CostR:  plan.CostR,
		Room:   plan.RoomATR,
		Gates:  string(verdicts),
		Mode:   mode,
	}
	if err := r.store.InsertPlan(ctx, rec); err != nil {
		return err
	}

	r.logger.Info("plan recorded",
		"symbol", plan.Symbol,
		"mode", mode,
		"l1", plan.Entries[0],
		"sl", plan.StopLoss,
		"tp1", plan.TP1,
		"costR", plan.CostR)
	r.bus.PublishPlanCreated(plan.Symbol, string(plan.Side), mode, plan.Entries[0], plan.StopLoss, plan.TP1)
	return nil
}

// PlaceOrders sizes the ladder from notional_usdt times each weight and
// places one limit BUY per leg. Prices round down to the tick and
// quantities down to the step; legs under the exchange minimums are skipped.
// In dry mode nothing is sent. The first failed placement aborts the
// remaining legs and the legs placed so far are returned with the error.
func (r *Runner) PlaceOrders(ctx context.Context, plan *planner.Plan, dry bool) ([]Leg, error) {
	if plan.Side != planner.Long {
		return nil, planner.ErrShortUnsupported
	}

	filters, err := r.filters(ctx, plan.Symbol)
	if err != nil {
		return nil, err
	}

	legs := r.buildLegs(plan, filters)
	placeable := 0
	for _, l := range legs {
		if l.Skipped == "" {
			placeable++
		}
	}
	if placeable == 0 {
		return legs, ErrNoLegs
	}

	tif := binance.TimeInForceGTC
	if r.config.MakerOnly {
		tif = binance.TimeInForceGTX
	}

	placed := 0
	for i := range legs {
		leg := &legs[i]
		if leg.Skipped != "" {
			r.logger.Debug("leg skipped", "symbol", plan.Symbol, "leg", leg.Index, "reason", leg.Skipped)
			continue
		}
		if dry {
			leg.Dry = true
			r.logger.Info("dry order",
				"symbol", plan.Symbol,
				"leg", leg.Index,
				"price", leg.Price,
				"quantity", leg.Quantity,
				"client_order_id", leg.ClientOrderID)
			r.bus.PublishOrderPlaced(0, plan.Symbol, leg.ClientOrderID, binance.SideBuy, leg.Price, leg.Quantity, true)
			continue
		}

		order, err := r.exchange.PlaceOrder(ctx, binance.OrderParams{
			Symbol:        plan.Symbol,
			Side:          binance.SideBuy,
			Type:          binance.OrderTypeLimit,
			TimeInForce:   tif,
			Quantity:      leg.Quantity,
			Price:         leg.Price,
			ClientOrderID: leg.ClientOrderID,
		})
		if err != nil {
			r.logger.Error("order placement failed, aborting ladder",
				"symbol", plan.Symbol,
				"leg", leg.Index,
				"error", err)
			if placed > 0 {
				r.recordOpen(ctx, plan)
			}
			return legs[:i], fmt.Errorf("place leg %d for %s: %w", leg.Index, plan.Symbol, err)
		}
		leg.OrderID = order.OrderID
		placed++
		r.logger.Info("order placed",
			"symbol", plan.Symbol,
			"leg", leg.Index,
			"order_id", order.OrderID,
			"price", leg.Price,
			"quantity", leg.Quantity)
		r.bus.PublishOrderPlaced(order.OrderID, plan.Symbol, leg.ClientOrderID, binance.SideBuy, leg.Price, leg.Quantity, false)
	}

	if !dry && placed > 0 {
		r.recordOpen(ctx, plan)
	}
	return legs, nil
}

func (r *Runner) recordOpen(ctx context.Context, plan *planner.Plan) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordOpen(ctx, plan.Symbol, string(plan.Side), r.now(), plan.WeightSum()); err != nil {
		r.logger.Error("failed to record open", "symbol", plan.Symbol, "error", err)
	}
}

func (r *Runner) buildLegs(plan *planner.Plan, f Filters) []Leg {
	ladderID := NewLadderID()
	now := r.now()
	notional := decimal.NewFromFloat(r.config.NotionalUSDT)

	legs := make([]Leg, 0, len(plan.Entries))
	for i, entry := range plan.Entries {
		leg := Leg{
			Index:         i + 1,
			Weight:        plan.Weights[i],
			ClientOrderID: NewClientOrderID(now, ladderID, i+1),
		}
		price := FloorTo(decimal.NewFromFloat(entry), f.TickSize)
		leg.Price = Format(price, f.TickSize)

		if plan.Weights[i] <= 0 {
			leg.Skipped = "zero weight"
			legs = append(legs, leg)
			continue
		}
		if !price.IsPositive() {
			leg.Skipped = "price rounds to zero"
			legs = append(legs, leg)
			continue
		}

		qty := FloorTo(notional.Mul(decimal.NewFromFloat(plan.Weights[i])).Div(price), f.StepSize)
		leg.Quantity = Format(qty, f.StepSize)

		switch {
		case !qty.IsPositive() || qty.LessThan(f.MinQty):
			leg.Skipped = "below min qty"
		case qty.Mul(price).LessThan(f.MinNotional):
			leg.Skipped = "below min notional"
		}
		legs = append(legs, leg)
	}
	return legs
}

func (r *Runner) filters(ctx context.Context, symbol string) (Filters, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.info == nil || r.now().Sub(r.infoAt) > exchangeInfoTTL {
		info, err := r.exchange.ExchangeInfo(ctx)
		if err != nil {
			return Filters{}, err
		}
		r.info = info
		r.infoAt = r.now()
	}
	return FiltersFor(r.info, symbol)
}

// Tick is the ladder monitor hook. In live mode it counts open orders and
// non-zero positions; fill handling is not implemented.
func (r *Runner) Tick(ctx context.Context, live bool) (TickStatus, error) {
	var st TickStatus
	if !live {
		return st, nil
	}

	orders, err := r.exchange.OpenOrders(ctx, "")
	if err != nil {
		return st, err
	}
	positions, err := r.exchange.PositionRisk(ctx)
	if err != nil {
		return st, err
	}

	st.OpenOrders = len(orders)
	for _, p := range positions {
		if p.PositionAmt != 0 {
			st.Positions++
		}
	}

	r.logger.Debug("runner tick", "open_orders", st.OpenOrders, "positions", st.Positions)
	r.bus.PublishRunnerTick(st.OpenOrders, st.Positions)
	return st, nil
}
