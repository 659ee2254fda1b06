package gates

import (
	"fmt"
	"math"

	"binance-ats/config"
	"binance-ats/internal/binance"
)

// Sentinel metrics for a book that cannot be evaluated. They fail gate D
// under any sane thresholds.
const (
	SentinelSpreadBps = 1e9
	SentinelImpactBps = 1e9
	SentinelOBIAbs    = 1.0
)

// Orderbook holds the gate D book metrics.
type Orderbook struct {
	SpreadBps float64 `json:"spread_bps"`
	ImpactBps float64 `json:"impact_bps"`
	OBIAbs    float64 `json:"obi_abs"`
}

func sentinelBook() Orderbook {
	return Orderbook{SpreadBps: SentinelSpreadBps, ImpactBps: SentinelImpactBps, OBIAbs: SentinelOBIAbs}
}

// EstimateOrderbookMetrics measures spread, the price impact of a market buy
// of notional USDT walked through the asks, and the absolute quantity
// imbalance over the top levels.
func EstimateOrderbookMetrics(book *binance.OrderBook, mid, notional float64, topN int) Orderbook {
	if book == nil || mid <= 0 {
		return sentinelBook()
	}
	bids := book.BidLevels(topN)
	asks := book.AskLevels(topN)
	if len(bids) == 0 || len(asks) == 0 {
		return sentinelBook()
	}

	m := Orderbook{SpreadBps: (asks[0].Price - bids[0].Price) / mid * 1e4}

	var sumBid, sumAsk float64
	for _, l := range bids {
		sumBid += l.Quantity
	}
	for _, l := range asks {
		sumAsk += l.Quantity
	}
	m.OBIAbs = math.Abs((sumBid - sumAsk) / math.Max(1e-9, sumBid+sumAsk))

	need := notional / mid
	remaining := need
	cost := 0.0
	for _, l := range asks {
		take := math.Min(remaining, l.Quantity)
		cost += take * l.Price
		remaining -= take
		if remaining <= 1e-12 {
			break
		}
	}
	if remaining > 1e-12 {
		m.ImpactBps = SentinelImpactBps
	} else {
		m.ImpactBps = (cost/need - mid) / mid * 1e4
	}
	return m
}

// GateD rejects setups that cannot be executed cheaply or have too little
// room to the first target.
func GateD(m Orderbook, roomATR, costR float64, th config.GateDThresholds) (bool, string) {
	switch {
	case m.SpreadBps > th.SpreadBps:
		return false, fmt.Sprintf("spread %.2f bps > %.2f", m.SpreadBps, th.SpreadBps)
	case m.ImpactBps > th.ImpactBps:
		return false, fmt.Sprintf("impact %.2f bps > %.2f", m.ImpactBps, th.ImpactBps)
	case m.OBIAbs > th.OBIAbs:
		return false, fmt.Sprintf("book imbalance %.2f > %.2f", m.OBIAbs, th.OBIAbs)
	case roomATR < th.RoomATRMin:
		return false, fmt.Sprintf("room %.2f ATR < %.2f", roomATR, th.RoomATRMin)
	case costR > th.CostRMax:
		return false, fmt.Sprintf("cost %.3f R > %.3f", costR, th.CostRMax)
	}
	return true, ""
}
