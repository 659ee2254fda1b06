// Package gates holds the four entry filters a scored candidate must pass in
// order: breakout (A), pullback confirmation (B), crowding (C) and
// executability (D).
package gates

import (
	"fmt"
	"math"

	"binance-ats/config"
	"binance-ats/internal/indicators"
	"binance-ats/internal/series"
)

const atrPeriod = 14

// GateA checks for a true breakout: the last close clears the highest high of
// the previous lookback bars (the current bar excluded) by the pad. When set,
// the close must also clear that high by close_margin_atr ATRs and the bar
// body may not exceed body_atr_max ATRs.
func GateA(s series.Series, th config.GateAThresholds) (bool, string) {
	n := s.Len()
	if th.Lookback <= 0 || n < th.Lookback+1 {
		return false, fmt.Sprintf("need %d bars, have %d", th.Lookback+1, n)
	}

	highs := s.Highs()
	hh := highs[n-1-th.Lookback]
	for _, h := range highs[n-th.Lookback : n-1] {
		hh = math.Max(hh, h)
	}

	last := s.Last()
	if last.Close <= hh*(1+th.BreakoutPad) {
		return false, fmt.Sprintf("close %.6g below breakout level %.6g", last.Close, hh*(1+th.BreakoutPad))
	}

	if th.CloseMarginATR <= 0 && th.BodyATRMax <= 0 {
		return true, ""
	}

	atr := indicators.Last(indicators.ATR(highs, s.Lows(), s.Closes(), atrPeriod))
	if math.IsNaN(atr) || atr <= 0 {
		return false, "atr undefined"
	}
	if th.CloseMarginATR > 0 && last.Close-hh < th.CloseMarginATR*atr {
		return false, fmt.Sprintf("close margin %.3f ATR below %.3f", (last.Close-hh)/atr, th.CloseMarginATR)
	}
	if th.BodyATRMax > 0 {
		if body := math.Abs(last.Close-last.Open) / atr; body > th.BodyATRMax {
			return false, fmt.Sprintf("body %.3f ATR above %.3f", body, th.BodyATRMax)
		}
	}
	return true, ""
}

// GateB confirms a controlled pullback: close above EMA(n), the low within
// near_ema_atr ATRs of that EMA, a body of at least body_min (normalised by
// ATR or by the bar range) and, when set, a close in the top close_zone of
// the range.
func GateB(s series.Series, th config.GateBThresholds) (bool, string) {
	if s.Len() == 0 {
		return false, "empty series"
	}
	closes := s.Closes()
	ema := indicators.Last(indicators.EMA(closes, th.EMAPeriod))
	atr := indicators.Last(indicators.ATR(s.Highs(), s.Lows(), closes, atrPeriod))
	if math.IsNaN(ema) || math.IsNaN(atr) || atr <= 0 {
		return false, "ema or atr undefined"
	}

	last := s.Last()
	if last.Close <= ema {
		return false, fmt.Sprintf("close %.6g not above ema %.6g", last.Close, ema)
	}
	if dist := math.Abs(last.Low - ema); dist > th.NearEMAATR*atr {
		return false, fmt.Sprintf("low %.3f ATR from ema, limit %.3f", dist/atr, th.NearEMAATR)
	}

	rng := last.High - last.Low + 1e-12
	body := math.Abs(last.Close - last.Open)
	var ratio float64
	switch th.BodyNorm {
	case config.BodyNormRange:
		ratio = body / rng
	default:
		ratio = body / atr
	}
	if ratio < th.BodyMin {
		return false, fmt.Sprintf("body ratio %.3f below %.3f", ratio, th.BodyMin)
	}

	if th.CloseZone > 0 {
		if zone := (last.Close - last.Low) / rng; zone < th.CloseZone {
			return false, fmt.Sprintf("close zone %.3f below %.3f", zone, th.CloseZone)
		}
	}
	return true, ""
}
