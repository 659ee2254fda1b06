// Package series holds the candle window a scan pass evaluates per symbol.
package series

import (
	"errors"
	"fmt"

	"binance-ats/internal/binance"
)

// ErrInsufficientHistory is returned when a series is shorter than a caller needs.
var ErrInsufficientHistory = errors.New("insufficient candle history")

// Candle is one OHLCV bar.
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"close_time"`
}

// Series is an ordered, oldest-first candle window. It is not modified after
// construction; column accessors return fresh slices.
type Series struct {
	Symbol   string
	Interval string
	Candles  []Candle
}

// FromKlines converts exchange klines into a Series.
func FromKlines(symbol, interval string, klines []binance.Kline) Series {
	candles := make([]Candle, len(klines))
	for i, k := range klines {
		candles[i] = Candle{
			OpenTime:  k.OpenTime,
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
			CloseTime: k.CloseTime,
		}
	}
	return Series{Symbol: symbol, Interval: interval, Candles: candles}
}

func (s Series) Len() int { return len(s.Candles) }

// Last returns the most recent candle. It panics on an empty series.
func (s Series) Last() Candle { return s.Candles[len(s.Candles)-1] }

// Require returns ErrInsufficientHistory when fewer than n candles exist.
func (s Series) Require(n int) error {
	if len(s.Candles) < n {
		return fmt.Errorf("%w: %s has %d bars, need %d", ErrInsufficientHistory, s.Symbol, len(s.Candles), n)
	}
	return nil
}

func (s Series) column(f func(Candle) float64) []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = f(c)
	}
	return out
}

func (s Series) Opens() []float64   { return s.column(func(c Candle) float64 { return c.Open }) }
func (s Series) Highs() []float64   { return s.column(func(c Candle) float64 { return c.High }) }
func (s Series) Lows() []float64    { return s.column(func(c Candle) float64 { return c.Low }) }
func (s Series) Closes() []float64  { return s.column(func(c Candle) float64 { return c.Close }) }
func (s Series) Volumes() []float64 { return s.column(func(c Candle) float64 { return c.Volume }) }
