package series

import (
	"errors"
	"testing"

	"binance-ats/internal/binance"
)

func TestFromKlines(t *testing.T) {
	klines := []binance.Kline{
		{OpenTime: 1, Open: 10, High: 12, Low: 9, Close: 11, Volume: 100, CloseTime: 2},
		{OpenTime: 3, Open: 11, High: 13, Low: 10, Close: 12.5, Volume: 150, CloseTime: 4},
	}
	s := FromKlines("BTCUSDT", "1h", klines)

	if s.Len() != 2 {
		t.Fatalf("expected 2 candles, got %d", s.Len())
	}
	if s.Last().Close != 12.5 {
		t.Errorf("expected last close 12.5, got %v", s.Last().Close)
	}
	if got := s.Highs(); got[0] != 12 || got[1] != 13 {
		t.Errorf("unexpected highs %v", got)
	}
	if got := s.Volumes(); got[1] != 150 {
		t.Errorf("unexpected volumes %v", got)
	}
}

func TestColumnsAreCopies(t *testing.T) {
	s := Series{Candles: []Candle{{Close: 1}, {Close: 2}}}
	closes := s.Closes()
	closes[0] = 99
	if s.Candles[0].Close != 1 {
		t.Error("mutating a column must not change the series")
	}
}

func TestRequire(t *testing.T) {
	s := Series{Symbol: "ETHUSDT", Candles: make([]Candle, 10)}
	if err := s.Require(10); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := s.Require(11); !errors.Is(err, ErrInsufficientHistory) {
		t.Errorf("expected ErrInsufficientHistory, got %v", err)
	}
}
