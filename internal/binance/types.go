package binance

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kline is one candlestick row from /fapi/v1/klines.
type Kline struct {
	OpenTime                 int64
	Open                     float64
	High                     float64
	Low                      float64
	Close                    float64
	Volume                   float64
	CloseTime                int64
	QuoteAssetVolume         float64
	NumberOfTrades           int
	TakerBuyBaseAssetVolume  float64
	TakerBuyQuoteAssetVolume float64
}

// Ticker24h represents 24hr ticker statistics for futures
type Ticker24h struct {
	Symbol             string  `json:"symbol"`
	PriceChange        float64 `json:"priceChange,string"`
	PriceChangePercent float64 `json:"priceChangePercent,string"`
	LastPrice          float64 `json:"lastPrice,string"`
	HighPrice          float64 `json:"highPrice,string"`
	LowPrice           float64 `json:"lowPrice,string"`
	Volume             float64 `json:"volume,string"`
	QuoteVolume        float64 `json:"quoteVolume,string"`
	OpenTime           int64   `json:"openTime"`
	CloseTime          int64   `json:"closeTime"`
	Count              int64   `json:"count"`
}

// OrderBook is a depth snapshot with [price, qty] string pairs.
type OrderBook struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	EventTime    int64      `json:"E"`
	TransactTime int64      `json:"T"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// Level is a parsed order book level.
type Level struct {
	Price    float64
	Quantity float64
}

// BidLevels parses up to n bid levels, skipping malformed rows.
func (b *OrderBook) BidLevels(n int) []Level {
	return parseLevels(b.Bids, n)
}

// AskLevels parses up to n ask levels, skipping malformed rows.
func (b *OrderBook) AskLevels(n int) []Level {
	return parseLevels(b.Asks, n)
}

func parseLevels(rows [][]string, n int) []Level {
	if n <= 0 || n > len(rows) {
		n = len(rows)
	}
	out := make([]Level, 0, n)
	for _, row := range rows[:n] {
		if len(row) < 2 {
			continue
		}
		p, err1 := strconv.ParseFloat(row[0], 64)
		q, err2 := strconv.ParseFloat(row[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, Level{Price: p, Quantity: q})
	}
	return out
}

// FundingRate is one record from /fapi/v1/fundingRate. Older records carry an
// empty markPrice, so fields are decoded leniently.
type FundingRate struct {
	Symbol      string
	FundingRate float64
	FundingTime int64
	MarkPrice   float64
}

func (f *FundingRate) UnmarshalJSON(data []byte) error {
	var raw struct {
		Symbol      string `json:"symbol"`
		FundingRate string `json:"fundingRate"`
		FundingTime int64  `json:"fundingTime"`
		MarkPrice   string `json:"markPrice"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.Symbol = raw.Symbol
	f.FundingTime = raw.FundingTime
	f.FundingRate = parseLenient(raw.FundingRate)
	f.MarkPrice = parseLenient(raw.MarkPrice)
	return nil
}

// PremiumIndex carries mark price and the current funding rate.
type PremiumIndex struct {
	Symbol          string  `json:"symbol"`
	MarkPrice       float64 `json:"markPrice,string"`
	IndexPrice      float64 `json:"indexPrice,string"`
	LastFundingRate float64 `json:"lastFundingRate,string"`
	NextFundingTime int64   `json:"nextFundingTime"`
	Time            int64   `json:"time"`
}

// ExchangeInfo is the subset of /fapi/v1/exchangeInfo used for order rounding.
type ExchangeInfo struct {
	ServerTime int64        `json:"serverTime"`
	Symbols    []SymbolInfo `json:"symbols"`
}

type SymbolInfo struct {
	Symbol       string         `json:"symbol"`
	Status       string         `json:"status"`
	ContractType string         `json:"contractType"`
	QuoteAsset   string         `json:"quoteAsset"`
	Filters      []SymbolFilter `json:"filters"`
}

type SymbolFilter struct {
	FilterType  string `json:"filterType"`
	TickSize    string `json:"tickSize,omitempty"`
	StepSize    string `json:"stepSize,omitempty"`
	MinQty      string `json:"minQty,omitempty"`
	MinNotional string `json:"notional,omitempty"`
}

// Symbol returns the info for symbol, if listed.
func (e *ExchangeInfo) Symbol(symbol string) (*SymbolInfo, bool) {
	for i := range e.Symbols {
		if e.Symbols[i].Symbol == symbol {
			return &e.Symbols[i], true
		}
	}
	return nil, false
}

// Filter returns the filter of the given type, if present.
func (s *SymbolInfo) Filter(filterType string) (SymbolFilter, bool) {
	for _, f := range s.Filters {
		if f.FilterType == filterType {
			return f, true
		}
	}
	return SymbolFilter{}, false
}

// AccountInfo is the subset of /fapi/v2/account the bot reads.
type AccountInfo struct {
	TotalWalletBalance    float64 `json:"totalWalletBalance,string"`
	TotalUnrealizedProfit float64 `json:"totalUnrealizedProfit,string"`
	AvailableBalance      float64 `json:"availableBalance,string"`
	CanTrade              bool    `json:"canTrade"`
}

// Position is one row of /fapi/v2/positionRisk.
type Position struct {
	Symbol           string  `json:"symbol"`
	PositionAmt      float64 `json:"positionAmt,string"`
	EntryPrice       float64 `json:"entryPrice,string"`
	MarkPrice        float64 `json:"markPrice,string"`
	UnrealizedProfit float64 `json:"unRealizedProfit,string"`
	PositionSide     string  `json:"positionSide"`
}

// Order side, type and time-in-force values used by the runner.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	OrderTypeLimit = "LIMIT"

	TimeInForceGTC = "GTC"
	TimeInForceGTX = "GTX" // post-only
)

// OrderParams describes a new order. Price and Quantity are preformatted
// decimal strings so tick/step rounding survives transport unchanged.
type OrderParams struct {
	Symbol        string
	Side          string
	Type          string
	TimeInForce   string
	Quantity      string
	Price         string
	ReduceOnly    bool
	ClientOrderID string
}

// Order is the order acknowledgement and the open-order row shape.
type Order struct {
	OrderID       int64   `json:"orderId"`
	Symbol        string  `json:"symbol"`
	Status        string  `json:"status"`
	ClientOrderID string  `json:"clientOrderId"`
	Price         float64 `json:"price,string"`
	OrigQty       float64 `json:"origQty,string"`
	ExecutedQty   float64 `json:"executedQty,string"`
	TimeInForce   string  `json:"timeInForce"`
	Type          string  `json:"type"`
	Side          string  `json:"side"`
	UpdateTime    int64   `json:"updateTime"`
}

func parseLenient(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseKlineRow(raw []interface{}) (Kline, error) {
	if len(raw) < 11 {
		return Kline{}, fmt.Errorf("kline row has %d fields", len(raw))
	}
	num := func(i int) (float64, error) {
		switch v := raw[i].(type) {
		case string:
			return strconv.ParseFloat(v, 64)
		case float64:
			return v, nil
		default:
			return 0, fmt.Errorf("kline field %d has type %T", i, raw[i])
		}
	}

	var k Kline
	var err error
	vals := make([]float64, 11)
	for i := range vals {
		if vals[i], err = num(i); err != nil {
			return Kline{}, err
		}
	}
	k.OpenTime = int64(vals[0])
	k.Open = vals[1]
	k.High = vals[2]
	k.Low = vals[3]
	k.Close = vals[4]
	k.Volume = vals[5]
	k.CloseTime = int64(vals[6])
	k.QuoteAssetVolume = vals[7]
	k.NumberOfTrades = int(vals[8])
	k.TakerBuyBaseAssetVolume = vals[9]
	k.TakerBuyQuoteAssetVolume = vals[10]
	return k, nil
}
