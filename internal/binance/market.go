package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// ServerTime returns the exchange clock in milliseconds.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	resp, err := c.publicGet(ctx, "/fapi/v1/time", nil)
	if err != nil {
		return 0, fmt.Errorf("error fetching server time: %w", err)
	}

	var st struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(resp, &st); err != nil {
		return 0, fmt.Errorf("error parsing server time: %w", err)
	}
	return st.ServerTime, nil
}

// SyncTime stores the offset between the exchange clock and the local clock
// so signed requests stay inside recvWindow.
func (c *Client) SyncTime(ctx context.Context) (int64, error) {
	before := c.now().UnixMilli()
	server, err := c.ServerTime(ctx)
	if err != nil {
		return 0, err
	}
	after := c.now().UnixMilli()

	offset := server - (before+after)/2
	c.timeOffset.Store(offset)
	c.logger.Debug("server time synced", "offset_ms", offset)
	return offset, nil
}

// Klines retrieves candlestick data, oldest first.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	resp, err := c.publicGet(ctx, "/fapi/v1/klines", url.Values{
		"symbol":   {symbol},
		"interval": {interval},
		"limit":    {strconv.Itoa(limit)},
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching klines for %s: %w", symbol, err)
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(resp, &rawKlines); err != nil {
		return nil, fmt.Errorf("error parsing klines for %s: %w", symbol, err)
	}

	klines := make([]Kline, 0, len(rawKlines))
	for i, raw := range rawKlines {
		k, err := parseKlineRow(raw)
		if err != nil {
			return nil, fmt.Errorf("error parsing kline %d for %s: %w", i, symbol, err)
		}
		klines = append(klines, k)
	}

	return klines, nil
}

// Tickers24h retrieves 24 hour statistics for every symbol.
func (c *Client) Tickers24h(ctx context.Context) ([]Ticker24h, error) {
	resp, err := c.publicGet(ctx, "/fapi/v1/ticker/24hr", nil)
	if err != nil {
		return nil, fmt.Errorf("error fetching all 24hr tickers: %w", err)
	}

	var tickers []Ticker24h
	if err := json.Unmarshal(resp, &tickers); err != nil {
		return nil, fmt.Errorf("error parsing 24hr tickers: %w", err)
	}

	return tickers, nil
}

// Depth retrieves the order book. Valid limits are 5, 10, 20, 50, 100, 500, 1000.
func (c *Client) Depth(ctx context.Context, symbol string, limit int) (*OrderBook, error) {
	resp, err := c.publicGet(ctx, "/fapi/v1/depth", url.Values{
		"symbol": {symbol},
		"limit":  {strconv.Itoa(limit)},
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching order book for %s: %w", symbol, err)
	}

	var orderBook OrderBook
	if err := json.Unmarshal(resp, &orderBook); err != nil {
		return nil, fmt.Errorf("error parsing order book for %s: %w", symbol, err)
	}

	return &orderBook, nil
}

// FundingRates retrieves the most recent funding records, oldest first.
func (c *Client) FundingRates(ctx context.Context, symbol string, limit int) ([]FundingRate, error) {
	resp, err := c.publicGet(ctx, "/fapi/v1/fundingRate", url.Values{
		"symbol": {symbol},
		"limit":  {strconv.Itoa(limit)},
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching funding rates for %s: %w", symbol, err)
	}

	var rates []FundingRate
	if err := json.Unmarshal(resp, &rates); err != nil {
		return nil, fmt.Errorf("error parsing funding rates for %s: %w", symbol, err)
	}

	return rates, nil
}

// PremiumIndex retrieves mark price and current funding for one symbol.
func (c *Client) PremiumIndex(ctx context.Context, symbol string) (*PremiumIndex, error) {
	resp, err := c.publicGet(ctx, "/fapi/v1/premiumIndex", url.Values{"symbol": {symbol}})
	if err != nil {
		return nil, fmt.Errorf("error fetching premium index for %s: %w", symbol, err)
	}

	var pi PremiumIndex
	if err := json.Unmarshal(resp, &pi); err != nil {
		return nil, fmt.Errorf("error parsing premium index for %s: %w", symbol, err)
	}
	return &pi, nil
}

// ExchangeInfo retrieves symbol listing and trading filters.
func (c *Client) ExchangeInfo(ctx context.Context) (*ExchangeInfo, error) {
	resp, err := c.publicGet(ctx, "/fapi/v1/exchangeInfo", nil)
	if err != nil {
		return nil, fmt.Errorf("error fetching exchange info: %w", err)
	}

	var info ExchangeInfo
	if err := json.Unmarshal(resp, &info); err != nil {
		return nil, fmt.Errorf("error parsing exchange info: %w", err)
	}

	return &info, nil
}
