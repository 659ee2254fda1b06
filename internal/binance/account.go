package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// Account retrieves futures account balances.
func (c *Client) Account(ctx context.Context) (*AccountInfo, error) {
	resp, err := c.signedGet(ctx, "/fapi/v2/account", url.Values{})
	if err != nil {
		return nil, fmt.Errorf("error fetching account info: %w", err)
	}

	var info AccountInfo
	if err := json.Unmarshal(resp, &info); err != nil {
		return nil, fmt.Errorf("error parsing account info: %w", err)
	}
	return &info, nil
}

// PositionRisk retrieves every position row, including flat ones.
func (c *Client) PositionRisk(ctx context.Context) ([]Position, error) {
	resp, err := c.signedGet(ctx, "/fapi/v2/positionRisk", url.Values{})
	if err != nil {
		return nil, fmt.Errorf("error fetching positions: %w", err)
	}

	var positions []Position
	if err := json.Unmarshal(resp, &positions); err != nil {
		return nil, fmt.Errorf("error parsing positions: %w", err)
	}
	return positions, nil
}

// OpenOrders lists open orders; an empty symbol lists all symbols.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	resp, err := c.signedGet(ctx, "/fapi/v1/openOrders", params)
	if err != nil {
		return nil, fmt.Errorf("error fetching open orders: %w", err)
	}

	var orders []Order
	if err := json.Unmarshal(resp, &orders); err != nil {
		return nil, fmt.Errorf("error parsing open orders: %w", err)
	}
	return orders, nil
}

// PlaceOrder places a new futures order
func (c *Client) PlaceOrder(ctx context.Context, params OrderParams) (*Order, error) {
	reqParams := url.Values{
		"symbol":   {params.Symbol},
		"side":     {params.Side},
		"type":     {params.Type},
		"quantity": {params.Quantity},
	}

	if params.Price != "" {
		reqParams.Set("price", params.Price)
	}
	if params.TimeInForce != "" {
		reqParams.Set("timeInForce", params.TimeInForce)
	} else if params.Type == OrderTypeLimit {
		reqParams.Set("timeInForce", TimeInForceGTC)
	}
	if params.ReduceOnly {
		reqParams.Set("reduceOnly", "true")
	}
	if params.ClientOrderID != "" {
		reqParams.Set("newClientOrderId", params.ClientOrderID)
	}

	resp, err := c.signedPost(ctx, "/fapi/v1/order", reqParams)
	if err != nil {
		return nil, fmt.Errorf("error placing order: %w", err)
	}

	var order Order
	if err := json.Unmarshal(resp, &order); err != nil {
		return nil, fmt.Errorf("error parsing order response: %w", err)
	}
	return &order, nil
}
