package api

import (
	"context"
	"fmt"
	"net/url"
)

// GetBalance fetches the account balance in cents.
func (c *Client) GetBalance(ctx context.Context) (*BalanceResponse, error) {
	var resp BalanceResponse
	if err := c.get(ctx, "/portfolio/balance", nil, &resp); err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return &resp, nil
}

// GetPositions fetches a page of market and event positions.
func (c *Client) GetPositions(ctx context.Context, opts GetPositionsOptions) (*PositionsResponse, error) {
	query := pageQuery(opts.Limit, opts.Cursor)
	setIfNotEmpty(query, "ticker", opts.Ticker)
	setIfNotEmpty(query, "event_ticker", opts.EventTicker)
	setIfNotEmpty(query, "settlement_status", opts.SettlementStatus)

	var resp PositionsResponse
	if err := c.get(ctx, "/portfolio/positions", query, &resp); err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	return &resp, nil
}

// GetFills fetches a page of the caller's fills.
func (c *Client) GetFills(ctx context.Context, opts GetFillsOptions) (*FillsResponse, error) {
	query := pageQuery(opts.Limit, opts.Cursor)
	setIfNotEmpty(query, "ticker", opts.Ticker)
	setIfNotEmpty(query, "order_id", opts.OrderID)
	setIfPositive(query, "min_ts", opts.MinTs)
	setIfPositive(query, "max_ts", opts.MaxTs)

	var resp FillsResponse
	if err := c.get(ctx, "/portfolio/fills", query, &resp); err != nil {
		return nil, fmt.Errorf("get fills: %w", err)
	}
	return &resp, nil
}

// GetSettlements fetches a page of settlements.
func (c *Client) GetSettlements(ctx context.Context, opts GetPositionsOptions) (*SettlementsResponse, error) {
	query := pageQuery(opts.Limit, opts.Cursor)
	setIfNotEmpty(query, "ticker", opts.Ticker)
	setIfNotEmpty(query, "event_ticker", opts.EventTicker)

	var resp SettlementsResponse
	if err := c.get(ctx, "/portfolio/settlements", query, &resp); err != nil {
		return nil, fmt.Errorf("get settlements: %w", err)
	}
	return &resp, nil
}

// GetOrders fetches a page of the caller's orders.
func (c *Client) GetOrders(ctx context.Context, opts GetOrdersOptions) (*OrdersResponse, error) {
	query := pageQuery(opts.Limit, opts.Cursor)
	setIfNotEmpty(query, "ticker", opts.Ticker)
	setIfNotEmpty(query, "event_ticker", opts.EventTicker)
	setIfNotEmpty(query, "status", opts.Status)

	var resp OrdersResponse
	if err := c.get(ctx, "/portfolio/orders", query, &resp); err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	return &resp, nil
}

// GetOrder fetches one order by id.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var resp OrderResponse
	if err := c.get(ctx, "/portfolio/orders/"+url.PathEscape(orderID), nil, &resp); err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return &resp.Order, nil
}
