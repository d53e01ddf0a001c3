package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rickgao/kalshi-go/internal/kerr"
)

func validateOrder(p CreateOrderParams) error {
	switch {
	case p.Ticker == "":
		return kerr.InvalidRequest("order requires a ticker")
	case p.Count <= 0:
		return kerr.InvalidRequest("order count must be positive")
	case p.Type != OrderTypeLimit && p.Type != OrderTypeMarket:
		return kerr.InvalidRequest(fmt.Sprintf("unknown order type %q", p.Type))
	case p.Type == OrderTypeLimit && (p.YesPrice == nil) == (p.NoPrice == nil):
		return kerr.InvalidRequest("limit order requires exactly one of yes_price and no_price")
	}
	return nil
}

// CreateOrder places an order. A missing Type defaults to limit and a
// missing ClientOrderID is filled with a random UUID.
func (c *Client) CreateOrder(ctx context.Context, params CreateOrderParams) (*Order, error) {
	if params.Type == "" {
		params.Type = OrderTypeLimit
	}
	if err := validateOrder(params); err != nil {
		return nil, err
	}
	if params.ClientOrderID == "" {
		params.ClientOrderID = c.newOrderID()
	}

	var resp OrderResponse
	if err := c.post(ctx, "/portfolio/orders", params, &resp); err != nil {
		return nil, fmt.Errorf("create order %s: %w", params.ClientOrderID, err)
	}

	c.logger.Debug("order created",
		"order_id", resp.Order.OrderID,
		"client_order_id", params.ClientOrderID,
		"ticker", params.Ticker,
	)
	return &resp.Order, nil
}

// BatchCreateOrders places several orders in one request.
func (c *Client) BatchCreateOrders(ctx context.Context, orders []CreateOrderParams) (*BatchCreateResponse, error) {
	if len(orders) == 0 {
		return nil, kerr.InvalidRequest("batch create requires at least one order")
	}

	body := struct {
		Orders []CreateOrderParams `json:"orders"`
	}{Orders: make([]CreateOrderParams, len(orders))}

	for i, o := range orders {
		if o.Type == "" {
			o.Type = OrderTypeLimit
		}
		if err := validateOrder(o); err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		if o.ClientOrderID == "" {
			o.ClientOrderID = c.newOrderID()
		}
		body.Orders[i] = o
	}

	var resp BatchCreateResponse
	if err := c.post(ctx, "/portfolio/orders/batched", body, &resp); err != nil {
		return nil, fmt.Errorf("batch create orders: %w", err)
	}
	return &resp, nil
}

// CancelOrder cancels a resting order and returns its final state.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*Order, error) {
	var resp OrderResponse
	if err := c.del(ctx, "/portfolio/orders/"+url.PathEscape(orderID), nil, &resp); err != nil {
		return nil, fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return &resp.Order, nil
}

// AmendOrder changes the price or count of a resting order.
func (c *Client) AmendOrder(ctx context.Context, params AmendOrderParams) (*Order, error) {
	if params.OrderID == "" {
		return nil, kerr.InvalidRequest("amend requires an order id")
	}
	if params.Count == nil && params.YesPrice == nil && params.NoPrice == nil {
		return nil, kerr.InvalidRequest("amend requires a count or a price")
	}

	var resp OrderResponse
	path := "/portfolio/orders/" + url.PathEscape(params.OrderID) + "/amend"
	if err := c.post(ctx, path, params, &resp); err != nil {
		return nil, fmt.Errorf("amend order %s: %w", params.OrderID, err)
	}
	return &resp.Order, nil
}

// DecreaseOrder reduces the remaining count of a resting order.
func (c *Client) DecreaseOrder(ctx context.Context, orderID string, reduceBy int) (*Order, error) {
	if reduceBy <= 0 {
		return nil, kerr.InvalidRequest("reduce_by must be positive")
	}

	body := struct {
		ReduceBy int `json:"reduce_by"`
	}{ReduceBy: reduceBy}

	var resp OrderResponse
	path := "/portfolio/orders/" + url.PathEscape(orderID) + "/decrease"
	if err := c.post(ctx, path, body, &resp); err != nil {
		return nil, fmt.Errorf("decrease order %s: %w", orderID, err)
	}
	return &resp.Order, nil
}

// BatchCancelOrders cancels several orders in one request.
func (c *Client) BatchCancelOrders(ctx context.Context, orderIDs []string) (*BatchCancelResponse, error) {
	if len(orderIDs) == 0 {
		return nil, kerr.InvalidRequest("batch cancel requires at least one order id")
	}

	body := struct {
		IDs []string `json:"ids"`
	}{IDs: orderIDs}

	var resp BatchCancelResponse
	if err := c.del(ctx, "/portfolio/orders/batched", body, &resp); err != nil {
		return nil, fmt.Errorf("batch cancel orders: %w", err)
	}
	return &resp, nil
}
