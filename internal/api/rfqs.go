package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rickgao/kalshi-go/internal/kerr"
)

const rfqsPath = "/communications/rfqs"

// CreateRFQ opens a request for quote.
func (c *Client) CreateRFQ(ctx context.Context, params CreateRFQParams) (*RFQ, error) {
	if params.MarketTicker == "" || params.Count <= 0 {
		return nil, kerr.InvalidRequest("rfq requires a market ticker and a positive count")
	}

	var resp RFQResponse
	if err := c.post(ctx, rfqsPath, params, &resp); err != nil {
		return nil, fmt.Errorf("create rfq: %w", err)
	}
	return &resp.RFQ, nil
}

// GetRFQs fetches a page of RFQs.
func (c *Client) GetRFQs(ctx context.Context, opts GetRFQsOptions) (*RFQsResponse, error) {
	query := pageQuery(opts.Limit, opts.Cursor)
	setIfNotEmpty(query, "market_ticker", opts.MarketTicker)
	setIfNotEmpty(query, "status", opts.Status)

	var resp RFQsResponse
	if err := c.get(ctx, rfqsPath, query, &resp); err != nil {
		return nil, fmt.Errorf("get rfqs: %w", err)
	}
	return &resp, nil
}

// GetRFQ fetches one RFQ by id.
func (c *Client) GetRFQ(ctx context.Context, id string) (*RFQ, error) {
	var resp RFQResponse
	if err := c.get(ctx, rfqsPath+"/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("get rfq %s: %w", id, err)
	}
	return &resp.RFQ, nil
}

// DeleteRFQ withdraws an RFQ.
func (c *Client) DeleteRFQ(ctx context.Context, id string) error {
	if err := c.del(ctx, rfqsPath+"/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete rfq %s: %w", id, err)
	}
	return nil
}
