package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// GetMarkets fetches a page of markets.
func (c *Client) GetMarkets(ctx context.Context, opts GetMarketsOptions) (*MarketsResponse, error) {
	query := pageQuery(opts.Limit, opts.Cursor)
	setIfNotEmpty(query, "event_ticker", opts.EventTicker)
	setIfNotEmpty(query, "series_ticker", opts.SeriesTicker)
	if len(opts.Tickers) > 0 {
		query.Set("tickers", strings.Join(opts.Tickers, ","))
	}
	setIfNotEmpty(query, "status", opts.Status)

	var resp MarketsResponse
	if err := c.get(ctx, "/markets", query, &resp); err != nil {
		return nil, fmt.Errorf("get markets: %w", err)
	}

	return &resp, nil
}

// MarketsPaginator walks every market matching opts. opts.Cursor is
// ignored and opts.Limit defaults to MaxPageSize.
func (c *Client) MarketsPaginator(opts GetMarketsOptions) *Paginator[APIMarket] {
	if opts.Limit <= 0 {
		opts.Limit = MaxPageSize
	}
	return NewPaginator(func(ctx context.Context, cursor string) (Page[APIMarket], error) {
		opts.Cursor = cursor
		resp, err := c.GetMarkets(ctx, opts)
		if err != nil {
			return Page[APIMarket]{}, err
		}
		return Page[APIMarket]{Items: resp.Markets, Cursor: resp.Cursor}, nil
	})
}

// GetAllMarkets fetches all markets matching opts.
// Uses DefaultPaginationTimeout (10m) if the context has no deadline.
func (c *Client) GetAllMarkets(ctx context.Context, opts GetMarketsOptions) ([]APIMarket, error) {
	ctx, cancel := withPaginationTimeout(ctx)
	defer cancel()

	return c.MarketsPaginator(opts).All(ctx)
}

// GetMarket fetches a single market by ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (*APIMarket, error) {
	var resp SingleMarketResponse
	if err := c.get(ctx, "/markets/"+url.PathEscape(ticker), nil, &resp); err != nil {
		return nil, fmt.Errorf("get market %s: %w", ticker, err)
	}
	return &resp.Market, nil
}

// GetOrderbook fetches the orderbook for a market. depth <= 0 returns all
// levels.
func (c *Client) GetOrderbook(ctx context.Context, ticker string, depth int) (*OrderbookResponse, error) {
	query := url.Values{}
	if depth > 0 {
		query.Set("depth", strconv.Itoa(depth))
	}

	var resp OrderbookResponse
	if err := c.get(ctx, "/markets/"+url.PathEscape(ticker)+"/orderbook", query, &resp); err != nil {
		return nil, fmt.Errorf("get orderbook %s: %w", ticker, err)
	}

	return &resp, nil
}

// GetTrades fetches a page of public trades.
func (c *Client) GetTrades(ctx context.Context, opts GetTradesOptions) (*TradesResponse, error) {
	query := pageQuery(opts.Limit, opts.Cursor)
	setIfNotEmpty(query, "ticker", opts.Ticker)
	setIfPositive(query, "min_ts", opts.MinTs)
	setIfPositive(query, "max_ts", opts.MaxTs)

	var resp TradesResponse
	if err := c.get(ctx, "/markets/trades", query, &resp); err != nil {
		return nil, fmt.Errorf("get trades: %w", err)
	}
	return &resp, nil
}
