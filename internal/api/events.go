package api

import (
	"context"
	"fmt"
	"net/url"
)

// GetEvents fetches a page of events.
func (c *Client) GetEvents(ctx context.Context, opts GetEventsOptions) (*EventsResponse, error) {
	query := pageQuery(opts.Limit, opts.Cursor)
	setIfNotEmpty(query, "series_ticker", opts.SeriesTicker)
	setIfNotEmpty(query, "status", opts.Status)
	if opts.WithNestedMarkets {
		query.Set("with_nested_markets", "true")
	}

	var resp EventsResponse
	if err := c.get(ctx, "/events", query, &resp); err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}

	return &resp, nil
}

// GetAllEvents fetches all events matching opts.
// Uses DefaultPaginationTimeout (10m) if the context has no deadline.
func (c *Client) GetAllEvents(ctx context.Context, opts GetEventsOptions) ([]APIEvent, error) {
	ctx, cancel := withPaginationTimeout(ctx)
	defer cancel()

	if opts.Limit <= 0 {
		opts.Limit = MaxPageSize
	}
	p := NewPaginator(func(ctx context.Context, cursor string) (Page[APIEvent], error) {
		opts.Cursor = cursor
		resp, err := c.GetEvents(ctx, opts)
		if err != nil {
			return Page[APIEvent]{}, err
		}
		return Page[APIEvent]{Items: resp.Events, Cursor: resp.Cursor}, nil
	})
	return p.All(ctx)
}

// GetEvent fetches a single event by ticker, together with its markets.
func (c *Client) GetEvent(ctx context.Context, eventTicker string) (*SingleEventResponse, error) {
	var resp SingleEventResponse
	if err := c.get(ctx, "/events/"+url.PathEscape(eventTicker), nil, &resp); err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventTicker, err)
	}
	return &resp, nil
}

// GetSeries fetches a series by ticker.
func (c *Client) GetSeries(ctx context.Context, seriesTicker string) (*APISeries, error) {
	var resp SeriesResponse
	if err := c.get(ctx, "/series/"+url.PathEscape(seriesTicker), nil, &resp); err != nil {
		return nil, fmt.Errorf("get series %s: %w", seriesTicker, err)
	}
	return &resp.Series, nil
}

// GetSeriesList fetches series, optionally filtered by category.
func (c *Client) GetSeriesList(ctx context.Context, category string) ([]APISeries, error) {
	query := url.Values{}
	setIfNotEmpty(query, "category", category)

	var resp SeriesListResponse
	if err := c.get(ctx, "/series", query, &resp); err != nil {
		return nil, fmt.Errorf("get series list: %w", err)
	}
	return resp.Series, nil
}
