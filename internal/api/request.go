package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rickgao/kalshi-go/internal/kerr"
)

// DefaultPaginationTimeout bounds GetAll* calls whose context has no deadline.
const DefaultPaginationTimeout = 10 * time.Minute

// MaxPageSize is the largest page the exchange returns.
const MaxPageSize = 1000

// do sends a request and decodes the JSON response into result, if non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, result any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	resp, err := c.http.Do(ctx, method, path, body)
	if err != nil {
		return err
	}

	if result == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, result); err != nil {
		c.logger.Warn("failed to decode response",
			"method", method,
			"path", path,
			"error", err,
		)
		return kerr.Parse("decode "+method+" "+path+" response", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, result)
}

func (c *Client) del(ctx context.Context, path string, body, result any) error {
	return c.do(ctx, http.MethodDelete, path, nil, body, result)
}

// pageQuery starts a query with the common limit and cursor parameters.
func pageQuery(limit int, cursor string) url.Values {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	return query
}

func setIfNotEmpty(query url.Values, key, value string) {
	if value != "" {
		query.Set(key, value)
	}
}

func setIfPositive(query url.Values, key string, value int64) {
	if value > 0 {
		query.Set(key, strconv.FormatInt(value, 10))
	}
}

// withPaginationTimeout applies DefaultPaginationTimeout when ctx has no
// deadline.
func withPaginationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultPaginationTimeout)
}
