package api

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/rickgao/kalshi-go/internal/transport"
)

// Client provides access to the Kalshi REST API.
type Client struct {
	http   *transport.Client
	logger *slog.Logger

	newOrderID func() string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a REST API client over a signed transport.
func NewClient(http *transport.Client, opts ...ClientOption) *Client {
	c := &Client{
		http:       http,
		logger:     slog.Default(),
		newOrderID: uuid.NewString,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithOrderIDGenerator overrides how missing client order ids are filled.
func WithOrderIDGenerator(fn func() string) ClientOption {
	return func(c *Client) {
		c.newOrderID = fn
	}
}

// Transport returns the underlying transport.
func (c *Client) Transport() *transport.Client {
	return c.http
}
