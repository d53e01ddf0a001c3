package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rickgao/kalshi-go/internal/auth"
	"github.com/rickgao/kalshi-go/internal/kerr"
	"github.com/rickgao/kalshi-go/internal/metrics"
	"github.com/rickgao/kalshi-go/internal/version"
)

// Response is a completed HTTP exchange.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Client sends signed, rate-limited, retried requests to the REST API.
type Client struct {
	baseURL    string
	basePath   string
	signer     *auth.Signer
	httpClient *http.Client
	logger     *slog.Logger
	retry      RetryPolicy
	limiter    *Limiter
	metrics    *metrics.Metrics

	sleep func(ctx context.Context, d time.Duration) error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a transport for baseURL (for example
// "https://api.elections.kalshi.com/trade-api/v2"). A nil signer sends
// unauthenticated requests.
func NewClient(baseURL string, signer *auth.Signer, opts ...ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")

	basePath := ""
	if u, err := url.Parse(baseURL); err == nil {
		basePath = strings.TrimRight(u.Path, "/")
	}

	c := &Client{
		baseURL:  baseURL,
		basePath: basePath,
		signer:   signer,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
		retry:  DefaultRetryPolicy(),
		sleep:  sleepCtx,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = p
	}
}

// WithRateLimiter gates every attempt on l.
func WithRateLimiter(l *Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
func WithInsecureSkipVerify() ClientOption {
	return func(c *Client) {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for test environments
		c.httpClient.Transport = tr
	}
}

// WithMetrics records request and retry counters on m.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get sends a GET request. path may carry a query string.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post sends a POST request with body encoded as JSON.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// Put sends a PUT request with body encoded as JSON.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, body)
}

// Delete sends a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil)
}

// Do sends a request, retrying transient failures under the retry policy.
// On a non-2xx status the response is returned together with the error.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	attempts := c.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		lastResp *Response
		lastErr  error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := c.retry.Delay(attempt - 1)
			c.logger.Debug("retrying request",
				"method", method,
				"path", path,
				"attempt", attempt,
				"backoff", delay,
				"error", lastErr,
			)
			c.metrics.RESTRetry()

			if err := c.sleep(ctx, delay); err != nil {
				return lastResp, err
			}
		}

		resp, err := c.doRequest(ctx, method, path, payload)
		if err == nil {
			return resp, nil
		}

		lastResp, lastErr = resp, err
		if ctx.Err() != nil || !c.retry.ShouldRetryError(err) {
			return resp, err
		}
	}

	return lastResp, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload []byte) (*Response, error) {
	if c.limiter != nil && !c.limiter.Acquire(ctx) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, kerr.New(kerr.CodeRateLimited, "rate limiter wait timed out", nil)
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, kerr.InvalidRequest(fmt.Sprintf("create request: %v", err))
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "kalshi-go/"+version.Version)

	if c.signer != nil {
		headers, err := c.signer.Sign(method, c.basePath+path)
		if err != nil {
			return nil, err
		}
		headers.Apply(req.Header)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RESTRequest(method, 0, time.Since(start))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, kerr.Network(method+" "+path, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, kerr.Network("read response", err)
	}
	c.metrics.RESTRequest(method, httpResp.StatusCode, time.Since(start))

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Body:       body,
		Header:     httpResp.Header,
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return resp, kerr.FromStatus(httpResp.StatusCode, body)
	}

	return resp, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, kerr.InvalidRequest(fmt.Sprintf("encode request body: %v", err))
		}
		return data, nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
