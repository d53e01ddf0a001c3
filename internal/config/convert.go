package config

import (
	"io"
	"log/slog"
	"strings"

	"github.com/rickgao/kalshi-go/internal/connection"
	"github.com/rickgao/kalshi-go/internal/poller"
	"github.com/rickgao/kalshi-go/internal/transport"
)

// RetryPolicy builds the transport retry policy. Fields left at zero keep
// the transport defaults.
func (c *Config) RetryPolicy() transport.RetryPolicy {
	p := transport.DefaultRetryPolicy()
	if c.Retry.MaxAttempts > 0 {
		p.MaxAttempts = c.Retry.MaxAttempts
	}
	if c.Retry.InitialDelay > 0 {
		p.InitialDelay = c.Retry.InitialDelay
	}
	if c.Retry.MaxDelay > 0 {
		p.MaxDelay = c.Retry.MaxDelay
	}
	if c.Retry.Multiplier > 0 {
		p.Multiplier = c.Retry.Multiplier
	}
	if c.Retry.Jitter != nil {
		p.Jitter = *c.Retry.Jitter
	}
	return p
}

// RateLimiter builds the client-side limiter, or nil when disabled.
func (c *Config) RateLimiter() *transport.Limiter {
	if c.RateLimit.Disabled {
		return nil
	}
	cfg := transport.DefaultRateLimitConfig()
	if c.RateLimit.MaxTokens > 0 {
		cfg.MaxTokens = c.RateLimit.MaxTokens
	}
	if c.RateLimit.RefillInterval > 0 {
		cfg.RefillInterval = c.RateLimit.RefillInterval
	}
	if c.RateLimit.InitialTokens > 0 {
		cfg.InitialTokens = c.RateLimit.InitialTokens
	}
	cfg.MaxWait = c.RateLimit.MaxWait
	return transport.NewLimiter(cfg)
}

// TransportOptions maps the API, retry and rate limit sections onto
// transport options.
func (c *Config) TransportOptions() []transport.ClientOption {
	opts := []transport.ClientOption{transport.WithRetryPolicy(c.RetryPolicy())}
	if c.API.Timeout > 0 {
		opts = append(opts, transport.WithTimeout(c.API.Timeout))
	}
	if l := c.RateLimiter(); l != nil {
		opts = append(opts, transport.WithRateLimiter(l))
	}
	if c.API.VerifyTLS != nil && !*c.API.VerifyTLS {
		opts = append(opts, transport.WithInsecureSkipVerify())
	}
	return opts
}

// SessionConfig maps the stream section onto a session config.
func (c *Config) SessionConfig() connection.Config {
	sc := connection.DefaultConfig()
	if c.Stream.URL != "" {
		sc.URL = c.Stream.URL
	}
	if c.Stream.ReconnectDelay > 0 {
		sc.ReconnectDelay = c.Stream.ReconnectDelay
		sc.ReconnectMaxDelay = c.Stream.ReconnectDelay
	}
	if c.Stream.ReconnectMaxDelay > 0 {
		sc.ReconnectMaxDelay = c.Stream.ReconnectMaxDelay
	}
	if c.Stream.MaxReconnectAttempts > 0 {
		sc.MaxReconnectAttempts = c.Stream.MaxReconnectAttempts
	}
	if c.Stream.AutoReconnect != nil {
		sc.AutoReconnect = *c.Stream.AutoReconnect
	}
	if c.Stream.PingTimeout > 0 {
		sc.PingTimeout = c.Stream.PingTimeout
	}
	if c.Stream.BufferSize > 0 {
		sc.BufferSize = c.Stream.BufferSize
	}
	// verify_tls covers both the REST and the streaming endpoint.
	sc.InsecureSkipVerify = c.API.VerifyTLS != nil && !*c.API.VerifyTLS
	return sc
}

// PollerConfig maps the poller section onto a poller config.
func (c *Config) PollerConfig() poller.Config {
	return poller.Config{
		Interval:    c.Poller.Interval,
		Concurrency: c.Poller.Concurrency,
		Timeout:     c.Poller.Timeout,
	}
}

// NewLogger builds a slog logger from the log section.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(l.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(l.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
