package connection

import (
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/kalshi-go/internal/auth"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Channel is a subscription channel name.
type Channel string

const (
	ChannelOrderbookDelta  Channel = "orderbook_delta"
	ChannelTrade           Channel = "trade"
	ChannelFill            Channel = "fill"
	ChannelMarketLifecycle Channel = "market_lifecycle"
)

// SubscriptionID identifies a subscription for later unsubscribe or update.
// SID is the id of the subscribe command that created it.
type SubscriptionID struct {
	SID     int64
	Channel Channel
}

// Command is a WebSocket command to send to the server.
type Command struct {
	ID     int64  `json:"id"`
	Cmd    string `json:"cmd"`
	Params any    `json:"params"`
}

// SubscribeParams are parameters for a subscribe command.
type SubscribeParams struct {
	Channels      []string `json:"channels"`
	MarketTickers []string `json:"market_tickers,omitempty"`
}

// UnsubscribeParams are parameters for an unsubscribe command.
type UnsubscribeParams struct {
	SIDs []int64 `json:"sids"`
}

// UpdateSubscriptionParams are parameters for updating a subscription.
type UpdateSubscriptionParams struct {
	Action        string   `json:"action"` // "add_markets" or "delete_markets"
	Channel       string   `json:"channel"`
	SIDs          []int64  `json:"sids"`
	MarketTickers []string `json:"market_tickers"`
}

// Update actions.
const (
	ActionAddMarkets    = "add_markets"
	ActionDeleteMarkets = "delete_markets"
)

// State is the session lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stream error codes below zero are raised locally; other codes are
// forwarded from server "error" frames.
const (
	CodeConnectionError    = 0
	CodeWriteFailed        = -1
	CodeReconnectExhausted = -2
	CodeDecodeFailed       = -3
)

// StreamError is delivered to the error handler.
type StreamError struct {
	Code    int
	Message string
}

func (e StreamError) Error() string {
	return fmt.Sprintf("stream error %d: %s", e.Code, e.Message)
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., wss://api.elections.kalshi.com/trade-api/ws/v2)
	Signer           *auth.Signer  // nil = no auth
	HandshakeTimeout time.Duration // Bound on dial + upgrade
	PingTimeout      time.Duration // Max time without ping before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size

	// InsecureSkipVerify disables TLS certificate verification on wss://
	// endpoints. Only for test environments with self-signed certificates.
	InsecureSkipVerify bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		URL:              DefaultURL,
		HandshakeTimeout: 10 * time.Second,
		PingTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       10000,
	}
}

// DefaultURL is the production streaming endpoint.
const DefaultURL = "wss://api.elections.kalshi.com/trade-api/ws/v2"

// Config configures a Session.
type Config struct {
	URL                  string
	ReconnectDelay       time.Duration // wait before the first reconnect attempt
	ReconnectMaxDelay    time.Duration // backoff cap; equal to ReconnectDelay for a fixed delay
	MaxReconnectAttempts int
	AutoReconnect        bool
	HandshakeTimeout     time.Duration
	PingTimeout          time.Duration
	WriteTimeout         time.Duration
	BufferSize           int
	InsecureSkipVerify   bool // skip TLS certificate verification
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:                  DefaultURL,
		ReconnectDelay:       5 * time.Second,
		ReconnectMaxDelay:    5 * time.Second,
		MaxReconnectAttempts: 10,
		AutoReconnect:        true,
		HandshakeTimeout:     10 * time.Second,
		PingTimeout:          60 * time.Second,
		WriteTimeout:         5 * time.Second,
		BufferSize:           10000,
	}
}

func (c Config) clientConfig(signer *auth.Signer) ClientConfig {
	return ClientConfig{
		URL:              c.URL,
		Signer:           signer,
		HandshakeTimeout: c.HandshakeTimeout,
		PingTimeout:      c.PingTimeout,
		WriteTimeout:     c.WriteTimeout,
		BufferSize:       c.BufferSize,

		InsecureSkipVerify: c.InsecureSkipVerify,
	}
}
