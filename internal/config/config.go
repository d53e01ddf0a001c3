package config

import "time"

// Config is the root configuration for kalshi-go programs.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Stream    StreamConfig    `yaml:"stream"`
	Retry     RetryConfig     `yaml:"retry"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Poller    PollerConfig    `yaml:"poller"`
	Database  DBConfig        `yaml:"database"`
	Writer    WriterConfig    `yaml:"writer"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
	Markets   []string        `yaml:"markets"`
}

// APIConfig holds Kalshi REST settings and credentials.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	KeyID          string        `yaml:"key_id"`           // API key ID (for KALSHI-ACCESS-KEY header)
	PrivateKeyPath string        `yaml:"private_key_path"` // Path to RSA private key PEM file
	Timeout        time.Duration `yaml:"timeout"`
	VerifyTLS      *bool         `yaml:"verify_tls"`
}

// HasCredentials reports whether both a key ID and a key path are set.
func (a APIConfig) HasCredentials() bool {
	return a.KeyID != "" && a.PrivateKeyPath != ""
}

// StreamConfig holds streaming session settings.
type StreamConfig struct {
	URL                  string        `yaml:"url"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	AutoReconnect        *bool         `yaml:"auto_reconnect"`
	PingTimeout          time.Duration `yaml:"ping_timeout"`
	BufferSize           int           `yaml:"buffer_size"`
}

// RetryConfig holds REST retry settings. Jitter is a pointer so 0 can be
// set explicitly.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       *float64      `yaml:"jitter"`
}

// RateLimitConfig holds the client-side token bucket settings.
type RateLimitConfig struct {
	Disabled       bool          `yaml:"disabled"`
	MaxTokens      int           `yaml:"max_tokens"`
	RefillInterval time.Duration `yaml:"refill_interval"`
	InitialTokens  int           `yaml:"initial_tokens"`
	MaxWait        time.Duration `yaml:"max_wait"`
}

// PollerConfig holds snapshot resync settings.
type PollerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Enabled reports whether a database is configured.
func (db DBConfig) Enabled() bool {
	return db.Host != ""
}

// WriterConfig holds batch writer settings.
type WriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
