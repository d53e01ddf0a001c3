package transport

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the token bucket.
type RateLimitConfig struct {
	MaxTokens      int           // bucket capacity
	RefillInterval time.Duration // one token is added per interval
	InitialTokens  int           // tokens available at construction and after Reset
	MaxWait        time.Duration // Acquire gives up after this long (0 = wait for ctx)
}

// DefaultRateLimitConfig matches the exchange's basic tier.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxTokens:      10,
		RefillInterval: time.Second,
		InitialTokens:  10,
	}
}

// Limiter is a token bucket that gates outbound requests.
type Limiter struct {
	cfg RateLimitConfig

	mu  sync.Mutex
	lim *rate.Limiter
}

// NewLimiter creates a limiter from cfg.
func NewLimiter(cfg RateLimitConfig) *Limiter {
	if cfg.MaxTokens < 1 {
		cfg.MaxTokens = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	if cfg.InitialTokens < 0 || cfg.InitialTokens > cfg.MaxTokens {
		cfg.InitialTokens = cfg.MaxTokens
	}

	l := &Limiter{cfg: cfg}
	l.lim = l.newBucket()
	return l
}

func (l *Limiter) newBucket() *rate.Limiter {
	lim := rate.NewLimiter(rate.Every(l.cfg.RefillInterval), l.cfg.MaxTokens)
	// rate.Limiter starts full; drain down to the initial level.
	if drain := l.cfg.MaxTokens - l.cfg.InitialTokens; drain > 0 {
		lim.AllowN(time.Now(), drain)
	}
	return lim
}

func (l *Limiter) bucket() *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lim
}

// Config returns the limiter configuration.
func (l *Limiter) Config() RateLimitConfig {
	return l.cfg
}

// TryAcquire takes a token if one is available, without waiting.
func (l *Limiter) TryAcquire() bool {
	return l.bucket().Allow()
}

// Acquire waits for a token, bounded by MaxWait when set and by ctx.
func (l *Limiter) Acquire(ctx context.Context) bool {
	if l.cfg.MaxWait > 0 {
		return l.AcquireFor(ctx, l.cfg.MaxWait)
	}
	return l.bucket().Wait(ctx) == nil
}

// AcquireFor waits at most d for a token.
func (l *Limiter) AcquireFor(ctx context.Context, d time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return l.bucket().Wait(ctx) == nil
}

// Available returns the number of whole tokens currently in the bucket.
func (l *Limiter) Available() int {
	tokens := l.bucket().Tokens()
	if tokens < 0 {
		return 0
	}
	return int(tokens)
}

// Reset restores the bucket to InitialTokens.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lim = l.newBucket()
}
