package transport

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/rickgao/kalshi-go/internal/kerr"
)

// RetryPolicy controls retries of transient REST failures.
type RetryPolicy struct {
	MaxAttempts  int           // total attempts including the first
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // cap before jitter is applied
	Multiplier   float64       // exponential growth per attempt
	Jitter       float64       // random +/- fraction of the delay (0.1 = 10%)

	RetryOnNetworkError bool
	RetryOnRateLimit    bool // 429
	RetryOnServerError  bool // 5xx
}

// DefaultRetryPolicy returns the default policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:         3,
		InitialDelay:        100 * time.Millisecond,
		MaxDelay:            10 * time.Second,
		Multiplier:          2.0,
		Jitter:              0.1,
		RetryOnNetworkError: true,
		RetryOnRateLimit:    true,
		RetryOnServerError:  true,
	}
}

// NoRetry returns a policy that makes a single attempt.
func NoRetry() RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxAttempts = 1
	return p
}

// Delay returns the wait before retry number attempt (1-based):
// InitialDelay * Multiplier^(attempt-1), capped at MaxDelay, then scaled by a
// random factor in [1-Jitter, 1+Jitter].
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.delay(attempt, rand.Float64)
}

func (p RetryPolicy) delay(attempt int, random func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}

	if p.Jitter > 0 {
		factor := 1 - p.Jitter + 2*p.Jitter*random()
		d *= factor
	}

	if d < 0 {
		return 0
	}
	return time.Duration(math.Round(d))
}

// ShouldRetryStatus reports whether an HTTP status is retryable under p.
// Plain 4xx responses are never retried.
func (p RetryPolicy) ShouldRetryStatus(status int) bool {
	if status == 429 {
		return p.RetryOnRateLimit
	}
	if status >= 500 {
		return p.RetryOnServerError
	}
	return false
}

// ShouldRetryError reports whether err is retryable under p.
func (p RetryPolicy) ShouldRetryError(err error) bool {
	if err == nil {
		return false
	}
	switch kerr.CodeOf(err) {
	case kerr.CodeNetwork:
		return p.RetryOnNetworkError
	case kerr.CodeRateLimited, kerr.CodeServer:
		if status := kerr.StatusOf(err); status != 0 {
			return p.ShouldRetryStatus(status)
		}
	}
	return false
}
