package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/kalshi-go/internal/auth"
	"github.com/rickgao/kalshi-go/internal/auth/authtest"
	"github.com/rickgao/kalshi-go/internal/kerr"
	"github.com/rickgao/kalshi-go/internal/metrics"
)

// noSleep records requested delays without waiting.
func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://api.example.com/trade-api/v2/", nil)

		if c.baseURL != "https://api.example.com/trade-api/v2" {
			t.Errorf("baseURL = %q", c.baseURL)
		}
		if c.basePath != "/trade-api/v2" {
			t.Errorf("basePath = %q, want /trade-api/v2", c.basePath)
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want 30s", c.httpClient.Timeout)
		}
		if c.retry.MaxAttempts != 3 {
			t.Errorf("MaxAttempts = %d, want 3", c.retry.MaxAttempts)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		limiter := NewLimiter(DefaultRateLimitConfig())
		m := metrics.New()

		c := NewClient("https://api.example.com", nil,
			WithTimeout(5*time.Second),
			WithRetryPolicy(NoRetry()),
			WithRateLimiter(limiter),
			WithLogger(logger),
			WithMetrics(m),
		)

		if c.httpClient.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want 5s", c.httpClient.Timeout)
		}
		if c.retry.MaxAttempts != 1 {
			t.Errorf("MaxAttempts = %d, want 1", c.retry.MaxAttempts)
		}
		if c.limiter != limiter || c.logger != logger || c.metrics != m {
			t.Error("options not applied")
		}
	})

	t.Run("with custom HTTP client", func(t *testing.T) {
		hc := &http.Client{Timeout: 10 * time.Second}
		c := NewClient("https://api.example.com", nil, WithHTTPClient(hc))
		if c.httpClient != hc {
			t.Error("custom HTTP client not set")
		}
	})

	t.Run("insecure skip verify", func(t *testing.T) {
		c := NewClient("https://api.example.com", nil, WithInsecureSkipVerify())
		tr, ok := c.httpClient.Transport.(*http.Transport)
		if !ok || tr.TLSClientConfig == nil || !tr.TLSClientConfig.InsecureSkipVerify {
			t.Error("TLS verification not disabled")
		}
	})
}

func TestClient_SignsRequests(t *testing.T) {
	signer := authtest.NewSigner(t, "key-123")

	var verifyErr atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := auth.AuthHeaders{
			AccessKey: r.Header.Get(auth.HeaderAccessKey),
			Signature: r.Header.Get(auth.HeaderAccessSignature),
			Timestamp: r.Header.Get(auth.HeaderAccessTimestamp),
		}
		if h.AccessKey != "key-123" {
			verifyErr.Store(errors.New("wrong access key " + h.AccessKey))
		} else if err := signer.Verify(h, r.Method, r.URL.Path); err != nil {
			verifyErr.Store(err)
		}

		if r.Header.Get("Content-Type") != "application/json" {
			verifyErr.Store(errors.New("missing content type"))
		}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "kalshi-go/") {
			verifyErr.Store(errors.New("bad user agent " + r.Header.Get("User-Agent")))
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClient(server.URL+"/trade-api/v2", signer)

	resp, err := c.Get(context.Background(), "/markets?limit=5")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if v := verifyErr.Load(); v != nil {
		t.Errorf("server rejected request: %v", v)
	}
}

func TestClient_PostEncodesBody(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &got)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, nil)
	resp, err := c.Post(context.Background(), "/portfolio/orders", map[string]any{"ticker": "ABC", "count": 2})
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want 201", resp.StatusCode)
	}
	if got["ticker"] != "ABC" || got["count"] != float64(2) {
		t.Errorf("body = %v", got)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("Body = %s", resp.Body)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	p := DefaultRetryPolicy()
	p.Jitter = 0

	var delays []time.Duration
	c := NewClient(server.URL, nil, WithRetryPolicy(p))
	c.sleep = noSleep(&delays)

	if _, err := c.Get(context.Background(), "/x"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestClient_MaxRetriesExceeded(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":"too_many_requests","message":"slow down"}}`))
	}))
	defer server.Close()

	var delays []time.Duration
	c := NewClient(server.URL, nil)
	c.sleep = noSleep(&delays)

	resp, err := c.Get(context.Background(), "/x")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "max retries exceeded") {
		t.Errorf("error = %v, want max retries exceeded", err)
	}
	if !errors.Is(err, kerr.ErrRateLimited) {
		t.Errorf("error = %v, want rate limited", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("resp = %+v, want 429 response", resp)
	}
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   *kerr.Error
	}{
		{"bad request", http.StatusBadRequest, kerr.ErrInvalidRequest},
		{"not found", http.StatusNotFound, kerr.ErrInvalidRequest},
		{"unauthorized", http.StatusUnauthorized, kerr.ErrAuthentication},
		{"forbidden", http.StatusForbidden, kerr.ErrAuthentication},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			var delays []time.Duration
			c := NewClient(server.URL, nil)
			c.sleep = noSleep(&delays)

			resp, err := c.Get(context.Background(), "/x")
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want.Code)
			}
			if kerr.StatusOf(err) != tt.status {
				t.Errorf("StatusOf = %d, want %d", kerr.StatusOf(err), tt.status)
			}
			if resp == nil || resp.StatusCode != tt.status {
				t.Errorf("resp = %+v", resp)
			}
			if attempts.Load() != 1 {
				t.Errorf("attempts = %d, want 1", attempts.Load())
			}
			if len(delays) != 0 {
				t.Errorf("delays = %v, want none", delays)
			}
		})
	}
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	var delays []time.Duration
	c := NewClient(url, nil)
	c.sleep = noSleep(&delays)

	_, err := c.Get(context.Background(), "/x")
	if !errors.Is(err, kerr.ErrNetwork) {
		t.Errorf("error = %v, want network error", err)
	}
	if len(delays) != 2 {
		t.Errorf("retries = %d, want 2", len(delays))
	}
}

func TestClient_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := DefaultRetryPolicy()
	p.InitialDelay = time.Hour
	c := NewClient(server.URL, nil, WithRetryPolicy(p))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Get(ctx, "/x")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestClient_RateLimiterTimeout(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	limiter := NewLimiter(RateLimitConfig{
		MaxTokens:      1,
		RefillInterval: time.Hour,
		InitialTokens:  1,
		MaxWait:        10 * time.Millisecond,
	})
	c := NewClient(server.URL, nil, WithRateLimiter(limiter), WithRetryPolicy(NoRetry()))

	if _, err := c.Get(context.Background(), "/a"); err != nil {
		t.Fatalf("first Get failed: %v", err)
	}
	_, err := c.Get(context.Background(), "/b")
	if !errors.Is(err, kerr.ErrRateLimited) {
		t.Errorf("error = %v, want rate limited", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("server saw %d requests, want 1", attempts.Load())
	}
}
