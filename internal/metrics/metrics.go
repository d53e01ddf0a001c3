package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the SDK collectors on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	streamMessages *prometheus.CounterVec
	decodeErrors   prometheus.Counter
	seqGaps        prometheus.Counter
	reconnects     prometheus.Counter
	connected      prometheus.Gauge

	restRequests *prometheus.CounterVec
	restRetries  prometheus.Counter
	restDuration prometheus.Histogram

	liveMarkets prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		streamMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kalshi_stream_messages_total",
			Help: "Inbound stream messages by type.",
		}, []string{"type"}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kalshi_stream_decode_errors_total",
			Help: "Inbound stream frames that failed to decode.",
		}),
		seqGaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kalshi_stream_seq_gaps_total",
			Help: "Sequence gaps detected on stream subscriptions.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kalshi_stream_reconnects_total",
			Help: "Stream reconnect attempts.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kalshi_stream_connected",
			Help: "1 while the stream session is connected.",
		}),
		restRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kalshi_rest_requests_total",
			Help: "REST request attempts by method and status (0 = network failure).",
		}, []string{"method", "status"}),
		restRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kalshi_rest_retries_total",
			Help: "REST request retries.",
		}),
		restDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kalshi_rest_request_duration_seconds",
			Help:    "REST request attempt latency.",
			Buckets: prometheus.DefBuckets,
		}),
		liveMarkets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kalshi_live_markets",
			Help: "Markets tracked by the live market view.",
		}),
	}

	m.registry.MustRegister(
		m.streamMessages,
		m.decodeErrors,
		m.seqGaps,
		m.reconnects,
		m.connected,
		m.restRequests,
		m.restRetries,
		m.restDuration,
		m.liveMarkets,
		collectors.NewGoCollector(),
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes the metrics endpoint until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr, path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", "addr", addr, "path", path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (m *Metrics) StreamMessage(msgType string) {
	if m == nil {
		return
	}
	m.streamMessages.WithLabelValues(msgType).Inc()
}

func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

func (m *Metrics) SeqGap() {
	if m == nil {
		return
	}
	m.seqGaps.Inc()
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

// RESTRequest records one attempt. status 0 means no response was received.
func (m *Metrics) RESTRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.restRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.restDuration.Observe(d.Seconds())
}

func (m *Metrics) RESTRetry() {
	if m == nil {
		return
	}
	m.restRetries.Inc()
}

func (m *Metrics) SetLiveMarkets(n int) {
	if m == nil {
		return
	}
	m.liveMarkets.Set(float64(n))
}
