// recorder streams order books, trades and fills into Postgres. Books are
// also kept in a live view that a REST poller resyncs after sequence gaps
// and on a fixed interval. /health and /metrics are served on the
// metrics port.
// Usage: go run ./cmd/recorder --config configs/kalshi.example.yaml [--series KXBTC]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/kalshi-go/internal/api"
	"github.com/rickgao/kalshi-go/internal/auth"
	"github.com/rickgao/kalshi-go/internal/config"
	"github.com/rickgao/kalshi-go/internal/connection"
	"github.com/rickgao/kalshi-go/internal/database"
	"github.com/rickgao/kalshi-go/internal/livemarket"
	"github.com/rickgao/kalshi-go/internal/market"
	"github.com/rickgao/kalshi-go/internal/metrics"
	"github.com/rickgao/kalshi-go/internal/poller"
	"github.com/rickgao/kalshi-go/internal/router"
	"github.com/rickgao/kalshi-go/internal/transport"
	"github.com/rickgao/kalshi-go/internal/version"
	"github.com/rickgao/kalshi-go/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/kalshi.example.yaml", "path to config file")
	series := flag.String("series", "", "record every open market in this series (overrides config markets)")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting recorder",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	if !cfg.Database.Enabled() {
		logger.Error("database.host is required for the recorder")
		os.Exit(1)
	}
	if !cfg.API.HasCredentials() {
		logger.Error("api.key_id and api.private_key_path are required for the recorder")
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	signer, err := auth.NewFromFile(cfg.API.KeyID, cfg.API.PrivateKeyPath)
	if err != nil {
		logger.Error("failed to load credentials", "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// Create API client
	opts := append(cfg.TransportOptions(), transport.WithLogger(logger), transport.WithMetrics(m))
	apiClient := api.NewClient(transport.NewClient(cfg.API.BaseURL, signer, opts...), api.WithLogger(logger))

	// Check exchange status
	status, err := apiClient.GetExchangeStatus(ctx)
	if err != nil {
		logger.Error("failed to get exchange status", "error", err)
		os.Exit(1)
	}
	logger.Info("exchange status",
		"exchange_active", status.ExchangeActive,
		"trading_active", status.TradingActive,
	)

	// Series mode tracks open markets through a registry; otherwise the
	// configured list is fixed.
	var registry *market.Registry
	tickers := cfg.Markets
	if *series != "" {
		registry = market.NewRegistry(market.Config{
			SeriesTicker:      *series,
			ReconcileInterval: market.DefaultConfig().ReconcileInterval,
		}, apiClient, logger)
		if err := registry.Start(ctx); err != nil {
			logger.Error("failed to load series markets", "series", *series, "error", err)
			os.Exit(1)
		}
		// The initial set is subscribed below.
		for len(registry.Changes()) > 0 {
			<-registry.Changes()
		}
		tickers = registry.Active()
	}
	if len(tickers) == 0 {
		logger.Error("no markets to record")
		os.Exit(1)
	}

	// Live view with gap resync
	var resync *poller.Poller
	view := livemarket.New(
		livemarket.WithLogger(logger),
		livemarket.WithMetrics(m),
		livemarket.WithStrictSequence(func(ticker string) { resync.Request(ticker) }),
	)
	for _, t := range tickers {
		view.RegisterTicker(t)
	}
	resync = poller.New(cfg.PollerConfig(), apiClient, view, logger)

	// Writer consumes its own dispatcher buffer
	dispatcher := router.NewDispatcher(logger)
	w := writer.New(writer.Config{
		BatchSize:     cfg.Writer.BatchSize,
		FlushInterval: cfg.Writer.FlushInterval,
	}, dispatcher.Subscribe("writer", cfg.Writer.BufferSize), pool, logger)

	session := connection.NewSession(cfg.SessionConfig(), signer, connection.WithLogger(logger), connection.WithMetrics(m))
	session.OnMessage(func(ev router.Event) {
		view.Apply(ev)
		if registry != nil {
			registry.Apply(ev)
		}
		dispatcher.Publish(ev)
	})
	session.OnError(func(e connection.StreamError) {
		logger.Warn("stream error", "code", e.Code, "message", e.Message)
		if e.Code == connection.CodeReconnectExhausted {
			cancel()
		}
	})
	session.OnStateChange(func(connected bool) {
		logger.Info("stream state changed", "connected", connected)
	})

	// Start health server early so startup can be monitored
	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           createHealthHandler(pool, session, view, w, dispatcher, m, cfg.Metrics.Path),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start writer", "error", err)
		os.Exit(1)
	}

	if err := session.Connect(ctx); err != nil {
		logger.Error("failed to connect stream", "error", err)
		os.Exit(1)
	}

	if _, err := session.SubscribeOrderbook(tickers); err != nil {
		logger.Error("failed to subscribe to orderbook", "error", err)
		os.Exit(1)
	}
	if _, err := session.SubscribeTrades(tickers...); err != nil {
		logger.Error("failed to subscribe to trades", "error", err)
		os.Exit(1)
	}
	if _, err := session.SubscribeFills(); err != nil {
		logger.Error("failed to subscribe to fills", "error", err)
		os.Exit(1)
	}
	if _, err := session.SubscribeLifecycle(); err != nil {
		logger.Error("failed to subscribe to lifecycle", "error", err)
		os.Exit(1)
	}

	if err := resync.Start(ctx); err != nil {
		logger.Error("failed to start poller", "error", err)
		os.Exit(1)
	}

	if registry != nil {
		go followRegistry(ctx, registry, session, view, logger)
	}

	logger.Info("recorder running",
		"markets", len(tickers),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	// Stop the source first so the writer drains everything it was sent
	session.Disconnect()
	dispatcher.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if registry != nil {
		registry.Stop(shutdownCtx)
	}
	resync.Stop(shutdownCtx)
	if err := w.Stop(shutdownCtx); err != nil {
		logger.Error("writer shutdown failed", "error", err)
	}
	healthServer.Shutdown(shutdownCtx)

	stats := w.Stats()
	logger.Info("recorder stopped",
		"snapshots", stats.SnapshotInserts,
		"deltas", stats.DeltaInserts,
		"trades", stats.TradeInserts,
		"fills", stats.FillInserts,
		"errors", stats.Errors,
	)
}

// followRegistry subscribes markets that open after startup. Markets that
// leave the set stay subscribed until the exchange stops sending for them.
func followRegistry(ctx context.Context, registry *market.Registry, session *connection.Session, view *livemarket.View, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-registry.Changes():
			logger.Info("market change", "ticker", c.Ticker, "kind", c.Kind.String(), "status", c.Status)
			if c.Kind != market.Added {
				continue
			}
			view.RegisterTicker(c.Ticker)
			if _, err := session.SubscribeOrderbook([]string{c.Ticker}); err != nil {
				logger.Warn("failed to subscribe new market", "ticker", c.Ticker, "error", err)
				continue
			}
			if _, err := session.SubscribeTrades(c.Ticker); err != nil {
				logger.Warn("failed to subscribe new market trades", "ticker", c.Ticker, "error", err)
			}
		}
	}
}

// createHealthHandler serves /health, /debug/markets and the metrics
// endpoint.
func createHealthHandler(
	pool *pgxpool.Pool,
	session *connection.Session,
	view *livemarket.View,
	w *writer.Writer,
	dispatcher *router.Dispatcher,
	m *metrics.Metrics,
	metricsPath string,
) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, m.Handler())

	mux.HandleFunc("/health", func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		// Check database
		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		// Check stream
		health.Components["stream"] = map[string]any{
			"state":         session.State().String(),
			"subscriptions": len(session.Subscriptions()),
		}
		if !session.IsConnected() && health.Status == "healthy" {
			health.Status = "degraded"
		}

		health.Components["writer"] = w.Stats()
		health.Components["dispatcher"] = dispatcher.Stats()
		health.Components["markets"] = len(view.Tickers())

		// Set response
		rw.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			rw.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(rw).Encode(health)
	})

	mux.HandleFunc("/debug/markets", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		view.WriteAll(rw)
	})

	return mux
}
