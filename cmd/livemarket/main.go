// livemarket streams order books for a set of markets and prints
// top-of-book and last trade for each on a fixed interval.
// Usage: go run ./cmd/livemarket --config configs/kalshi.example.yaml --markets KXBTC-25DEC31-B100000
//
// Required environment variables (or a .env file):
//
//	KALSHI_API_KEY_ID       - Your API key ID from Kalshi dashboard
//	KALSHI_PRIVATE_KEY_PATH - Path to your RSA private key PEM file
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/kalshi-go/internal/api"
	"github.com/rickgao/kalshi-go/internal/auth"
	"github.com/rickgao/kalshi-go/internal/config"
	"github.com/rickgao/kalshi-go/internal/connection"
	"github.com/rickgao/kalshi-go/internal/livemarket"
	"github.com/rickgao/kalshi-go/internal/metrics"
	"github.com/rickgao/kalshi-go/internal/poller"
	"github.com/rickgao/kalshi-go/internal/transport"
	"github.com/rickgao/kalshi-go/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/kalshi.example.yaml", "path to config file")
	markets := flag.String("markets", "", "comma-separated market tickers (overrides config)")
	interval := flag.Duration("interval", 5*time.Second, "print interval")
	trades := flag.Bool("trades", true, "subscribe to public trades")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Load config
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Logs go to stderr so the market lines stay readable
	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	tickers := cfg.Markets
	if *markets != "" {
		tickers = splitTickers(*markets)
	}
	if len(tickers) == 0 {
		logger.Error("no markets configured; use --markets or the markets list")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	var signer *auth.Signer
	if cfg.API.HasCredentials() {
		signer, err = auth.NewFromFile(cfg.API.KeyID, cfg.API.PrivateKeyPath)
		if err != nil {
			logger.Error("failed to load credentials", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("no credentials configured, connecting unauthenticated")
	}

	m := metrics.New()
	if cfg.Metrics.Enabled {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			if err := m.Serve(ctx, addr, cfg.Metrics.Path, logger); err != nil {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	opts := append(cfg.TransportOptions(), transport.WithLogger(logger), transport.WithMetrics(m))
	apiClient := api.NewClient(transport.NewClient(cfg.API.BaseURL, signer, opts...), api.WithLogger(logger))

	// Gaps in the stream are repaired from REST snapshots.
	var resync *poller.Poller
	view := livemarket.New(
		livemarket.WithLogger(logger),
		livemarket.WithMetrics(m),
		livemarket.WithStrictSequence(func(ticker string) { resync.Request(ticker) }),
	)
	pollerCfg := cfg.PollerConfig()
	pollerCfg.Interval = 0 // on demand only; the stream keeps books current
	resync = poller.New(pollerCfg, apiClient, view, logger)

	for _, t := range tickers {
		view.RegisterTicker(t)
	}

	session := connection.NewSession(cfg.SessionConfig(), signer, connection.WithLogger(logger), connection.WithMetrics(m))
	session.OnMessage(view.Handler())
	session.OnError(func(e connection.StreamError) {
		logger.Warn("stream error", "code", e.Code, "message", e.Message)
		if e.Code == connection.CodeReconnectExhausted {
			cancel()
		}
	})
	session.OnStateChange(func(connected bool) {
		logger.Info("stream state changed", "connected", connected)
	})

	if err := session.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer session.Disconnect()

	if _, err := session.SubscribeOrderbook(tickers); err != nil {
		logger.Error("failed to subscribe to orderbook", "error", err)
		os.Exit(1)
	}
	if *trades {
		if _, err := session.SubscribeTrades(tickers...); err != nil {
			logger.Error("failed to subscribe to trades", "error", err)
			os.Exit(1)
		}
	}

	if err := resync.Start(ctx); err != nil {
		logger.Error("failed to start poller", "error", err)
		os.Exit(1)
	}

	logger.Info("streaming",
		"version", version.Version,
		"markets", len(tickers),
		"interval", *interval,
	)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down...")
			session.Disconnect()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			resync.Stop(shutdownCtx)
			shutdownCancel()
			return
		case <-ticker.C:
			fmt.Printf("--- %s ---\n", time.Now().Format(time.TimeOnly))
			view.WriteAll(os.Stdout)
		}
	}
}

func splitTickers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
