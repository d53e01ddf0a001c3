// markets demonstrates the REST client: exchange status, a paginated
// market listing, and one market's order book.
// Usage: go run ./cmd/markets --config configs/kalshi.example.yaml --status open --book KXBTC-25DEC31-B100000
//
// Market data is public; credentials are only needed for --balance.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rickgao/kalshi-go/internal/api"
	"github.com/rickgao/kalshi-go/internal/auth"
	"github.com/rickgao/kalshi-go/internal/config"
	"github.com/rickgao/kalshi-go/internal/livemarket"
	"github.com/rickgao/kalshi-go/internal/model"
	"github.com/rickgao/kalshi-go/internal/transport"
)

func main() {
	configPath := flag.String("config", "configs/kalshi.example.yaml", "path to config file")
	status := flag.String("status", "open", "market status filter")
	series := flag.String("series", "", "series ticker filter")
	pageSize := flag.Int("limit", 100, "markets per page")
	pages := flag.Int("pages", 1, "pages to fetch (0 = all)")
	book := flag.String("book", "", "market ticker whose order book to print")
	balance := flag.Bool("balance", false, "print portfolio balance (requires credentials)")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	var signer *auth.Signer
	if cfg.API.HasCredentials() {
		signer, err = auth.NewFromFile(cfg.API.KeyID, cfg.API.PrivateKeyPath)
		if err != nil {
			logger.Error("failed to load credentials", "error", err)
			os.Exit(1)
		}
	}

	opts := append(cfg.TransportOptions(), transport.WithLogger(logger))
	client := api.NewClient(transport.NewClient(cfg.API.BaseURL, signer, opts...), api.WithLogger(logger))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	exchange, err := client.GetExchangeStatus(ctx)
	if err != nil {
		logger.Error("failed to get exchange status", "error", err)
		os.Exit(1)
	}
	fmt.Printf("exchange active=%v trading active=%v\n", exchange.ExchangeActive, exchange.TradingActive)

	if *balance {
		if signer == nil {
			logger.Error("--balance requires api.key_id and api.private_key_path")
			os.Exit(1)
		}
		b, err := client.GetBalance(ctx)
		if err != nil {
			logger.Error("failed to get balance", "error", err)
			os.Exit(1)
		}
		fmt.Printf("balance $%s\n", model.CentsToDollars(int(b.Balance)))
	}

	paginator := client.MarketsPaginator(api.GetMarketsOptions{
		Limit:        *pageSize,
		Status:       *status,
		SeriesTicker: *series,
	})

	count := 0
	for page := 0; paginator.HasMore() && (*pages == 0 || page < *pages); page++ {
		markets, err := paginator.Next(ctx)
		if err != nil {
			logger.Error("failed to list markets", "error", err)
			os.Exit(1)
		}
		for _, m := range markets {
			mid := "--"
			if v, ok := m.MidPrice(); ok {
				mid = fmt.Sprintf("%.1fc", v)
			}
			fmt.Printf("%-40s %-8s bid %2dc ask %2dc mid %-6s %s\n", m.Ticker, m.Status, m.YesBid, m.YesAsk, mid, m.Title)
		}
		count += len(markets)
	}
	fmt.Printf("%d markets\n", count)

	if *book == "" {
		return
	}

	ob, err := client.GetOrderbook(ctx, *book, 0)
	if err != nil {
		logger.Error("failed to get orderbook", "ticker", *book, "error", err)
		os.Exit(1)
	}
	snap, err := ob.Orderbook.ToSnapshot(*book)
	if err != nil {
		logger.Error("failed to convert orderbook", "ticker", *book, "error", err)
		os.Exit(1)
	}

	view := livemarket.New(livemarket.WithLogger(logger))
	view.ApplySnapshot(snap)
	st, _ := view.State(*book)
	livemarket.WriteMarketLine(os.Stdout, st)
	fmt.Printf("  %d yes bids, %d yes asks\n", len(st.YesBids), len(st.YesAsks))
}
