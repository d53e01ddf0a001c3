package poller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/kalshi-go/internal/api"
	"github.com/rickgao/kalshi-go/internal/livemarket"
	"github.com/rickgao/kalshi-go/internal/model"
	"github.com/rickgao/kalshi-go/internal/router"
	"github.com/rickgao/kalshi-go/internal/transport"
)

// sourceFunc adapts a function to OrderbookSource.
type sourceFunc func(ctx context.Context, ticker string) (*api.OrderbookResponse, error)

func (f sourceFunc) GetOrderbook(ctx context.Context, ticker string, depth int) (*api.OrderbookResponse, error) {
	return f(ctx, ticker)
}

func book(yes, no [][]int) *api.OrderbookResponse {
	return &api.OrderbookResponse{Orderbook: api.APIOrderbook{Yes: yes, No: no}}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPoller_PollOverREST(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/orderbook") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"orderbook": {"yes": [[52, 100], [51, 200]], "no": [[45, 150]]}}`))
	}))
	defer server.Close()

	client := api.NewClient(transport.NewClient(server.URL, nil,
		transport.WithRetryPolicy(transport.NoRetry()),
	))
	view := livemarket.New()
	for _, ticker := range []string{"MARKET-1", "MARKET-2", "MARKET-3"} {
		view.RegisterTicker(ticker)
	}

	p := New(Config{Concurrency: 2, Timeout: 5 * time.Second}, client, view, nil)

	fetched, failed := p.Poll(context.Background(), view.Tickers())
	if fetched != 3 || failed != 0 {
		t.Fatalf("Poll = (%d, %d), want (3, 0)", fetched, failed)
	}

	st, ok := view.State("MARKET-2")
	if !ok {
		t.Fatal("MARKET-2 missing")
	}
	if st.BestBid == nil || st.BestBid.Price != 52 || st.BestBid.Quantity != 100 {
		t.Errorf("BestBid = %+v, want 52x100", st.BestBid)
	}
	if st.BestAsk == nil || st.BestAsk.Price != 55 || st.BestAsk.Quantity != 150 {
		t.Errorf("BestAsk = %+v, want 55x150", st.BestAsk)
	}

	if got := p.Stats(); got.Cycles != 1 || got.Fetched != 3 {
		t.Errorf("Stats = %+v", got)
	}
}

func TestPoller_PollErrors(t *testing.T) {
	source := sourceFunc(func(ctx context.Context, ticker string) (*api.OrderbookResponse, error) {
		if ticker == "BAD" {
			return nil, errors.New("boom")
		}
		return book([][]int{{40, 1}}, nil), nil
	})
	view := livemarket.New()

	p := New(Config{}, source, view, nil)
	fetched, failed := p.Poll(context.Background(), []string{"A", "BAD", "B"})

	if fetched != 2 || failed != 1 {
		t.Errorf("Poll = (%d, %d), want (2, 1)", fetched, failed)
	}
	if _, ok := view.State("BAD"); ok {
		t.Error("failed market should not be applied")
	}
	if got := p.Stats().Errors; got != 1 {
		t.Errorf("Errors = %d, want 1", got)
	}
}

func TestPoller_ConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	source := sourceFunc(func(ctx context.Context, ticker string) (*api.OrderbookResponse, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return book(nil, nil), nil
	})

	p := New(Config{Concurrency: 3}, source, livemarket.New(), nil)
	tickers := make([]string, 12)
	for i := range tickers {
		tickers[i] = string(rune('A' + i))
	}
	p.Poll(context.Background(), tickers)

	if got := peak.Load(); got > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", got)
	}
}

func TestPoller_Timeout(t *testing.T) {
	source := sourceFunc(func(ctx context.Context, ticker string) (*api.OrderbookResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	p := New(Config{Timeout: 20 * time.Millisecond}, source, livemarket.New(), nil)
	start := time.Now()
	_, failed := p.Poll(context.Background(), []string{"SLOW"})

	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	if time.Since(start) > time.Second {
		t.Error("per-request timeout not applied")
	}
}

func TestPoller_RequestDeduplicates(t *testing.T) {
	release := make(chan struct{})
	var calls sync.Map
	var total atomic.Int32
	source := sourceFunc(func(ctx context.Context, ticker string) (*api.OrderbookResponse, error) {
		total.Add(1)
		n, _ := calls.LoadOrStore(ticker, new(atomic.Int32))
		n.(*atomic.Int32).Add(1)
		<-release
		return book([][]int{{30, 5}}, nil), nil
	})
	view := livemarket.New()

	p := New(Config{}, source, view, nil)
	p.Request("A")
	p.Request("A")
	if got := p.Pending(); got != 1 {
		t.Fatalf("Pending = %d, want 1", got)
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return total.Load() == 1 })

	// In flight: still deduplicated.
	p.Request("A")
	close(release)
	waitFor(t, func() bool { return p.Pending() == 0 })

	n, _ := calls.Load("A")
	if got := n.(*atomic.Int32).Load(); got != 1 {
		t.Errorf("GetOrderbook(A) calls = %d, want 1", got)
	}
	if st, ok := view.State("A"); !ok || st.BestBid == nil || st.BestBid.Price != 30 {
		t.Errorf("state = %+v, %v", st, ok)
	}

	// Finished requests can be made again.
	p.Request("A")
	waitFor(t, func() bool { return n.(*atomic.Int32).Load() == 2 })

	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestPoller_ResyncOnGap(t *testing.T) {
	var p *Poller
	view := livemarket.New(livemarket.WithStrictSequence(func(ticker string) {
		p.Request(ticker)
	}))
	source := sourceFunc(func(ctx context.Context, ticker string) (*api.OrderbookResponse, error) {
		return book([][]int{{60, 9}}, nil), nil
	})
	p = New(Config{}, source, view, nil)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop(context.Background())

	view.Apply(&router.OrderbookSnapshot{
		Meta:         router.Meta{Seq: 1},
		MarketTicker: "T",
		Yes:          []model.PriceLevel{{Price: 50, Quantity: 1}},
	})
	view.Apply(&router.OrderbookDelta{
		Meta:         router.Meta{Seq: 4, SeqGap: true, GapSize: 2},
		MarketTicker: "T",
		Price:        51,
		Delta:        3,
		Side:         model.SideYes,
	})

	waitFor(t, func() bool {
		st, _ := view.State("T")
		return !st.Stale && st.BestBid != nil && st.BestBid.Price == 60
	})
}

func TestPoller_StartStop(t *testing.T) {
	var calls atomic.Int32
	source := sourceFunc(func(ctx context.Context, ticker string) (*api.OrderbookResponse, error) {
		calls.Add(1)
		return book(nil, nil), nil
	})
	view := livemarket.New()
	view.RegisterTicker("TEST-1")

	p := New(Config{Interval: 20 * time.Millisecond}, source, view, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Immediate poll plus at least one tick.
	waitFor(t, func() bool { return calls.Load() >= 2 })

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Errorf("Stop: %v", err)
	}

	after := calls.Load()
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != after {
		t.Error("poller kept running after Stop")
	}
}

func TestPoller_StopWithoutStart(t *testing.T) {
	p := New(DefaultConfig(), nil, livemarket.New(), nil)
	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Interval != 15*time.Minute {
		t.Errorf("Interval = %v", cfg.Interval)
	}
	if cfg.Concurrency != 10 {
		t.Errorf("Concurrency = %d", cfg.Concurrency)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
}
