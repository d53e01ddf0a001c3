package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/kalshi-go/internal/api"
	"github.com/rickgao/kalshi-go/internal/router"
)

// OrderbookSource fetches a full REST orderbook. *api.Client implements it.
type OrderbookSource interface {
	GetOrderbook(ctx context.Context, ticker string, depth int) (*api.OrderbookResponse, error)
}

// SnapshotSink receives resynced books. *livemarket.View implements it.
type SnapshotSink interface {
	ApplySnapshot(snap *router.OrderbookSnapshot)
	Tickers() []string
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Full refresh interval, 0 disables it
	Concurrency int           // Max concurrent requests (default: 10)
	Timeout     time.Duration // Per-request timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    15 * time.Minute,
		Concurrency: 10,
		Timeout:     10 * time.Second,
	}
}

// Stats are cumulative poller counters.
type Stats struct {
	Cycles  int64
	Fetched int64
	Errors  int64
}

// Poller fetches orderbook snapshots and applies them to a sink.
type Poller struct {
	cfg    Config
	source OrderbookSource
	sink   SnapshotSink
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	queue   []string
	wake    chan struct{}

	cycles  atomic.Int64
	fetched atomic.Int64
	errors  atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, source OrderbookSource, sink SnapshotSink, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Poller{
		cfg:     cfg,
		source:  source,
		sink:    sink,
		logger:  logger,
		pending: make(map[string]struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// Request queues a resync of ticker. It never blocks. A ticker already
// queued or in flight is not queued again. Requests made before Start are
// served once the poller runs.
func (p *Poller) Request(ticker string) {
	p.mu.Lock()
	if _, ok := p.pending[ticker]; ok {
		p.mu.Unlock()
		return
	}
	p.pending[ticker] = struct{}{}
	p.queue = append(p.queue, ticker)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Pending reports how many requested tickers have not finished.
func (p *Poller) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Stats returns cumulative counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Cycles:  p.cycles.Load(),
		Fetched: p.fetched.Load(),
		Errors:  p.errors.Load(),
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("snapshot poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("snapshot poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) run() {
	defer p.wg.Done()

	var tick <-chan time.Time
	if p.cfg.Interval > 0 {
		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C

		p.Poll(p.ctx, p.sink.Tickers())
	}

	// Serve requests queued before Start.
	p.drain()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-tick:
			p.Poll(p.ctx, p.sink.Tickers())
		case <-p.wake:
			p.drain()
		}
	}
}

// drain polls every queued request, then clears them from pending.
func (p *Poller) drain() {
	p.mu.Lock()
	tickers := p.queue
	p.queue = nil
	p.mu.Unlock()

	if len(tickers) == 0 {
		return
	}

	p.Poll(p.ctx, tickers)

	p.mu.Lock()
	for _, t := range tickers {
		delete(p.pending, t)
	}
	p.mu.Unlock()
}

// Poll fetches and applies the books for tickers concurrently and returns
// how many succeeded and failed. Failures are logged, not returned.
func (p *Poller) Poll(ctx context.Context, tickers []string) (fetched, failed int) {
	if len(tickers) == 0 {
		p.logger.Debug("no markets to poll")
		return 0, 0
	}

	start := time.Now()
	var ok, errs atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for _, ticker := range tickers {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := p.pollMarket(gctx, ticker); err != nil {
				p.logger.Warn("failed to poll market",
					"ticker", ticker,
					"err", err,
				)
				errs.Add(1)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	p.cycles.Add(1)
	p.fetched.Add(ok.Load())
	p.errors.Add(errs.Load())

	p.logger.Info("poll cycle complete",
		"markets", len(tickers),
		"fetched", ok.Load(),
		"errors", errs.Load(),
		"duration", time.Since(start),
	)
	return int(ok.Load()), int(errs.Load())
}

// pollMarket fetches and applies a single market's orderbook.
func (p *Poller) pollMarket(ctx context.Context, ticker string) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	resp, err := p.source.GetOrderbook(ctx, ticker, 0) // 0 = all levels
	if err != nil {
		return err
	}

	snap, err := resp.Orderbook.ToSnapshot(ticker)
	if err != nil {
		return err
	}

	p.sink.ApplySnapshot(snap)
	return nil
}
