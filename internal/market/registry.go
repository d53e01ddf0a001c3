package market

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/kalshi-go/internal/api"
	"github.com/rickgao/kalshi-go/internal/router"
)

// ChangeBufferSize is the capacity of the Changes channel. When full, the
// oldest change is dropped.
const ChangeBufferSize = 1000

// Lister pages through markets over REST.
type Lister interface {
	GetAllMarkets(ctx context.Context, opts api.GetMarketsOptions) ([]api.APIMarket, error)
}

// Config holds Registry configuration.
type Config struct {
	SeriesTicker      string        // empty tracks every series
	EventTicker       string        // optional narrower filter
	ReconcileInterval time.Duration // 0 disables reconciliation
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{ReconcileInterval: 5 * time.Minute}
}

// ChangeKind says whether a market joined or left the tradable set.
type ChangeKind int

const (
	Added ChangeKind = iota
	Removed
)

func (k ChangeKind) String() string {
	if k == Removed {
		return "removed"
	}
	return "added"
}

// Change is one addition to or removal from the tradable set.
type Change struct {
	Ticker string
	Kind   ChangeKind
	Status string
}

// Registry holds the tradable market set.
type Registry struct {
	cfg    Config
	rest   Lister
	logger *slog.Logger

	mu         sync.RWMutex
	markets    map[string]api.APIMarket
	lastSyncAt time.Time

	changes chan Change

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a Registry. Nothing is fetched until Start.
func NewRegistry(cfg Config, rest Lister, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:     cfg,
		rest:    rest,
		logger:  logger,
		markets: make(map[string]api.APIMarket),
		changes: make(chan Change, ChangeBufferSize),
	}
}

// Start loads the tradable set, blocking until the first sync completes,
// then reconciles in the background.
func (r *Registry) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	if err := r.Sync(r.ctx); err != nil {
		r.cancel()
		return err
	}

	if r.cfg.ReconcileInterval > 0 {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.reconciliationLoop(r.ctx)
		}()
	}

	r.logger.Info("market registry started",
		"series", r.cfg.SeriesTicker,
		"active_markets", r.Len(),
	)
	return nil
}

// Stop ends reconciliation.
func (r *Registry) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("market registry stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync fetches open markets and diffs them against the current set. Markets
// that are no longer listed as open are removed.
func (r *Registry) Sync(ctx context.Context) error {
	start := time.Now()

	listed, err := r.rest.GetAllMarkets(ctx, api.GetMarketsOptions{
		SeriesTicker: r.cfg.SeriesTicker,
		EventTicker:  r.cfg.EventTicker,
		Status:       "open",
	})
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(listed))
	var added, removed int

	r.mu.Lock()
	for _, m := range listed {
		seen[m.Ticker] = struct{}{}
		if _, ok := r.markets[m.Ticker]; !ok {
			r.notify(Change{Ticker: m.Ticker, Kind: Added, Status: m.Status})
			added++
		}
		r.markets[m.Ticker] = m
	}
	for ticker, m := range r.markets {
		if _, ok := seen[ticker]; !ok {
			delete(r.markets, ticker)
			r.notify(Change{Ticker: ticker, Kind: Removed, Status: m.Status})
			removed++
		}
	}
	r.lastSyncAt = time.Now()
	r.mu.Unlock()

	r.logger.Debug("market sync complete",
		"listed", len(listed),
		"added", added,
		"removed", removed,
		"duration", time.Since(start),
	)
	return nil
}

func (r *Registry) reconciliationLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sync(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("market reconciliation failed", "error", err)
			}
		}
	}
}

// Apply updates the set from a market_lifecycle event. Other events are
// ignored. A market is removed once it is deactivated, closed, determined
// or settled. An unknown market that has opened is added.
func (r *Registry) Apply(ev router.Event) {
	lc, ok := ev.(*router.MarketLifecycle)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, known := r.markets[lc.MarketTicker]
	status := lifecycleStatus(lc, time.Now())

	switch {
	case status != "open" && known:
		delete(r.markets, lc.MarketTicker)
		r.notify(Change{Ticker: lc.MarketTicker, Kind: Removed, Status: status})
	case status == "open" && !known && r.inScope(lc.MarketTicker):
		r.markets[lc.MarketTicker] = api.APIMarket{Ticker: lc.MarketTicker, Status: status}
		r.notify(Change{Ticker: lc.MarketTicker, Kind: Added, Status: status})
	}
}

// inScope reports whether a ticker can belong to the configured series.
// Kalshi market tickers are prefixed by their series ticker.
func (r *Registry) inScope(ticker string) bool {
	if r.cfg.EventTicker != "" {
		return len(ticker) > len(r.cfg.EventTicker) && ticker[:len(r.cfg.EventTicker)] == r.cfg.EventTicker
	}
	if r.cfg.SeriesTicker != "" {
		return len(ticker) > len(r.cfg.SeriesTicker) && ticker[:len(r.cfg.SeriesTicker)] == r.cfg.SeriesTicker
	}
	return true
}

func lifecycleStatus(lc *router.MarketLifecycle, now time.Time) string {
	switch {
	case lc.IsDeactivated:
		return "deactivated"
	case lc.SettledTs > 0:
		return "settled"
	case lc.Result != "" || lc.DeterminationTs > 0:
		return "determined"
	case lc.CloseTs > 0 && lc.CloseTs <= now.Unix():
		return "closed"
	case lc.OpenTs > 0 && lc.OpenTs > now.Unix():
		return "unopened"
	}
	return "open"
}

// notify sends without blocking, dropping the oldest queued change when
// the channel is full. Caller holds r.mu.
func (r *Registry) notify(c Change) {
	select {
	case r.changes <- c:
		return
	default:
	}

	select {
	case dropped := <-r.changes:
		r.logger.Warn("market change buffer full, dropping oldest", "ticker", dropped.Ticker)
	default:
	}

	select {
	case r.changes <- c:
	default:
	}
}

// Changes returns additions to and removals from the tradable set.
func (r *Registry) Changes() <-chan Change {
	return r.changes
}

// Active returns the tradable tickers in sorted order.
func (r *Registry) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.markets))
	for t := range r.markets {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Get returns the last listing of a tradable market.
func (r *Registry) Get(ticker string) (api.APIMarket, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[ticker]
	return m, ok
}

// Len returns the number of tradable markets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markets)
}

// LastSync returns when the last REST sync completed.
func (r *Registry) LastSync() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSyncAt
}
