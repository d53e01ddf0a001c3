package livemarket

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rickgao/kalshi-go/internal/metrics"
	"github.com/rickgao/kalshi-go/internal/model"
	"github.com/rickgao/kalshi-go/internal/router"
)

// View maintains per-market book state. A single mutex guards the whole
// map; update rates are bounded by the exchange feed.
type View struct {
	mu    sync.Mutex
	books map[string]*bookState

	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	strict bool
	onGap  func(ticker string)
}

// Option configures a View.
type Option func(*View)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *View) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithMetrics reports the number of tracked markets.
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *View) {
		v.metrics = m
	}
}

// WithStrictSequence enables sequence checks on deltas. Deltas whose seq is
// not newer than the market's last seq are dropped. Deltas flagged with a
// gap are still applied. Sequence numbers are per subscription, so a gap
// marks stale every market sharing the delta's sid (and any listed in
// GapTickers), and onGap is called once per market until a snapshot
// arrives. onGap runs without the view's lock held.
func WithStrictSequence(onGap func(ticker string)) Option {
	return func(v *View) {
		v.strict = true
		v.onGap = onGap
	}
}

// New creates an empty view.
func New(opts ...Option) *View {
	v := &View{
		books:  make(map[string]*bookState),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Handler adapts the view to a session message handler.
func (v *View) Handler() func(router.Event) {
	return v.Apply
}

// Apply folds one stream event into the view. Fills carry no market data
// and are ignored.
func (v *View) Apply(ev router.Event) {
	var gapped []string

	v.mu.Lock()
	switch e := ev.(type) {
	case *router.OrderbookSnapshot:
		v.applySnapshotLocked(e)
	case *router.OrderbookDelta:
		gapped = v.applyDeltaLocked(e)
	case *router.Trade:
		b := v.bookLocked(e.MarketTicker)
		b.lastTrade = &TradeInfo{
			Price:     e.YesPrice,
			Size:      e.Count,
			TakerSide: e.TakerSide,
			Ts:        e.Ts,
		}
		b.updatedAt = v.now()
	case *router.MarketLifecycle:
		b := v.bookLocked(e.MarketTicker)
		b.lifecycle = &Lifecycle{
			OpenTs:          e.OpenTs,
			CloseTs:         e.CloseTs,
			DeterminationTs: e.DeterminationTs,
			SettledTs:       e.SettledTs,
			Result:          e.Result,
			Deactivated:     e.IsDeactivated,
		}
		b.updatedAt = v.now()
	case *router.Fill:
	}
	n := len(v.books)
	v.mu.Unlock()

	v.metrics.SetLiveMarkets(n)

	if v.onGap != nil {
		for _, ticker := range gapped {
			v.onGap(ticker)
		}
	}
}

// ApplySnapshot replaces a market's book, e.g. from a REST resync.
//
// REST snapshots carry no stream seq (Seq 0). They keep the market's last
// stream seq so replayed deltas are still dropped in strict mode. Deltas
// sent after that seq but before the REST read can still land on the new
// book; a stream snapshot is the only exact resync.
func (v *View) ApplySnapshot(snap *router.OrderbookSnapshot) {
	v.Apply(snap)
}

func (v *View) bookLocked(ticker string) *bookState {
	b, ok := v.books[ticker]
	if !ok {
		b = newBookState(ticker)
		v.books[ticker] = b
	}
	return b
}

func (v *View) applySnapshotLocked(snap *router.OrderbookSnapshot) {
	b := v.bookLocked(snap.MarketTicker)
	clear(b.yesBids)
	clear(b.yesAsks)

	for _, lvl := range snap.Yes {
		if lvl.Quantity > 0 {
			b.yesBids[lvl.Price] = lvl.Quantity
		}
	}
	for _, lvl := range snap.No {
		if lvl.Quantity > 0 {
			b.yesAsks[model.ComplementPrice(lvl.Price)] = lvl.Quantity
		}
	}

	if snap.Seq > 0 {
		b.lastSeq = snap.Seq
	}
	if snap.SID != 0 {
		b.sid = snap.SID
	}
	b.stale = false
	b.recomputeTop()
	b.updatedAt = v.now()
}

// applyDeltaLocked returns the markets newly marked stale by a gap.
func (v *View) applyDeltaLocked(d *router.OrderbookDelta) []string {
	b := v.bookLocked(d.MarketTicker)

	if v.strict && d.Seq > 0 && b.lastSeq > 0 && d.Seq <= b.lastSeq {
		v.logger.Debug("dropping stale delta",
			"ticker", d.MarketTicker,
			"seq", d.Seq,
			"last_seq", b.lastSeq,
		)
		return nil
	}

	if d.Side == model.SideYes {
		adjust(b.yesBids, d.Price, d.Delta)
	} else {
		adjust(b.yesAsks, model.ComplementPrice(d.Price), d.Delta)
	}

	b.lastSeq = d.Seq
	if d.SID != 0 {
		b.sid = d.SID
	}
	b.recomputeTop()
	b.updatedAt = v.now()

	if !v.strict || !d.SeqGap {
		return nil
	}
	return v.markGapLocked(d)
}

// markGapLocked marks stale every market that may have lost a frame in the
// gap d revealed: d's own market, the tickers the session listed, and every
// book last seen on the same sid.
func (v *View) markGapLocked(d *router.OrderbookDelta) []string {
	suspects := []string{d.MarketTicker}
	suspects = append(suspects, d.GapTickers...)
	if d.SID != 0 {
		for ticker, b := range v.books {
			if b.sid == d.SID {
				suspects = append(suspects, ticker)
			}
		}
	}
	slices.Sort(suspects)
	suspects = slices.Compact(suspects)

	var marked []string
	for _, ticker := range suspects {
		b := v.bookLocked(ticker)
		if b.stale {
			continue
		}
		b.stale = true
		marked = append(marked, ticker)
	}
	if len(marked) > 0 {
		v.logger.Warn("books marked stale after sequence gap",
			"sid", d.SID,
			"ticker", d.MarketTicker,
			"gap", d.GapSize,
			"markets", len(marked),
		)
	}
	return marked
}

// RegisterTicker creates an empty state for ticker if none exists.
func (v *View) RegisterTicker(ticker string) {
	v.mu.Lock()
	v.bookLocked(ticker)
	n := len(v.books)
	v.mu.Unlock()

	v.metrics.SetLiveMarkets(n)
}

// State returns a copy of ticker's state.
func (v *View) State(ticker string) (MarketState, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	b, ok := v.books[ticker]
	if !ok {
		return MarketState{}, false
	}
	return b.snapshot(), true
}

// States returns copies of every market's state.
func (v *View) States() map[string]MarketState {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make(map[string]MarketState, len(v.books))
	for ticker, b := range v.books {
		out[ticker] = b.snapshot()
	}
	return out
}

// Tickers returns the tracked tickers in sorted order.
func (v *View) Tickers() []string {
	v.mu.Lock()
	tickers := make([]string, 0, len(v.books))
	for ticker := range v.books {
		tickers = append(tickers, ticker)
	}
	v.mu.Unlock()

	slices.Sort(tickers)
	return tickers
}

// WriteMarketLine writes one summary line, e.g.
//
//	  KXBTC-25: 48c/52c (10x5) | Last: 50c x3 [YES]
func WriteMarketLine(w io.Writer, st MarketState) error {
	var sb strings.Builder
	sb.WriteString("  ")
	sb.WriteString(st.Ticker)
	sb.WriteString(": ")

	if st.BestBid != nil && st.BestAsk != nil {
		fmt.Fprintf(&sb, "%dc/%dc (%dx%d)",
			st.BestBid.Price, st.BestAsk.Price,
			st.BestBid.Quantity, st.BestAsk.Quantity)
	} else {
		sb.WriteString("bid/ask: --")
	}

	if st.LastTrade != nil {
		fmt.Fprintf(&sb, " | Last: %dc x%d [%s]",
			st.LastTrade.Price, st.LastTrade.Size,
			strings.ToUpper(st.LastTrade.TakerSide.String()))
	}
	sb.WriteByte('\n')

	_, err := io.WriteString(w, sb.String())
	return err
}

// WriteAll writes a line for every market in ticker order.
func (v *View) WriteAll(w io.Writer) error {
	states := v.States()
	tickers := make([]string, 0, len(states))
	for ticker := range states {
		tickers = append(tickers, ticker)
	}
	slices.Sort(tickers)

	for _, ticker := range tickers {
		if err := WriteMarketLine(w, states[ticker]); err != nil {
			return err
		}
	}
	return nil
}
