package livemarket

import (
	"maps"
	"time"

	"github.com/rickgao/kalshi-go/internal/model"
)

// Level is one price level in cents.
type Level struct {
	Price    int
	Quantity int
}

// TradeInfo is the most recent trade seen for a market.
type TradeInfo struct {
	Price     int // YES price in cents
	Size      int
	TakerSide model.Side
	Ts        int64
}

// Lifecycle is the last lifecycle update seen for a market.
type Lifecycle struct {
	OpenTs          int64
	CloseTs         int64
	DeterminationTs int64
	SettledTs       int64
	Result          string
	Deactivated     bool
}

// MarketState is a point-in-time copy of one market's view.
type MarketState struct {
	Ticker    string
	BestBid   *Level
	BestAsk   *Level
	LastTrade *TradeInfo
	LastSeq   int64
	YesBids   map[int]int // price -> quantity
	YesAsks   map[int]int // price -> quantity, NO bids translated
	Lifecycle *Lifecycle
	// Stale is set in strict sequence mode after a gap until the next
	// snapshot replaces the book.
	Stale     bool
	UpdatedAt time.Time
}

type bookState struct {
	ticker    string
	yesBids   map[int]int
	yesAsks   map[int]int
	bestBid   *Level
	bestAsk   *Level
	lastTrade *TradeInfo
	lastSeq   int64
	sid       int64 // stream subscription the book was last updated on
	lifecycle *Lifecycle
	stale     bool
	updatedAt time.Time
}

func newBookState(ticker string) *bookState {
	return &bookState{
		ticker:  ticker,
		yesBids: make(map[int]int),
		yesAsks: make(map[int]int),
	}
}

// adjust adds delta to the level at price and removes it when the result
// is no longer positive.
func adjust(levels map[int]int, price, delta int) {
	qty := levels[price] + delta
	if qty <= 0 {
		delete(levels, price)
		return
	}
	levels[price] = qty
}

func (b *bookState) recomputeTop() {
	b.bestBid = nil
	for price, qty := range b.yesBids {
		if qty > 0 && (b.bestBid == nil || price > b.bestBid.Price) {
			b.bestBid = &Level{Price: price, Quantity: qty}
		}
	}

	b.bestAsk = nil
	for price, qty := range b.yesAsks {
		if qty > 0 && (b.bestAsk == nil || price < b.bestAsk.Price) {
			b.bestAsk = &Level{Price: price, Quantity: qty}
		}
	}
}

func (b *bookState) snapshot() MarketState {
	st := MarketState{
		Ticker:    b.ticker,
		LastSeq:   b.lastSeq,
		YesBids:   maps.Clone(b.yesBids),
		YesAsks:   maps.Clone(b.yesAsks),
		Stale:     b.stale,
		UpdatedAt: b.updatedAt,
	}
	if b.bestBid != nil {
		lvl := *b.bestBid
		st.BestBid = &lvl
	}
	if b.bestAsk != nil {
		lvl := *b.bestAsk
		st.BestAsk = &lvl
	}
	if b.lastTrade != nil {
		tr := *b.lastTrade
		st.LastTrade = &tr
	}
	if b.lifecycle != nil {
		lc := *b.lifecycle
		st.Lifecycle = &lc
	}
	return st
}
