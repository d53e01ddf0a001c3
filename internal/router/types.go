package router

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/rickgao/kalshi-go/internal/model"
)

// FlexInt64 can unmarshal from either a JSON string or number.
// Kalshi sometimes sends timestamps as strings, sometimes as numbers.
type FlexInt64 int64

func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	var i int64
	if err := json.Unmarshal(data, &i); err == nil {
		*f = FlexInt64(i)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}

	i, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		*f = FlexInt64(i)
		return nil
	}

	// ISO 8601, e.g. "2026-01-06T15:24:59.504579Z". Stored as unix seconds
	// to match the numeric form.
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	*f = FlexInt64(t.Unix())
	return nil
}

// Event is a decoded data message from a subscription channel. The set of
// implementations is closed: *OrderbookSnapshot, *OrderbookDelta, *Trade,
// *Fill and *MarketLifecycle.
type Event interface {
	// Ticker returns the market the event belongs to.
	Ticker() string
	// EventMeta returns the envelope fields shared by all events.
	EventMeta() *Meta

	isEvent()
}

// Meta holds envelope fields and sequence-tracking flags.
type Meta struct {
	SID        int64
	Seq        int64
	ReceivedAt time.Time
	SeqGap     bool // set when seq != last_seq+1 for this sid
	GapSize    int  // seq - expected, when SeqGap is set

	// GapTickers lists every market on the sid when SeqGap is set. The lost
	// frames may belong to any of them. Empty when the sid's tickers are
	// unknown.
	GapTickers []string
}

func (m *Meta) EventMeta() *Meta { return m }

// OrderbookSnapshot replaces the full book for a market. Levels are
// [price cents, quantity] per side as resting bids.
type OrderbookSnapshot struct {
	Meta
	MarketTicker string
	Yes          []model.PriceLevel
	No           []model.PriceLevel
}

// OrderbookDelta changes the quantity resting at one price level.
type OrderbookDelta struct {
	Meta
	MarketTicker string
	Price        int    // cents
	PriceDollars string // original dollar string when sent, e.g. "0.5250"
	Delta        int
	Side         model.Side
	Ts           int64
}

// Trade is a public execution.
type Trade struct {
	Meta
	TradeID      string
	MarketTicker string
	YesPrice     int // cents
	NoPrice      int // cents
	Count        int
	TakerSide    model.Side
	Ts           int64
}

// Fill is an execution of one of the account's own orders.
type Fill struct {
	Meta
	TradeID      string
	OrderID      string
	MarketTicker string
	IsTaker      bool
	Side         model.Side
	YesPrice     int
	NoPrice      int
	Count        int
	Action       model.Action
	Ts           int64
}

// MarketLifecycle reports market status transitions.
type MarketLifecycle struct {
	Meta
	MarketTicker    string
	OpenTs          int64
	CloseTs         int64
	DeterminationTs int64
	SettledTs       int64
	Result          string
	IsDeactivated   bool
}

func (e *OrderbookSnapshot) Ticker() string { return e.MarketTicker }
func (e *OrderbookDelta) Ticker() string    { return e.MarketTicker }
func (e *Trade) Ticker() string             { return e.MarketTicker }
func (e *Fill) Ticker() string              { return e.MarketTicker }
func (e *MarketLifecycle) Ticker() string   { return e.MarketTicker }

func (*OrderbookSnapshot) isEvent() {}
func (*OrderbookDelta) isEvent()    {}
func (*Trade) isEvent()             {}
func (*Fill) isEvent()              {}
func (*MarketLifecycle) isEvent()   {}

// Message types on the wire.
const (
	TypeOrderbookSnapshot = "orderbook_snapshot"
	TypeOrderbookDelta    = "orderbook_delta"
	TypeTrade             = "trade"
	TypeFill              = "fill"
	TypeMarketLifecycle   = "market_lifecycle"
	TypeMarketLifecycleV2 = "market_lifecycle_v2"

	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeOK           = "ok"
	TypeError        = "error"
)

// Control is a command acknowledgement or error from the server.
type Control struct {
	ID            int64
	Type          string
	SID           int64
	Channel       string
	Code          int
	Message       string
	MarketTickers []string
}

// Frame is one decoded inbound message. Exactly one of Event and Control
// is set.
type Frame struct {
	Type    string
	ID      int64
	SID     int64
	Seq     int64
	HasSeq  bool
	Event   Event
	Control *Control
}

// Wire types for JSON parsing

type envelopeWire struct {
	Type string          `json:"type"`
	ID   int64           `json:"id"`
	SID  int64           `json:"sid"`
	Seq  *int64          `json:"seq"`
	Msg  json.RawMessage `json:"msg"`
}

type orderbookSnapshotWire struct {
	MarketTicker string  `json:"market_ticker"`
	Yes          [][]int `json:"yes"` // [[price_cents, qty], ...]
	No           [][]int `json:"no"`
	YesDollars   [][]any `json:"yes_dollars"` // [["0.52", qty], ...]
	NoDollars    [][]any `json:"no_dollars"`
}

type orderbookDeltaWire struct {
	MarketTicker string    `json:"market_ticker"`
	Price        *int      `json:"price"`
	PriceDollars string    `json:"price_dollars"`
	Delta        int       `json:"delta"`
	Side         string    `json:"side"`
	Ts           FlexInt64 `json:"ts"`
}

type tradeWire struct {
	MarketTicker    string    `json:"market_ticker"`
	TradeID         string    `json:"trade_id"`
	Count           int       `json:"count"`
	YesPrice        *int      `json:"yes_price"`
	NoPrice         *int      `json:"no_price"`
	YesPriceDollars string    `json:"yes_price_dollars"`
	NoPriceDollars  string    `json:"no_price_dollars"`
	TakerSide       string    `json:"taker_side"`
	Ts              FlexInt64 `json:"ts"`
}

type fillWire struct {
	MarketTicker    string    `json:"market_ticker"`
	TradeID         string    `json:"trade_id"`
	OrderID         string    `json:"order_id"`
	IsTaker         bool      `json:"is_taker"`
	Side            string    `json:"side"`
	YesPrice        *int      `json:"yes_price"`
	NoPrice         *int      `json:"no_price"`
	YesPriceDollars string    `json:"yes_price_dollars"`
	NoPriceDollars  string    `json:"no_price_dollars"`
	Count           int       `json:"count"`
	Action          string    `json:"action"`
	Ts              FlexInt64 `json:"ts"`
}

type lifecycleWire struct {
	MarketTicker    string    `json:"market_ticker"`
	OpenTs          FlexInt64 `json:"open_ts"`
	CloseTs         FlexInt64 `json:"close_ts"`
	DeterminationTs FlexInt64 `json:"determination_ts"`
	SettledTs       FlexInt64 `json:"settled_ts"`
	Result          string    `json:"result"`
	IsDeactivated   bool      `json:"is_deactivated"`
}

type controlWire struct {
	Channel       string   `json:"channel"`
	SID           int64    `json:"sid"`
	Code          int      `json:"code"`
	Msg           string   `json:"msg"`
	MarketTickers []string `json:"market_tickers"`
}
