package api

import (
	"github.com/rickgao/kalshi-go/internal/model"
	"github.com/rickgao/kalshi-go/internal/router"
)

// ExchangeStatusResponse from GET /exchange/status
type ExchangeStatusResponse struct {
	ExchangeActive      bool   `json:"exchange_active"`
	TradingActive       bool   `json:"trading_active"`
	EstimatedResumeTime string `json:"exchange_estimated_resume_time,omitempty"`
}

// ScheduleResponse from GET /exchange/schedule
type ScheduleResponse struct {
	Schedule ExchangeSchedule `json:"schedule"`
}

// ExchangeSchedule lists the trading week and planned maintenance.
type ExchangeSchedule struct {
	StandardHours      []WeeklySchedule    `json:"standard_hours"`
	MaintenanceWindows []MaintenanceWindow `json:"maintenance_windows"`
}

// WeeklySchedule is one effective period of standard trading hours.
type WeeklySchedule struct {
	StartTime string           `json:"start_time"`
	EndTime   string           `json:"end_time"`
	Monday    []TradingSession `json:"monday"`
	Tuesday   []TradingSession `json:"tuesday"`
	Wednesday []TradingSession `json:"wednesday"`
	Thursday  []TradingSession `json:"thursday"`
	Friday    []TradingSession `json:"friday"`
	Saturday  []TradingSession `json:"saturday"`
	Sunday    []TradingSession `json:"sunday"`
}

// TradingSession is an open/close pair in exchange local time ("08:00").
type TradingSession struct {
	OpenTime  string `json:"open_time"`
	CloseTime string `json:"close_time"`
}

// MaintenanceWindow is a planned outage.
type MaintenanceWindow struct {
	StartDatetime string `json:"start_datetime"`
	EndDatetime   string `json:"end_datetime"`
}

// AnnouncementsResponse from GET /exchange/announcements
type AnnouncementsResponse struct {
	Announcements []Announcement `json:"announcements"`
}

// Announcement is an exchange-wide notice.
type Announcement struct {
	Type         string `json:"type"`
	Message      string `json:"message"`
	DeliveryTime string `json:"delivery_time"`
	Status       string `json:"status"`
}

// MarketsResponse from GET /markets
type MarketsResponse struct {
	Markets []APIMarket `json:"markets"`
	Cursor  string      `json:"cursor"`
}

// APIMarket represents a market from the Kalshi API.
type APIMarket struct {
	Ticker      string `json:"ticker"`
	EventTicker string `json:"event_ticker"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Status      string `json:"status"`
	MarketType  string `json:"market_type"`
	Result      string `json:"result"`

	// Prices in cents
	YesBid    int `json:"yes_bid"`
	YesAsk    int `json:"yes_ask"`
	NoBid     int `json:"no_bid"`
	NoAsk     int `json:"no_ask"`
	LastPrice int `json:"last_price"`

	// Prices as strings (sub-penny)
	YesBidDollars    string `json:"yes_bid_dollars"`
	YesAskDollars    string `json:"yes_ask_dollars"`
	NoBidDollars     string `json:"no_bid_dollars"`
	NoAskDollars     string `json:"no_ask_dollars"`
	LastPriceDollars string `json:"last_price_dollars"`

	// Volume
	Volume       int64 `json:"volume"`
	Volume24h    int64 `json:"volume_24h"`
	OpenInterest int64 `json:"open_interest"`

	// Timestamps (ISO 8601)
	OpenTime       string `json:"open_time"`
	CloseTime      string `json:"close_time"`
	ExpirationTime string `json:"expiration_time"`
	CreatedTime    string `json:"created_time"`

	// Settlement
	SettlementValue        *int    `json:"settlement_value"`
	SettlementValueDollars *string `json:"settlement_value_dollars"`
}

// SingleMarketResponse from GET /markets/{ticker}
type SingleMarketResponse struct {
	Market APIMarket `json:"market"`
}

// OrderbookResponse from GET /markets/{ticker}/orderbook
type OrderbookResponse struct {
	Orderbook APIOrderbook `json:"orderbook"`
}

// APIOrderbook is a resting book. Each side lists bids as [price, qty]
// pairs, in cents or as dollar strings.
type APIOrderbook struct {
	Yes        [][]int `json:"yes"`
	No         [][]int `json:"no"`
	YesDollars [][]any `json:"yes_dollars"`
	NoDollars  [][]any `json:"no_dollars"`
}

// TradesResponse from GET /markets/trades
type TradesResponse struct {
	Trades []APITrade `json:"trades"`
	Cursor string     `json:"cursor"`
}

// APITrade is a public trade print.
type APITrade struct {
	TradeID     string     `json:"trade_id"`
	Ticker      string     `json:"ticker"`
	YesPrice    int        `json:"yes_price"`
	NoPrice     int        `json:"no_price"`
	Count       int        `json:"count"`
	TakerSide   model.Side `json:"taker_side"`
	CreatedTime string     `json:"created_time"`
}

// EventsResponse from GET /events
type EventsResponse struct {
	Events []APIEvent `json:"events"`
	Cursor string     `json:"cursor"`
}

// APIEvent represents an event from the Kalshi API.
type APIEvent struct {
	EventTicker       string      `json:"event_ticker"`
	SeriesTicker      string      `json:"series_ticker"`
	Title             string      `json:"title"`
	Subtitle          string      `json:"sub_title"`
	Category          string      `json:"category"`
	MutuallyExclusive bool        `json:"mutually_exclusive"`
	Markets           []APIMarket `json:"markets,omitempty"`
}

// SingleEventResponse from GET /events/{event_ticker}
type SingleEventResponse struct {
	Event   APIEvent    `json:"event"`
	Markets []APIMarket `json:"markets"`
}

// SeriesResponse from GET /series/{series_ticker}
type SeriesResponse struct {
	Series APISeries `json:"series"`
}

// SeriesListResponse from GET /series
type SeriesListResponse struct {
	Series []APISeries `json:"series"`
}

// APISeries represents a series from the Kalshi API.
type APISeries struct {
	Ticker            string   `json:"ticker"`
	Title             string   `json:"title"`
	Category          string   `json:"category"`
	Frequency         string   `json:"frequency"`
	Tags              []string `json:"tags"`
	SettlementSources []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"settlement_sources"`
}

// BalanceResponse from GET /portfolio/balance. Values are in cents.
type BalanceResponse struct {
	Balance        int64 `json:"balance"`
	PortfolioValue int64 `json:"portfolio_value"`
}

// PositionsResponse from GET /portfolio/positions
type PositionsResponse struct {
	MarketPositions []MarketPosition `json:"market_positions"`
	EventPositions  []EventPosition  `json:"event_positions"`
	Cursor          string           `json:"cursor"`
}

// MarketPosition is the holding in one market. Position is positive for
// YES contracts and negative for NO.
type MarketPosition struct {
	Ticker             string `json:"ticker"`
	Position           int    `json:"position"`
	MarketExposure     int64  `json:"market_exposure"`
	RealizedPnl        int64  `json:"realized_pnl"`
	TotalTraded        int64  `json:"total_traded"`
	RestingOrdersCount int    `json:"resting_orders_count"`
	FeesPaid           int64  `json:"fees_paid"`
}

// EventPosition aggregates positions across an event's markets.
type EventPosition struct {
	EventTicker   string `json:"event_ticker"`
	EventExposure int64  `json:"event_exposure"`
	RealizedPnl   int64  `json:"realized_pnl"`
	TotalCost     int64  `json:"total_cost"`
	FeesPaid      int64  `json:"fees_paid"`
	RestingOrders int    `json:"resting_order_count"`
}

// FillsResponse from GET /portfolio/fills
type FillsResponse struct {
	Fills  []APIFill `json:"fills"`
	Cursor string    `json:"cursor"`
}

// APIFill is one of the caller's executions.
type APIFill struct {
	TradeID     string       `json:"trade_id"`
	OrderID     string       `json:"order_id"`
	Ticker      string       `json:"ticker"`
	Side        model.Side   `json:"side"`
	Action      model.Action `json:"action"`
	Count       int          `json:"count"`
	YesPrice    int          `json:"yes_price"`
	NoPrice     int          `json:"no_price"`
	IsTaker     bool         `json:"is_taker"`
	CreatedTime string       `json:"created_time"`
}

// SettlementsResponse from GET /portfolio/settlements
type SettlementsResponse struct {
	Settlements []Settlement `json:"settlements"`
	Cursor      string       `json:"cursor"`
}

// Settlement is the payout of a settled market position.
type Settlement struct {
	Ticker       string `json:"ticker"`
	MarketResult string `json:"market_result"`
	YesCount     int    `json:"yes_count"`
	NoCount      int    `json:"no_count"`
	YesTotalCost int64  `json:"yes_total_cost"`
	NoTotalCost  int64  `json:"no_total_cost"`
	Revenue      int64  `json:"revenue"`
	SettledTime  string `json:"settled_time"`
}

// OrdersResponse from GET /portfolio/orders
type OrdersResponse struct {
	Orders []Order `json:"orders"`
	Cursor string  `json:"cursor"`
}

// OrderResponse wraps a single order.
type OrderResponse struct {
	Order Order `json:"order"`
}

// Order is a resting or historical order.
type Order struct {
	OrderID        string       `json:"order_id"`
	ClientOrderID  string       `json:"client_order_id"`
	Ticker         string       `json:"ticker"`
	Side           model.Side   `json:"side"`
	Action         model.Action `json:"action"`
	Type           string       `json:"type"`
	Status         string       `json:"status"`
	YesPrice       int          `json:"yes_price"`
	NoPrice        int          `json:"no_price"`
	InitialCount   int          `json:"initial_count"`
	RemainingCount int          `json:"remaining_count"`
	FillCount      int          `json:"fill_count"`
	CreatedTime    string       `json:"created_time"`
	ExpirationTime string       `json:"expiration_time,omitempty"`
}

// Order types.
const (
	OrderTypeLimit  = "limit"
	OrderTypeMarket = "market"
)

// CreateOrderParams is the body of POST /portfolio/orders. Exactly one of
// YesPrice and NoPrice is set for limit orders.
type CreateOrderParams struct {
	Ticker            string       `json:"ticker"`
	Side              model.Side   `json:"side"`
	Action            model.Action `json:"action"`
	Type              string       `json:"type"`
	Count             int          `json:"count"`
	YesPrice          *int         `json:"yes_price,omitempty"`
	NoPrice           *int         `json:"no_price,omitempty"`
	ClientOrderID     string       `json:"client_order_id,omitempty"`
	ExpirationTs      *int64       `json:"expiration_ts,omitempty"`
	SellPositionFloor *int         `json:"sell_position_floor,omitempty"`
	BuyMaxCost        *int         `json:"buy_max_cost,omitempty"`
}

// AmendOrderParams is the body of POST /portfolio/orders/{id}/amend.
type AmendOrderParams struct {
	OrderID  string `json:"-"`
	Count    *int   `json:"count,omitempty"`
	YesPrice *int   `json:"yes_price,omitempty"`
	NoPrice  *int   `json:"no_price,omitempty"`
}

// BatchCreateResponse from POST /portfolio/orders/batched
type BatchCreateResponse struct {
	Orders []BatchOrderResult `json:"orders"`
}

// BatchOrderResult is one entry of a batched create or cancel.
type BatchOrderResult struct {
	OrderID   string    `json:"order_id,omitempty"`
	Order     *Order    `json:"order,omitempty"`
	ReducedBy int       `json:"reduced_by,omitempty"`
	Error     *APIError `json:"error,omitempty"`
}

// APIError is the per-item error of a batched call.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// BatchCancelResponse from DELETE /portfolio/orders/batched
type BatchCancelResponse struct {
	Orders []BatchOrderResult `json:"orders"`
}

// RFQsResponse from GET /communications/rfqs
type RFQsResponse struct {
	RFQs   []RFQ  `json:"rfqs"`
	Cursor string `json:"cursor"`
}

// RFQResponse wraps a single RFQ.
type RFQResponse struct {
	RFQ RFQ `json:"rfq"`
}

// RFQ is a request for quote.
type RFQ struct {
	ID           string           `json:"id"`
	MarketTicker string           `json:"market_ticker"`
	Side         model.Side       `json:"side"`
	Action       model.Action     `json:"action"`
	Count        int              `json:"count"`
	Status       string           `json:"status"`
	ExpiresAt    router.FlexInt64 `json:"expires_at"`
	CreatedTime  router.FlexInt64 `json:"created_time"`
}

// CreateRFQParams is the body of POST /communications/rfqs.
type CreateRFQParams struct {
	MarketTicker string       `json:"market_ticker"`
	Side         model.Side   `json:"side"`
	Action       model.Action `json:"action"`
	Count        int          `json:"count"`
	ExpiresAt    *int64       `json:"expires_at,omitempty"`
}

// GetMarketsOptions configures a GetMarkets request.
type GetMarketsOptions struct {
	Limit        int
	Cursor       string
	EventTicker  string
	SeriesTicker string
	Tickers      []string
	Status       string
}

// GetTradesOptions configures a GetTrades request. Timestamps are unix
// seconds.
type GetTradesOptions struct {
	Limit  int
	Cursor string
	Ticker string
	MinTs  int64
	MaxTs  int64
}

// GetEventsOptions configures a GetEvents request.
type GetEventsOptions struct {
	Limit             int
	Cursor            string
	SeriesTicker      string
	Status            string
	WithNestedMarkets bool
}

// GetPositionsOptions configures GetPositions and GetSettlements.
type GetPositionsOptions struct {
	Limit            int
	Cursor           string
	Ticker           string
	EventTicker      string
	SettlementStatus string
}

// GetFillsOptions configures a GetFills request.
type GetFillsOptions struct {
	Limit   int
	Cursor  string
	Ticker  string
	OrderID string
	MinTs   int64
	MaxTs   int64
}

// GetOrdersOptions configures a GetOrders request.
type GetOrdersOptions struct {
	Limit       int
	Cursor      string
	Ticker      string
	EventTicker string
	Status      string
}

// GetRFQsOptions configures a GetRFQs request.
type GetRFQsOptions struct {
	Limit        int
	Cursor       string
	MarketTicker string
	Status       string
}
