package writer

import (
	"encoding/json"
	"time"

	"github.com/rickgao/kalshi-go/internal/model"
	"github.com/rickgao/kalshi-go/internal/router"
)

type snapshotRow struct {
	Ticker     string
	Seq        int64
	SID        int64
	ReceivedAt time.Time
	YesLevels  []byte // jsonb [[price, qty], ...]
	NoLevels   []byte
	BestYesBid int // 0 when the side is empty
	BestYesAsk int
}

type deltaRow struct {
	Ticker     string
	Seq        int64
	SID        int64
	ReceivedAt time.Time
	Side       string
	Price      int
	Delta      int
}

type tradeRow struct {
	TradeID    string
	Ticker     string
	YesPrice   int
	NoPrice    int
	Count      int
	TakerSide  string
	Ts         int64
	ReceivedAt time.Time
}

type fillRow struct {
	TradeID  string
	OrderID  string
	Ticker   string
	Side     string
	Action   string
	IsTaker  bool
	YesPrice int
	Count    int
	Ts       int64
}

func transformSnapshot(s *router.OrderbookSnapshot) snapshotRow {
	bestBid := bestPrice(s.Yes)
	bestAsk := 0
	if noBid := bestPrice(s.No); noBid > 0 {
		bestAsk = model.ComplementPrice(noBid)
	}

	return snapshotRow{
		Ticker:     s.MarketTicker,
		Seq:        s.Seq,
		SID:        s.SID,
		ReceivedAt: s.ReceivedAt,
		YesLevels:  levelsToJSONB(s.Yes),
		NoLevels:   levelsToJSONB(s.No),
		BestYesBid: bestBid,
		BestYesAsk: bestAsk,
	}
}

func transformDelta(d *router.OrderbookDelta) deltaRow {
	return deltaRow{
		Ticker:     d.MarketTicker,
		Seq:        d.Seq,
		SID:        d.SID,
		ReceivedAt: d.ReceivedAt,
		Side:       d.Side.String(),
		Price:      d.Price,
		Delta:      d.Delta,
	}
}

func transformTrade(t *router.Trade) tradeRow {
	return tradeRow{
		TradeID:    t.TradeID,
		Ticker:     t.MarketTicker,
		YesPrice:   t.YesPrice,
		NoPrice:    t.NoPrice,
		Count:      t.Count,
		TakerSide:  t.TakerSide.String(),
		Ts:         t.Ts,
		ReceivedAt: t.ReceivedAt,
	}
}

func transformFill(f *router.Fill) fillRow {
	return fillRow{
		TradeID:  f.TradeID,
		OrderID:  f.OrderID,
		Ticker:   f.MarketTicker,
		Side:     f.Side.String(),
		Action:   f.Action.String(),
		IsTaker:  f.IsTaker,
		YesPrice: f.YesPrice,
		Count:    f.Count,
		Ts:       f.Ts,
	}
}

// bestPrice returns the highest price with positive quantity, or 0.
func bestPrice(levels []model.PriceLevel) int {
	best := 0
	for _, l := range levels {
		if l.Quantity > 0 && l.Price > best {
			best = l.Price
		}
	}
	return best
}

// levelsToJSONB encodes levels as [[price, qty], ...]. An empty side is [].
func levelsToJSONB(levels []model.PriceLevel) []byte {
	pairs := make([][2]int, 0, len(levels))
	for _, l := range levels {
		pairs = append(pairs, [2]int{l.Price, l.Quantity})
	}
	data, _ := json.Marshal(pairs)
	return data
}
