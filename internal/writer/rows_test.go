package writer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rickgao/kalshi-go/internal/model"
	"github.com/rickgao/kalshi-go/internal/router"
)

func TestTransformSnapshot(t *testing.T) {
	at := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name             string
		yes, no          []model.PriceLevel
		wantBid, wantAsk int
		wantYes, wantNo  string
	}{
		{
			name:    "both sides",
			yes:     []model.PriceLevel{{Price: 45, Quantity: 1}, {Price: 48, Quantity: 10}},
			no:      []model.PriceLevel{{Price: 50, Quantity: 5}, {Price: 30, Quantity: 2}},
			wantBid: 48,
			wantAsk: 50,
			wantYes: "[[45,1],[48,10]]",
			wantNo:  "[[50,5],[30,2]]",
		},
		{
			name:    "empty no side",
			yes:     []model.PriceLevel{{Price: 20, Quantity: 3}},
			wantBid: 20,
			wantAsk: 0,
			wantYes: "[[20,3]]",
			wantNo:  "[]",
		},
		{
			name:    "zero quantity ignored for best",
			yes:     []model.PriceLevel{{Price: 60, Quantity: 0}, {Price: 55, Quantity: 1}},
			no:      []model.PriceLevel{{Price: 40, Quantity: 0}},
			wantBid: 55,
			wantAsk: 0,
			wantYes: "[[60,0],[55,1]]",
			wantNo:  "[[40,0]]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := transformSnapshot(&router.OrderbookSnapshot{
				Meta:         router.Meta{SID: 3, Seq: 9, ReceivedAt: at},
				MarketTicker: "MKT",
				Yes:          tt.yes,
				No:           tt.no,
			})

			assert.Equal(t, "MKT", row.Ticker)
			assert.Equal(t, int64(9), row.Seq)
			assert.Equal(t, int64(3), row.SID)
			assert.Equal(t, at, row.ReceivedAt)
			assert.Equal(t, tt.wantBid, row.BestYesBid)
			assert.Equal(t, tt.wantAsk, row.BestYesAsk)
			assert.JSONEq(t, tt.wantYes, string(row.YesLevels))
			assert.JSONEq(t, tt.wantNo, string(row.NoLevels))
		})
	}
}

func TestTransformDelta(t *testing.T) {
	row := transformDelta(&router.OrderbookDelta{
		Meta:         router.Meta{SID: 1, Seq: 42},
		MarketTicker: "MKT",
		Price:        53,
		PriceDollars: "0.5250",
		Delta:        -7,
		Side:         model.SideNo,
	})

	assert.Equal(t, deltaRow{Ticker: "MKT", Seq: 42, SID: 1, Side: "no", Price: 53, Delta: -7}, row)
}

func TestTransformTradeAndFill(t *testing.T) {
	trade := transformTrade(&router.Trade{
		TradeID:      "t1",
		MarketTicker: "MKT",
		YesPrice:     52,
		NoPrice:      48,
		Count:        50,
		TakerSide:    model.SideYes,
		Ts:           1705320000,
	})
	assert.Equal(t, "t1", trade.TradeID)
	assert.Equal(t, 52, trade.YesPrice)
	assert.Equal(t, 48, trade.NoPrice)
	assert.Equal(t, "yes", trade.TakerSide)
	assert.Equal(t, int64(1705320000), trade.Ts)

	fill := transformFill(&router.Fill{
		TradeID:      "t1",
		OrderID:      "o1",
		MarketTicker: "MKT",
		Side:         model.SideNo,
		Action:       model.ActionBuy,
		YesPrice:     52,
		Count:        2,
	})
	assert.Equal(t, fillRow{TradeID: "t1", OrderID: "o1", Ticker: "MKT", Side: "no", Action: "buy", YesPrice: 52, Count: 2}, fill)
}
