package api

import (
	"fmt"
	"time"

	"github.com/rickgao/kalshi-go/internal/kerr"
	"github.com/rickgao/kalshi-go/internal/router"
)

// ParseTimestamp parses an ISO 8601 timestamp to microseconds since epoch.
// Returns 0 for empty or invalid input.
func ParseTimestamp(iso string) int64 {
	if iso == "" {
		return 0
	}

	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		// Try without timezone
		t, err = time.Parse("2006-01-02T15:04:05", iso)
		if err != nil {
			return 0
		}
	}

	return t.UnixMicro()
}

// ToSnapshot converts a REST book into the stream's snapshot event so it can
// seed or resync a live view. Seq is zero; REST books carry no sequence.
func (o *APIOrderbook) ToSnapshot(ticker string) (*router.OrderbookSnapshot, error) {
	yes, err := router.ParseLevels(o.Yes, o.YesDollars)
	if err != nil {
		return nil, kerr.Parse(fmt.Sprintf("orderbook %s yes levels", ticker), err)
	}
	no, err := router.ParseLevels(o.No, o.NoDollars)
	if err != nil {
		return nil, kerr.Parse(fmt.Sprintf("orderbook %s no levels", ticker), err)
	}

	return &router.OrderbookSnapshot{
		Meta:         router.Meta{ReceivedAt: time.Now()},
		MarketTicker: ticker,
		Yes:          yes,
		No:           no,
	}, nil
}

// MidPrice returns the midpoint of the YES bid and ask in cents, or false
// when either side is empty.
func (m *APIMarket) MidPrice() (float64, bool) {
	if m.YesBid <= 0 || m.YesAsk <= 0 {
		return 0, false
	}
	return float64(m.YesBid+m.YesAsk) / 2, true
}
