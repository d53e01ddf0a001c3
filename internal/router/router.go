package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rickgao/kalshi-go/internal/kerr"
	"github.com/rickgao/kalshi-go/internal/model"
)

// ErrUnknownType is returned by Decode for a message type it does not know.
var ErrUnknownType = errors.New("unknown message type")

// Decode parses one inbound WebSocket text frame.
//
// Data messages decode to a Frame with Event set; command responses decode
// to a Frame with Control set. Malformed JSON yields a kerr parse error.
func Decode(data []byte) (*Frame, error) {
	var env envelopeWire
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, kerr.Parse("decode envelope", err)
	}
	if env.Type == "" {
		return nil, kerr.Parse("message has no type", nil)
	}

	frame := &Frame{
		Type: env.Type,
		ID:   env.ID,
		SID:  env.SID,
	}
	if env.Seq != nil {
		frame.Seq = *env.Seq
		frame.HasSeq = true
	}
	meta := Meta{SID: env.SID, Seq: frame.Seq}

	var err error
	switch env.Type {
	case TypeOrderbookSnapshot:
		frame.Event, err = parseOrderbookSnapshot(env.Msg, meta)
	case TypeOrderbookDelta:
		frame.Event, err = parseOrderbookDelta(env.Msg, meta)
	case TypeTrade:
		frame.Event, err = parseTrade(env.Msg, meta)
	case TypeFill:
		frame.Event, err = parseFill(env.Msg, meta)
	case TypeMarketLifecycle, TypeMarketLifecycleV2:
		frame.Event, err = parseLifecycle(env.Msg, meta)
	case TypeSubscribed, TypeUnsubscribed, TypeOK, TypeError:
		frame.Control, err = parseControl(env)
	default:
		return frame, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err != nil {
		return nil, kerr.Parse("decode "+env.Type, err)
	}

	return frame, nil
}

func unmarshalMsg(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("missing msg body")
	}
	return json.Unmarshal(raw, v)
}

func parseOrderbookSnapshot(raw json.RawMessage, meta Meta) (*OrderbookSnapshot, error) {
	var wire orderbookSnapshotWire
	if err := unmarshalMsg(raw, &wire); err != nil {
		return nil, err
	}

	yes, err := ParseLevels(wire.Yes, wire.YesDollars)
	if err != nil {
		return nil, fmt.Errorf("yes levels: %w", err)
	}
	no, err := ParseLevels(wire.No, wire.NoDollars)
	if err != nil {
		return nil, fmt.Errorf("no levels: %w", err)
	}

	return &OrderbookSnapshot{
		Meta:         meta,
		MarketTicker: wire.MarketTicker,
		Yes:          yes,
		No:           no,
	}, nil
}

// ParseLevels converts [price, qty] pairs, preferring integer cent levels
// and falling back to dollar levels such as ["0.45", 100].
func ParseLevels(cents [][]int, dollars [][]any) ([]model.PriceLevel, error) {
	if len(cents) > 0 {
		levels := make([]model.PriceLevel, 0, len(cents))
		for _, level := range cents {
			if len(level) < 2 {
				continue
			}
			levels = append(levels, model.PriceLevel{Price: level[0], Quantity: level[1]})
		}
		return levels, nil
	}

	levels := make([]model.PriceLevel, 0, len(dollars))
	for _, level := range dollars {
		if len(level) < 2 {
			continue
		}
		price, err := dollarLevelPrice(level[0])
		if err != nil {
			return nil, err
		}
		qty, _ := level[1].(float64)
		levels = append(levels, model.PriceLevel{Price: price, Quantity: int(qty)})
	}
	return levels, nil
}

func dollarLevelPrice(v any) (int, error) {
	switch p := v.(type) {
	case string:
		return model.DollarsToCents(p)
	case float64:
		return model.DollarsToCents(strconv.FormatFloat(p, 'f', -1, 64))
	default:
		return 0, fmt.Errorf("unexpected price %v", v)
	}
}

// price returns cents from the integer field when present, otherwise from
// the dollar string.
func price(cents *int, dollars string) (int, error) {
	if cents != nil {
		return *cents, nil
	}
	if dollars == "" {
		return 0, nil
	}
	return model.DollarsToCents(dollars)
}

// sideOf treats anything other than "yes" as NO.
func sideOf(s string) model.Side {
	if strings.EqualFold(s, "yes") {
		return model.SideYes
	}
	return model.SideNo
}

func parseOrderbookDelta(raw json.RawMessage, meta Meta) (*OrderbookDelta, error) {
	var wire orderbookDeltaWire
	if err := unmarshalMsg(raw, &wire); err != nil {
		return nil, err
	}

	p, err := price(wire.Price, wire.PriceDollars)
	if err != nil {
		return nil, err
	}

	return &OrderbookDelta{
		Meta:         meta,
		MarketTicker: wire.MarketTicker,
		Price:        p,
		PriceDollars: wire.PriceDollars,
		Delta:        wire.Delta,
		Side:         sideOf(wire.Side),
		Ts:           int64(wire.Ts),
	}, nil
}

func parseTrade(raw json.RawMessage, meta Meta) (*Trade, error) {
	var wire tradeWire
	if err := unmarshalMsg(raw, &wire); err != nil {
		return nil, err
	}

	yes, err := price(wire.YesPrice, wire.YesPriceDollars)
	if err != nil {
		return nil, err
	}
	no, err := price(wire.NoPrice, wire.NoPriceDollars)
	if err != nil {
		return nil, err
	}

	return &Trade{
		Meta:         meta,
		TradeID:      wire.TradeID,
		MarketTicker: wire.MarketTicker,
		YesPrice:     yes,
		NoPrice:      no,
		Count:        wire.Count,
		TakerSide:    sideOf(wire.TakerSide),
		Ts:           int64(wire.Ts),
	}, nil
}

func parseFill(raw json.RawMessage, meta Meta) (*Fill, error) {
	var wire fillWire
	if err := unmarshalMsg(raw, &wire); err != nil {
		return nil, err
	}

	yes, err := price(wire.YesPrice, wire.YesPriceDollars)
	if err != nil {
		return nil, err
	}
	no, err := price(wire.NoPrice, wire.NoPriceDollars)
	if err != nil {
		return nil, err
	}

	action := model.ActionBuy
	if strings.EqualFold(wire.Action, "sell") {
		action = model.ActionSell
	}

	return &Fill{
		Meta:         meta,
		TradeID:      wire.TradeID,
		OrderID:      wire.OrderID,
		MarketTicker: wire.MarketTicker,
		IsTaker:      wire.IsTaker,
		Side:         sideOf(wire.Side),
		YesPrice:     yes,
		NoPrice:      no,
		Count:        wire.Count,
		Action:       action,
		Ts:           int64(wire.Ts),
	}, nil
}

func parseLifecycle(raw json.RawMessage, meta Meta) (*MarketLifecycle, error) {
	var wire lifecycleWire
	if err := unmarshalMsg(raw, &wire); err != nil {
		return nil, err
	}

	return &MarketLifecycle{
		Meta:            meta,
		MarketTicker:    wire.MarketTicker,
		OpenTs:          int64(wire.OpenTs),
		CloseTs:         int64(wire.CloseTs),
		DeterminationTs: int64(wire.DeterminationTs),
		SettledTs:       int64(wire.SettledTs),
		Result:          wire.Result,
		IsDeactivated:   wire.IsDeactivated,
	}, nil
}

func parseControl(env envelopeWire) (*Control, error) {
	ctrl := &Control{
		ID:   env.ID,
		Type: env.Type,
		SID:  env.SID,
	}
	if len(env.Msg) == 0 {
		return ctrl, nil
	}

	var wire controlWire
	if err := json.Unmarshal(env.Msg, &wire); err != nil {
		return nil, err
	}
	if wire.SID != 0 {
		ctrl.SID = wire.SID
	}
	ctrl.Channel = wire.Channel
	ctrl.Code = wire.Code
	ctrl.Message = wire.Msg
	ctrl.MarketTickers = wire.MarketTickers
	return ctrl, nil
}
