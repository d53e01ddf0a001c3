package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Side is one of the two complementary outcomes of a binary market.
type Side int

const (
	SideYes Side = iota
	SideNo
)

// ParseSide parses "yes"/"no" (case-insensitive).
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "yes":
		return SideYes, nil
	case "no":
		return SideNo, nil
	}
	return SideYes, fmt.Errorf("unknown side %q", s)
}

func (s Side) String() string {
	if s == SideNo {
		return "no"
	}
	return "yes"
}

func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Side) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseSide(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Action is the direction of an order.
type Action int

const (
	ActionBuy Action = iota
	ActionSell
)

// ParseAction parses "buy"/"sell" (case-insensitive).
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(s) {
	case "buy":
		return ActionBuy, nil
	case "sell":
		return ActionSell, nil
	}
	return ActionBuy, fmt.Errorf("unknown action %q", s)
}

func (a Action) String() string {
	if a == ActionSell {
		return "sell"
	}
	return "buy"
}

func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseAction(str)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// PriceLevel is one resting price level. Price is in cents (1-99).
type PriceLevel struct {
	Price    int
	Quantity int
}

// ComplementPrice maps a NO price to the equivalent YES price (and back).
// YES and NO prices of a binary market sum to 100 cents.
func ComplementPrice(price int) int {
	return 100 - price
}

var (
	hundred         = decimal.NewFromInt(100)
	hundredThousand = decimal.NewFromInt(100000)
)

// DollarsToCents converts a dollar string ("0.52") to whole cents, rounding
// half away from zero for sub-penny values.
func DollarsToCents(dollars string) (int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(dollars))
	if err != nil {
		return 0, fmt.Errorf("parse dollars %q: %w", dollars, err)
	}
	return int(d.Mul(hundred).Round(0).IntPart()), nil
}

// DollarsToInternal converts a dollar string to hundred-thousandths
// ("0.52" -> 52000, "0.5250" -> 52500). Returns 0 for empty or invalid input.
func DollarsToInternal(dollars string) int {
	if dollars == "" {
		return 0
	}
	d, err := decimal.NewFromString(strings.TrimSpace(dollars))
	if err != nil {
		return 0
	}
	return int(d.Mul(hundredThousand).Round(0).IntPart())
}

// CentsToInternal converts cents to hundred-thousandths (52 -> 52000).
func CentsToInternal(cents int) int {
	return cents * 1000
}

// CentsToDollars formats cents as a dollar string ("0.52").
func CentsToDollars(cents int) string {
	return decimal.New(int64(cents), -2).StringFixed(2)
}
