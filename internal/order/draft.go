// Package order keeps an in-progress trade consistent and submits it.
package order

import (
	"fmt"
	"strconv"
	"strings"

	"apex-trader/internal/model"

	"github.com/shopspring/decimal"
)

// Draft is the user's order before submission. Quantity and limit price
// hold the raw user input so that bad input can be reported at submission
// time instead of being silently coerced.
type Draft struct {
	Symbol         string
	Side           model.Side
	Kind           model.OrderKind
	Quantity       string
	LimitPrice     string
	ReferencePrice decimal.Decimal
	HeldShares     int64
}

// NewDraft seeds a draft for a tradeable instrument: buy, market, one share,
// limit price preset to the reference price.
func NewDraft(t model.Tradeable) Draft {
	return Draft{
		Symbol:         t.Symbol,
		Side:           model.SideBuy,
		Kind:           model.KindMarket,
		Quantity:       "1",
		LimitPrice:     t.ReferencePrice.String(),
		ReferencePrice: t.ReferencePrice,
		HeldShares:     t.HeldShares,
	}
}

// Reseed switches the draft to another instrument. Side and kind are kept;
// quantity, prices and holdings come from the new instrument only.
func (d *Draft) Reseed(t model.Tradeable) {
	side, kind := d.Side, d.Kind
	*d = NewDraft(t)
	d.Side, d.Kind = side, kind
}

// PriceInForce is the price the order is valued at: the reference price for
// market orders, the limit price otherwise. Unparseable input counts as zero.
func (d Draft) PriceInForce() decimal.Decimal {
	if d.Kind == model.KindLimit {
		p, err := parseDecimal(d.LimitPrice)
		if err != nil {
			return decimal.Zero
		}
		return p
	}
	return d.ReferencePrice
}

// EstimatedTotal is quantity times the price in force, computed from the
// current fields on every call.
func (d Draft) EstimatedTotal() decimal.Decimal {
	q, err := parseDecimal(d.Quantity)
	if err != nil {
		return decimal.Zero
	}
	return q.Mul(d.PriceInForce())
}

// EstimatedTotalString is EstimatedTotal formatted for display.
func (d Draft) EstimatedTotalString() string {
	return model.FormatUSD(d.EstimatedTotal())
}

// ValidationError is a draft rule violation. It never reaches the network.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Validate applies the submission rules in order and returns the first
// failure.
func (d Draft) Validate() error {
	q, err := parseQuantity(d.Quantity)
	if err != nil || q <= 0 {
		return &ValidationError{Field: "quantity", Message: "Quantity must be a positive whole number."}
	}
	if d.Side == model.SideSell && q > d.HeldShares {
		return &ValidationError{
			Field:   "quantity",
			Message: fmt.Sprintf("Cannot sell %d shares of %s: only %d held.", q, d.Symbol, d.HeldShares),
		}
	}
	if d.Kind == model.KindLimit {
		p, err := parseDecimal(d.LimitPrice)
		if err != nil || p.IsNegative() {
			return &ValidationError{Field: "limitPrice", Message: "Limit price must be a non-negative number."}
		}
	}
	return nil
}

// Request converts a valid draft into the wire body. Market orders carry the
// reference price, limit orders the limit price.
func (d Draft) Request() (model.OrderRequest, error) {
	if err := d.Validate(); err != nil {
		return model.OrderRequest{}, err
	}
	q, _ := parseQuantity(d.Quantity)
	return model.OrderRequest{
		Symbol:     d.Symbol,
		ActionType: d.Side,
		Quantity:   q,
		OrderType:  d.Kind,
		Price:      d.PriceInForce(),
	}, nil
}

// parseQuantity accepts plain base-10 integers only, so exponent and
// out-of-range forms fail instead of wrapping.
func parseQuantity(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty number")
	}
	return decimal.NewFromString(s)
}

// ParseSide accepts buy/sell in any case.
func ParseSide(s string) (model.Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return model.SideBuy, nil
	case "sell":
		return model.SideSell, nil
	}
	return "", fmt.Errorf("invalid side %q (use buy|sell)", s)
}

// ParseKind accepts market/limit in any case.
func ParseKind(s string) (model.OrderKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "market":
		return model.KindMarket, nil
	case "limit":
		return model.KindLimit, nil
	}
	return "", fmt.Errorf("invalid order type %q (use market|limit)", s)
}
