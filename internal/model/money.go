package model

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatUSD renders an amount as dollars with cents, e.g. "$450.00".
func FormatUSD(d decimal.Decimal) string {
	cents := d.Shift(2).Round(0).IntPart()
	return money.New(cents, money.USD).Display()
}

// FormatSignedUSD is FormatUSD with an explicit "+" on gains.
func FormatSignedUSD(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + FormatUSD(d)
	}
	return FormatUSD(d)
}
