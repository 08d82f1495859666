package portfolio

import (
	"bytes"
	"fmt"

	"apex-trader/internal/model"

	"github.com/shopspring/decimal"
)

// Summary totals the server-computed values of a projection.
type Summary struct {
	Positions   int
	MarketValue decimal.Decimal
	GainLoss    decimal.Decimal
}

// Summarize adds up market value and gain/loss across holdings.
func Summarize(holdings []model.Holding) Summary {
	s := Summary{Positions: len(holdings)}
	for _, h := range holdings {
		s.MarketValue = s.MarketValue.Add(h.MarketValue)
		s.GainLoss = s.GainLoss.Add(h.GainLoss)
	}
	return s
}

// Markdown renders the holdings table shown on the portfolio screen.
func Markdown(holdings []model.Holding) string {
	var buf bytes.Buffer
	buf.WriteString("# My Portfolio\n\n")
	if len(holdings) == 0 {
		buf.WriteString("Your portfolio is empty.\n")
		return buf.String()
	}
	buf.WriteString("| Symbol | Shares | Avg. Cost | Current Price | Market Value | Gain/Loss |\n")
	buf.WriteString("|:--|--:|--:|--:|--:|--:|\n")
	for _, h := range holdings {
		fmt.Fprintf(&buf, "| %s | %d | %s | %s | %s | %s |\n",
			h.Symbol, h.Shares,
			model.FormatUSD(h.AvgCost),
			model.FormatUSD(h.CurrentPrice),
			model.FormatUSD(h.MarketValue),
			model.FormatSignedUSD(h.GainLoss))
	}
	s := Summarize(holdings)
	fmt.Fprintf(&buf, "\n**Total market value:** %s  \n**Total gain/loss:** %s\n",
		model.FormatUSD(s.MarketValue), model.FormatSignedUSD(s.GainLoss))
	return buf.String()
}
