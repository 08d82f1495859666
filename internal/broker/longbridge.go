// Package broker holds the gateways that are not the Apex HTTP API: a
// Longbridge brokerage account and an in-memory paper account.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"

	"apex-trader/internal/market"
	"apex-trader/internal/model"

	"github.com/google/uuid"
	"github.com/longbridge/openapi-go/config"
	"github.com/longbridge/openapi-go/quote"
	"github.com/longbridge/openapi-go/trade"
	"github.com/shopspring/decimal"
)

// Longbridge trades a brokerage account through the Longbridge OpenAPI.
// The account is authenticated by the credential file, so there is no
// remote login: the session is active until Logout, which is local.
type Longbridge struct {
	tc   *trade.TradeContext
	feed *market.Feed

	mu        sync.Mutex
	loggedOut bool
}

// NewLongbridge connects the trade and quote contexts. Without a quote
// context positions are valued at cost.
func NewLongbridge(cfg *config.Config) (*Longbridge, error) {
	tc, err := trade.NewFromCfg(cfg)
	if err != nil {
		return nil, fmt.Errorf("trade context init: %w", err)
	}
	qc, err := quote.NewFromCfg(cfg)
	if err != nil {
		log.Printf("quote context init failed: %v (pricing at cost)", err)
		qc = nil
	}
	log.Println("connected to Longbridge API")
	return &Longbridge{tc: tc, feed: market.NewFeed(qc)}, nil
}

func (l *Longbridge) active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.loggedOut
}

var notLoggedIn = &model.RejectedError{Reason: "Not logged in", Status: http.StatusUnauthorized}

// SessionCheck probes the account balance endpoint.
func (l *Longbridge) SessionCheck(ctx context.Context) (*model.User, error) {
	if !l.active() {
		return nil, nil
	}
	if _, err := l.tc.AccountBalance(ctx, &trade.GetAccountBalance{}); err != nil {
		return nil, &model.TransportError{Op: "account balance", Err: err}
	}
	return &model.User{Username: "longbridge", Name: "Longbridge account"}, nil
}

func (l *Longbridge) Login(ctx context.Context, cred model.Credentials) (model.User, error) {
	return model.User{}, &model.AuthError{Message: "Longbridge accounts sign in with the credential file."}
}

// Logout ends the local session and drops quote subscriptions.
func (l *Longbridge) Logout(ctx context.Context) error {
	l.mu.Lock()
	l.loggedOut = true
	l.mu.Unlock()
	return l.feed.Unwatch(ctx, l.feed.Watched())
}

func (l *Longbridge) Signup(ctx context.Context, f model.SignupForm) error {
	return &model.RejectedError{Reason: "Registration is not available for brokerage accounts."}
}

// PlaceOrder submits a day order. Limit orders carry the price; market
// orders do not.
func (l *Longbridge) PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderAck, error) {
	if !l.active() {
		return model.OrderAck{}, notLoggedIn
	}
	sub := SubmitRequest(req)
	orderID, err := l.tc.SubmitOrder(ctx, sub)
	if err != nil {
		log.Printf("order rejected: symbol=%s err=%v", sub.Symbol, err)
		return model.OrderAck{}, classify("submit order", err)
	}
	log.Printf("order submitted: %s -> %s", sub.Remark, orderID)
	return model.OrderAck{
		ConfirmationID: orderID,
		Message:        fmt.Sprintf("%s order for %d %s submitted", sub.Side, req.Quantity, sub.Symbol),
	}, nil
}

// SubmitRequest maps an order request onto the SDK's submit form.
func SubmitRequest(req model.OrderRequest) *trade.SubmitOrder {
	sub := &trade.SubmitOrder{
		Symbol:            FullSymbol(req.Symbol),
		OrderType:         MapOrderType(string(req.OrderType)),
		Side:              MapOrderSide(string(req.ActionType)),
		SubmittedQuantity: uint64(req.Quantity),
		TimeInForce:       MapTimeInForce("DAY"),
		Remark:            "apex-trader:" + uuid.NewString()[:8],
	}
	if req.OrderType == model.KindLimit {
		sub.SubmittedPrice = req.Price
	}
	return sub
}

// Portfolio values stock positions at the last traded price.
func (l *Longbridge) Portfolio(ctx context.Context) ([]model.Holding, error) {
	if !l.active() {
		return nil, notLoggedIn
	}
	resp, err := l.tc.StockPositions(ctx, []string{})
	if err != nil {
		return nil, classify("stock positions", err)
	}

	type position struct {
		symbol string
		qty    decimal.Decimal
		cost   decimal.Decimal
	}
	var positions []position
	var symbols []string
	for _, ch := range resp {
		for _, p := range ch.Positions {
			qty, err := decimal.NewFromString(p.Quantity)
			if err != nil || qty.IsZero() {
				continue
			}
			positions = append(positions, position{p.Symbol, qty, market.Decimal(p.CostPrice)})
			symbols = append(symbols, p.Symbol)
		}
	}
	prices, err := l.feed.LastPrices(ctx, symbols)
	if err != nil {
		log.Printf("quote lookup failed: %v", err)
	}
	// Held symbols stay subscribed so later refreshes price from pushes.
	if err := l.feed.Watch(ctx, symbols); err != nil {
		log.Printf("quote subscribe failed: %v", err)
	}

	out := make([]model.Holding, 0, len(positions))
	for _, p := range positions {
		last, ok := prices[p.symbol]
		if !ok {
			last = p.cost
		}
		out = append(out, Valuate(p.symbol, p.qty.IntPart(), p.cost, last))
	}
	return out, nil
}

// Valuate computes market value and unrealized gain for a position,
// rounded to cents.
func Valuate(symbol string, shares int64, avgCost, last decimal.Decimal) model.Holding {
	qty := decimal.NewFromInt(shares)
	value := qty.Mul(last)
	return model.Holding{
		Symbol:       symbol,
		Shares:       shares,
		AvgCost:      avgCost,
		CurrentPrice: last,
		MarketValue:  value.Round(2),
		GainLoss:     value.Sub(qty.Mul(avgCost)).Round(2),
	}
}

// classify separates transport failures from business rejections.
func classify(op string, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.As(err, &ne) {
		return &model.TransportError{Op: op, Err: err}
	}
	return &model.RejectedError{Reason: err.Error()}
}

// FullSymbol appends the US market suffix to bare tickers.
func FullSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" || strings.Contains(symbol, ".") {
		return symbol
	}
	return symbol + ".US"
}

// MapOrderType converts string to SDK OrderType.
func MapOrderType(s string) trade.OrderType {
	switch strings.ToUpper(s) {
	case "LIMIT", "LO":
		return trade.OrderType("LO")
	case "ELO":
		return trade.OrderType("ELO")
	case "ALO":
		return trade.OrderType("ALO")
	default:
		return trade.OrderType("MO")
	}
}

// MapOrderSide converts string to SDK OrderSide.
func MapOrderSide(s string) trade.OrderSide {
	if strings.ToUpper(s) == "SELL" {
		return trade.OrderSide("Sell")
	}
	return trade.OrderSide("Buy")
}

// MapTimeInForce converts string to SDK TimeType.
func MapTimeInForce(s string) trade.TimeType {
	switch strings.ToUpper(s) {
	case "GTC":
		return trade.TimeType("GoodTilCanceled")
	case "GTD":
		return trade.TimeType("GoodTilDate")
	default:
		return trade.TimeType("Day")
	}
}
