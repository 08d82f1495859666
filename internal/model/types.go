package model

import "github.com/shopspring/decimal"

// User is the identity returned by the session and login endpoints.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	IsAdmin  bool   `json:"is_admin"`
}

// Credentials is the form-encoded login payload.
type Credentials struct {
	Username string
	Password string
}

// SignupForm carries the profile fields posted to the signup endpoint.
type SignupForm struct {
	FirstName       string
	LastName        string
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderKind selects how the order is priced.
type OrderKind string

const (
	KindMarket OrderKind = "market"
	KindLimit  OrderKind = "limit"
)

// OrderRequest is the JSON body of the place-order call.
type OrderRequest struct {
	Symbol     string          `json:"symbol"`
	ActionType Side            `json:"actionType"`
	Quantity   int64           `json:"quantity"`
	OrderType  OrderKind       `json:"orderType"`
	Price      decimal.Decimal `json:"price"`
}

// OrderAck is what a backend returns for an accepted order.
type OrderAck struct {
	ConfirmationID string
	Message        string
}

// Holding is one row of the portfolio projection. Every amount is computed
// by the server; the client never derives them.
type Holding struct {
	Symbol       string          `json:"symbol"`
	Shares       int64           `json:"shares"`
	AvgCost      decimal.Decimal `json:"avg_cost"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	MarketValue  decimal.Decimal `json:"market_value"`
	GainLoss     decimal.Decimal `json:"gain_loss"`
}

// Tradeable seeds an order draft: the instrument, its last known price and
// the shares currently held.
type Tradeable struct {
	Symbol         string
	ReferencePrice decimal.Decimal
	HeldShares     int64
}

// TradeableFrom builds the order seed for a holding row.
func TradeableFrom(h Holding) Tradeable {
	return Tradeable{Symbol: h.Symbol, ReferencePrice: h.CurrentPrice, HeldShares: h.Shares}
}
