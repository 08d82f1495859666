package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"apex-trader/internal/model"

	"github.com/shopspring/decimal"
)

// SessionCheck returns the logged-in user, or nil when there is no session.
// A 401 means no session. Any other non-2xx or non-JSON reply is a
// transport error, not "logged out".
func (c *Client) SessionCheck(ctx context.Context) (*model.User, error) {
	const op = "session check"
	r, err := c.call(ctx, op, http.MethodGet, "/session", "", nil)
	if err != nil {
		return nil, err
	}
	if r.status == http.StatusUnauthorized {
		return nil, nil
	}
	if !r.ok() || r.body == nil {
		return nil, malformed(op, r.status)
	}
	if !r.boolean("$.success") || !r.boolean("$.data.logged_in") {
		return nil, nil
	}
	var u model.User
	if err := r.decode("$.data.user", &u); err != nil {
		return nil, &model.TransportError{Op: op, Err: err}
	}
	return &u, nil
}

// Login posts the credentials form. A rejection is a *model.AuthError
// carrying the server message, if any.
func (c *Client) Login(ctx context.Context, cred model.Credentials) (model.User, error) {
	const op = "login"
	r, err := c.form(ctx, op, "/login", url.Values{
		"username": {cred.Username},
		"password": {cred.Password},
	})
	if err != nil {
		return model.User{}, err
	}
	if r.body == nil {
		return model.User{}, malformed(op, r.status)
	}
	if !r.ok() {
		return model.User{}, &model.AuthError{Message: r.str("$.message")}
	}
	var u model.User
	if err := r.decode("$.data.user", &u); err != nil {
		return model.User{}, &model.TransportError{Op: op, Err: err}
	}
	return u, nil
}

// Logout tells the server to end the session and always forgets the local
// cookies. Only a transport failure is reported.
func (c *Client) Logout(ctx context.Context) error {
	defer c.dropCookies()
	_, err := c.call(ctx, "logout", http.MethodPost, "/logout", "", nil)
	return err
}

// Signup posts the registration form.
func (c *Client) Signup(ctx context.Context, f model.SignupForm) error {
	const op = "signup"
	r, err := c.form(ctx, op, "/signup", url.Values{
		"firstname":       {f.FirstName},
		"lastname":        {f.LastName},
		"username":        {f.Username},
		"email":           {f.Email},
		"password":        {f.Password},
		"confirmPassword": {f.ConfirmPassword},
	})
	if err != nil {
		return err
	}
	if r.ok() {
		return nil
	}
	if r.body == nil {
		return malformed(op, r.status)
	}
	msg := r.str("$.message")
	if msg == "" {
		msg = model.MsgSignupFailed
	}
	return &model.RejectedError{Reason: msg, Status: r.status}
}

// orderBody is the wire form of an order. The price goes out as a JSON
// number.
type orderBody struct {
	Symbol     string          `json:"symbol"`
	ActionType model.Side      `json:"actionType"`
	Quantity   int64           `json:"quantity"`
	OrderType  model.OrderKind `json:"orderType"`
	Price      json.Number     `json:"price"`
}

// PlaceOrder submits an order. The payload's success flag decides between
// acceptance and a *model.RejectedError; an unreadable reply is a
// *model.TransportError.
func (c *Client) PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderAck, error) {
	const op = "place order"
	body, err := json.Marshal(orderBody{
		Symbol:     req.Symbol,
		ActionType: req.ActionType,
		Quantity:   req.Quantity,
		OrderType:  req.OrderType,
		Price:      json.Number(req.Price.String()),
	})
	if err != nil {
		return model.OrderAck{}, err
	}
	r, err := c.call(ctx, op, http.MethodPost, "/trade", "application/json", body)
	if err != nil {
		return model.OrderAck{}, err
	}
	if r.body == nil {
		return model.OrderAck{}, malformed(op, r.status)
	}
	if r.boolean("$.success") {
		id := r.str("$.data.order_id")
		if id == "" {
			id = r.str("$.data.confirmation_id")
		}
		return model.OrderAck{ConfirmationID: id, Message: r.str("$.data.message")}, nil
	}
	reason := r.str("$.message")
	if reason == "" {
		reason = model.MsgTradeFailed
	}
	return model.OrderAck{}, &model.RejectedError{Reason: reason, Status: r.status}
}

// wireHolding tolerates fractional share counts in the payload.
type wireHolding struct {
	Symbol       string          `json:"symbol"`
	Shares       decimal.Decimal `json:"shares"`
	AvgCost      decimal.Decimal `json:"avg_cost"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	MarketValue  decimal.Decimal `json:"market_value"`
	GainLoss     decimal.Decimal `json:"gain_loss"`
}

// Portfolio fetches the holdings projection.
func (c *Client) Portfolio(ctx context.Context) ([]model.Holding, error) {
	const op = "portfolio"
	r, err := c.call(ctx, op, http.MethodGet, c.portfolioPath, "", nil)
	if err != nil {
		return nil, err
	}
	if r.body == nil {
		return nil, malformed(op, r.status)
	}
	if !r.ok() {
		return nil, &model.RejectedError{Reason: r.str("$.message"), Status: r.status}
	}
	var rows []wireHolding
	if err := r.decode("$.data.holdings", &rows); err != nil {
		if err := r.decode("$.holdings", &rows); err != nil {
			return nil, &model.TransportError{Op: op, Err: err}
		}
	}
	out := make([]model.Holding, 0, len(rows))
	for _, w := range rows {
		out = append(out, model.Holding{
			Symbol:       w.Symbol,
			Shares:       w.Shares.IntPart(),
			AvgCost:      w.AvgCost,
			CurrentPrice: w.CurrentPrice,
			MarketValue:  w.MarketValue,
			GainLoss:     w.GainLoss,
		})
	}
	return out, nil
}
