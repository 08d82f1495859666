// Package app wires the session store, the route gate, the order panel
// and the holdings view around one backend.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"apex-trader/internal/model"
	"apex-trader/internal/order"
	"apex-trader/internal/portfolio"
	"apex-trader/internal/session"

	"github.com/shopspring/decimal"
)

// Gateway is everything the client needs from a backend.
type Gateway interface {
	session.Authenticator
	order.Placer
	portfolio.Fetcher
}

// ErrLoginRequired is returned for trading actions without a session.
var ErrLoginRequired = errors.New("log in to trade")

// App holds the client state for one user session at a time.
type App struct {
	Store *session.Store
	Panel *order.Panel
	View  *portfolio.View

	cancel func()
}

// New wires the components. When the session becomes anonymous the order
// panel closes and the holdings are dropped; an accepted order marks the
// holdings stale.
func New(gw Gateway) *App {
	a := &App{
		Store: session.NewStore(gw),
		View:  portfolio.NewView(gw),
	}
	a.Panel = order.NewPanel(gw, func(model.OrderAck) { a.View.Invalidate() })
	a.cancel = a.Store.Subscribe(a.sessionChanged)
	return a
}

// Close detaches the session subscription.
func (a *App) Close() { a.cancel() }

func (a *App) sessionChanged(s session.State) {
	if s.Phase == session.Anonymous {
		a.Panel.Close()
		a.View.Reset()
	}
}

// expireOn ends the session when err says the server no longer accepts it.
func (a *App) expireOn(err error) {
	if errors.Is(err, model.ErrUnauthorized) {
		a.Store.Expire()
	}
}

// Holdings returns the holdings projection, fetching it when stale.
func (a *App) Holdings(ctx context.Context) ([]model.Holding, error) {
	hs, err := a.View.Holdings(ctx)
	a.expireOn(err)
	return hs, err
}

// Submit sends the open draft.
func (a *App) Submit(ctx context.Context) (order.Result, error) {
	res, err := a.Panel.Submit(ctx)
	if err == nil {
		a.expireOn(res.Err)
	}
	return res, err
}

// OpenTrade opens the order panel for symbol. A held symbol takes its
// price and share count from the holdings and ignores price; any other
// symbol needs an explicit reference price.
func (a *App) OpenTrade(symbol, price string) error {
	if !a.Store.State().IsAuthenticated() {
		return ErrLoginRequired
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	t, err := a.tradeable(symbol, price)
	if err != nil {
		return err
	}
	a.Panel.Open(t)
	return nil
}

// SwitchSymbol re-seeds the open draft for another symbol, keeping side
// and order type.
func (a *App) SwitchSymbol(symbol, price string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	t, err := a.tradeable(symbol, price)
	if err != nil {
		return err
	}
	return a.Panel.SetSymbol(t)
}

func (a *App) tradeable(symbol, price string) (model.Tradeable, error) {
	// A held symbol always trades at the holding's price.
	if h, held := a.View.Find(symbol); held {
		return model.TradeableFrom(h), nil
	}
	if price == "" {
		return model.Tradeable{}, fmt.Errorf("%s is not held; give a reference price", symbol)
	}
	p, err := decimal.NewFromString(price)
	if err != nil || p.IsNegative() {
		return model.Tradeable{}, fmt.Errorf("invalid price %q", price)
	}
	return model.Tradeable{Symbol: symbol, ReferencePrice: p}, nil
}
