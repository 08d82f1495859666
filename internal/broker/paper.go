package broker

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"apex-trader/internal/market"
	"apex-trader/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StartingCash is the balance of every new paper account.
var StartingCash = decimal.NewFromInt(100000)

type paperUser struct {
	password string
	user     model.User
}

type lot struct {
	shares  int64
	avgCost decimal.Decimal
}

type paperAccount struct {
	cash decimal.Decimal
	lots map[string]*lot
}

// Paper is an in-memory backend. It keeps users, one active session,
// cash and positions, and fills every valid order immediately: limit
// orders at the limit, market orders at the submitted reference price or
// the feed's last price.
type Paper struct {
	feed *market.Feed

	mu       sync.Mutex
	users    map[string]paperUser
	accounts map[int64]*paperAccount
	nextID   int64
	current  *model.User
}

// NewPaper returns a paper backend with the demo users demo/demo and
// apex_admin/admin. Prices come from feed; a nil feed gets an empty one.
func NewPaper(feed *market.Feed) *Paper {
	if feed == nil {
		feed = market.NewFeed(nil)
	}
	p := &Paper{
		feed:     feed,
		users:    make(map[string]paperUser),
		accounts: make(map[int64]*paperAccount),
	}
	p.addUser("demo", "demo", "Demo Trader", false)
	p.addUser("apex_admin", "admin", "Apex Admin", true)
	return p
}

func (p *Paper) addUser(username, password, name string, admin bool) model.User {
	p.nextID++
	u := model.User{ID: p.nextID, Username: username, Name: name, IsAdmin: admin}
	p.users[username] = paperUser{password: password, user: u}
	p.accounts[u.ID] = &paperAccount{cash: StartingCash, lots: make(map[string]*lot)}
	return u
}

// Cash returns the cash balance of the logged-in user.
func (p *Paper) Cash() (decimal.Decimal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return decimal.Zero, false
	}
	return p.accounts[p.current.ID].cash, true
}

// DropSession ends the session on the server side only, as an expired
// cookie would.
func (p *Paper) DropSession() {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
}

func (p *Paper) SessionCheck(ctx context.Context) (*model.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil, nil
	}
	u := *p.current
	return &u, nil
}

func (p *Paper) Login(ctx context.Context, cred model.Credentials) (model.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pu, ok := p.users[cred.Username]
	if !ok || pu.password != cred.Password {
		return model.User{}, &model.AuthError{Message: "Invalid username or password"}
	}
	u := pu.user
	p.current = &u
	return u, nil
}

func (p *Paper) Logout(ctx context.Context) error {
	p.DropSession()
	return nil
}

func (p *Paper) Signup(ctx context.Context, f model.SignupForm) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.users[f.Username]; ok {
		return &model.RejectedError{Reason: "Username already exists", Status: http.StatusConflict}
	}
	p.addUser(f.Username, f.Password, strings.TrimSpace(f.FirstName+" "+f.LastName), false)
	return nil
}

func (p *Paper) PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderAck, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	price := req.Price
	if req.OrderType == model.KindMarket || !price.IsPositive() {
		if last, ok := p.feed.Last(symbol); ok {
			price = last
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return model.OrderAck{}, notLoggedIn
	}
	if symbol == "" {
		return model.OrderAck{}, &model.RejectedError{Reason: "Symbol is required", Status: http.StatusBadRequest}
	}
	if req.Quantity <= 0 {
		return model.OrderAck{}, &model.RejectedError{Reason: "Invalid quantity", Status: http.StatusBadRequest}
	}
	if !price.IsPositive() {
		return model.OrderAck{}, &model.RejectedError{Reason: "No price available for " + symbol, Status: http.StatusBadRequest}
	}

	acct := p.accounts[p.current.ID]
	qty := decimal.NewFromInt(req.Quantity)
	cost := qty.Mul(price)
	var verb string
	switch req.ActionType {
	case model.SideBuy:
		if cost.GreaterThan(acct.cash) {
			return model.OrderAck{}, &model.RejectedError{Reason: "Insufficient funds", Status: http.StatusBadRequest}
		}
		l := acct.lots[symbol]
		if l == nil {
			l = &lot{}
			acct.lots[symbol] = l
		}
		held := decimal.NewFromInt(l.shares)
		l.avgCost = held.Mul(l.avgCost).Add(cost).Div(held.Add(qty)).Round(4)
		l.shares += req.Quantity
		acct.cash = acct.cash.Sub(cost)
		verb = "Bought"
	case model.SideSell:
		l := acct.lots[symbol]
		if l == nil || l.shares < req.Quantity {
			return model.OrderAck{}, &model.RejectedError{Reason: "Insufficient shares", Status: http.StatusBadRequest}
		}
		l.shares -= req.Quantity
		if l.shares == 0 {
			delete(acct.lots, symbol)
		}
		acct.cash = acct.cash.Add(cost)
		verb = "Sold"
	default:
		return model.OrderAck{}, &model.RejectedError{Reason: "Invalid action", Status: http.StatusBadRequest}
	}
	p.feed.Set(symbol, price)

	return model.OrderAck{
		ConfirmationID: "PAPER-" + uuid.NewString(),
		Message:        fmt.Sprintf("%s %d shares of %s at %s", verb, req.Quantity, symbol, model.FormatUSD(price)),
	}, nil
}

func (p *Paper) Portfolio(ctx context.Context) ([]model.Holding, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil, notLoggedIn
	}
	acct := p.accounts[p.current.ID]
	symbols := make([]string, 0, len(acct.lots))
	for s := range acct.lots {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	out := make([]model.Holding, 0, len(symbols))
	for _, s := range symbols {
		l := acct.lots[s]
		last, ok := p.feed.Last(s)
		if !ok {
			last = l.avgCost
		}
		out = append(out, Valuate(s, l.shares, l.avgCost, last))
	}
	return out, nil
}
