// Package market prices symbols from Longbridge quotes.
//
// A Feed caches the last traded price per symbol. Watched symbols are kept
// current by the quote push stream; anything else is fetched as a snapshot
// on demand.
package market

import (
	"context"
	"fmt"
	"log"
	"reflect"
	"sort"
	"sync"

	"github.com/longbridge/openapi-go/quote"
	"github.com/shopspring/decimal"
)

// Feed is safe for concurrent use. A Feed without a quote context only
// serves prices that were Set on it.
type Feed struct {
	qc *quote.QuoteContext

	mu      sync.RWMutex
	last    map[string]decimal.Decimal
	watched map[string]bool
}

// NewFeed returns a feed backed by qc, which may be nil.
func NewFeed(qc *quote.QuoteContext) *Feed {
	f := &Feed{
		qc:      qc,
		last:    make(map[string]decimal.Decimal),
		watched: make(map[string]bool),
	}
	if qc != nil {
		qc.OnQuote(f.handlePush)
	}
	return f
}

// Set records a price for symbol.
func (f *Feed) Set(symbol string, price decimal.Decimal) {
	f.mu.Lock()
	f.last[symbol] = price
	f.mu.Unlock()
}

// Last returns the cached price for symbol.
func (f *Feed) Last(symbol string) (decimal.Decimal, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.last[symbol]
	return p, ok
}

// LastPrices returns a price for every symbol. Cached prices are used as
// is; the rest come from one snapshot request. Symbols the quote service
// does not know are missing from the result.
func (f *Feed) LastPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))
	var missing []string
	f.mu.RLock()
	for _, s := range symbols {
		if p, ok := f.last[s]; ok {
			out[s] = p
		} else {
			missing = append(missing, s)
		}
	}
	f.mu.RUnlock()
	if len(missing) == 0 {
		return out, nil
	}
	if f.qc == nil {
		return out, fmt.Errorf("no quote for %v", missing)
	}

	quotes, err := f.qc.Quote(ctx, missing)
	if err != nil {
		return out, fmt.Errorf("quote %v: %w", missing, err)
	}
	f.mu.Lock()
	for _, q := range quotes {
		p := Decimal(q.LastDone)
		f.last[q.Symbol] = p
		out[q.Symbol] = p
	}
	f.mu.Unlock()
	return out, nil
}

// Watch subscribes to push quotes for symbols not yet watched.
func (f *Feed) Watch(ctx context.Context, symbols []string) error {
	if f.qc == nil {
		return nil
	}
	var todo []string
	f.mu.RLock()
	for _, s := range symbols {
		if !f.watched[s] {
			todo = append(todo, s)
		}
	}
	f.mu.RUnlock()
	if len(todo) == 0 {
		return nil
	}

	if err := f.qc.Subscribe(ctx, todo, []quote.SubType{quote.SubTypeQuote}, true); err != nil {
		return fmt.Errorf("subscribe %v: %w", todo, err)
	}
	f.mu.Lock()
	for _, s := range todo {
		f.watched[s] = true
	}
	f.mu.Unlock()
	log.Printf("subscribed to real-time quotes: %v", todo)
	return nil
}

// Unwatch drops push subscriptions. Cached prices are kept.
func (f *Feed) Unwatch(ctx context.Context, symbols []string) error {
	var todo []string
	f.mu.RLock()
	for _, s := range symbols {
		if f.watched[s] {
			todo = append(todo, s)
		}
	}
	f.mu.RUnlock()
	if len(todo) == 0 {
		return nil
	}

	if f.qc != nil {
		if err := f.qc.Unsubscribe(ctx, false, todo, []quote.SubType{quote.SubTypeQuote}); err != nil {
			return fmt.Errorf("unsubscribe %v: %w", todo, err)
		}
	}
	f.mu.Lock()
	for _, s := range todo {
		delete(f.watched, s)
	}
	f.mu.Unlock()
	log.Printf("unsubscribed from real-time quotes: %v", todo)
	return nil
}

// Watched returns the subscribed symbols, sorted.
func (f *Feed) Watched() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.watched))
	for s := range f.watched {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (f *Feed) handlePush(push *quote.PushQuote) {
	if push == nil || push.Symbol == "" {
		return
	}
	p := Decimal(push.LastDone)
	if p.IsZero() {
		return
	}
	f.Set(push.Symbol, p)
}

// Decimal converts an SDK price field to a decimal. Nil values, nil
// pointers and unknown types become zero.
func Decimal(d interface{}) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	v := reflect.ValueOf(d)
	if v.Kind() == reflect.Ptr && v.IsNil() {
		return decimal.Zero
	}
	switch val := d.(type) {
	case *decimal.Decimal:
		return *val
	case decimal.Decimal:
		return val
	default:
		return decimal.Zero
	}
}
