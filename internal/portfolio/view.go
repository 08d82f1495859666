// Package portfolio tracks when the holdings projection must be re-fetched.
//
// Holdings are always taken from the backend as a whole. The view never
// patches shares, market value or gain/loss locally: average cost and
// gain/loss depend on fills and commissions only the server knows.
package portfolio

import (
	"context"
	"log"
	"sync"
	"time"

	"apex-trader/internal/metrics"
	"apex-trader/internal/model"
)

// Fetcher loads the holdings projection.
type Fetcher interface {
	Portfolio(ctx context.Context) ([]model.Holding, error)
}

// View caches the last fetched holdings and knows whether they are stale.
type View struct {
	fetcher Fetcher

	mu        sync.Mutex
	holdings  []model.Holding
	stale     bool
	gen       uint64
	fetchedAt time.Time
}

// NewView returns a view that is stale until its first fetch.
func NewView(f Fetcher) *View {
	return &View{fetcher: f, stale: true}
}

// Mount marks the projection stale, as opening the portfolio screen does.
func (v *View) Mount() { v.Invalidate() }

// Invalidate forces a full re-fetch before the next read.
func (v *View) Invalidate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stale = true
	v.gen++
}

// Stale reports whether the next Holdings call will hit the backend.
func (v *View) Stale() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stale
}

// FetchedAt is the time of the last successful fetch.
func (v *View) FetchedAt() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fetchedAt
}

// Holdings returns the projection, re-fetching it first when stale. If the
// view is invalidated while a fetch is running, the result is still
// returned but the view stays stale. On error the previous holdings are
// kept and the view stays stale.
func (v *View) Holdings(ctx context.Context) ([]model.Holding, error) {
	v.mu.Lock()
	if !v.stale {
		out := append([]model.Holding(nil), v.holdings...)
		v.mu.Unlock()
		return out, nil
	}
	gen := v.gen
	v.mu.Unlock()

	holdings, err := v.fetcher.Portfolio(ctx)
	metrics.IncPortfolioFetch(err == nil)
	if err != nil {
		log.Printf("portfolio fetch failed: %v", err)
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gen == gen {
		v.holdings = holdings
		v.stale = false
		v.fetchedAt = time.Now()
	}
	return append([]model.Holding(nil), holdings...), nil
}

// Find returns the cached holding for symbol without fetching.
func (v *View) Find(symbol string) (model.Holding, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, h := range v.holdings {
		if h.Symbol == symbol {
			return h, true
		}
	}
	return model.Holding{}, false
}

// Reset drops the cached holdings, e.g. after the session ends.
func (v *View) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.holdings = nil
	v.stale = true
	v.gen++
}
