package state

import (
	"sort"
	"sync"
	"time"

	"github.com/kalshi-entropy-feed/internal/entropy"
)

type Engine struct {
	mu         sync.RWMutex
	markets    map[string]*Market
	timeSeries *TimeSeriesStore
}

func NewEngine() *Engine {
	return &Engine{
		markets:    make(map[string]*Market),
		timeSeries: NewTimeSeriesStore(0),
	}
}

func (e *Engine) RegisterMarket(market *Market) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.markets[market.Ticker] = market.Clone()
}

// RecordHistory stores a freshly fetched series. Series stored here are never
// mutated; readers get the same immutable value.
func (e *Engine) RecordHistory(series entropy.MarketSeries, fetchedAt time.Time) {
	e.timeSeries.Record(series, fetchedAt)
}

// RetainMarkets drops every registered market and stored history whose ticker
// is not in keep, and returns the dropped tickers sorted.
func (e *Engine) RetainMarkets(keep []string) []string {
	wanted := make(map[string]bool, len(keep))
	for _, t := range keep {
		wanted[t] = true
	}
	dropped := make(map[string]bool)

	e.mu.Lock()
	for ticker := range e.markets {
		if !wanted[ticker] {
			delete(e.markets, ticker)
			dropped[ticker] = true
		}
	}
	e.mu.Unlock()

	for _, s := range e.timeSeries.All() {
		if !wanted[s.Ticker] {
			e.timeSeries.Remove(s.Ticker)
			dropped[s.Ticker] = true
		}
	}

	out := make([]string, 0, len(dropped))
	for ticker := range dropped {
		out = append(out, ticker)
	}
	sort.Strings(out)
	return out
}

func (e *Engine) GetMarket(ticker string) (*Market, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	m, exists := e.markets[ticker]
	if !exists {
		return nil, false
	}
	return m.Clone(), true
}

// GetAllMarkets returns copies of every registered market sorted by ticker.
func (e *Engine) GetAllMarkets() []*Market {
	e.mu.RLock()
	defer e.mu.RUnlock()

	markets := make([]*Market, 0, len(e.markets))
	for _, m := range e.markets {
		markets = append(markets, m.Clone())
	}
	sort.Slice(markets, func(i, j int) bool { return markets[i].Ticker < markets[j].Ticker })
	return markets
}

func (e *Engine) GetHistory(ticker string) (History, bool) {
	return e.timeSeries.Get(ticker)
}

// GetActiveHistories returns the stored series of every active market.
func (e *Engine) GetActiveHistories() []entropy.MarketSeries {
	all := e.timeSeries.All()

	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]entropy.MarketSeries, 0, len(all))
	for _, s := range all {
		if m, ok := e.markets[s.Ticker]; ok && !m.IsActive() {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (e *Engine) GetTimeSeries() *TimeSeriesStore {
	return e.timeSeries
}
