package state

import (
	"sort"
	"sync"
	"time"

	"github.com/kalshi-entropy-feed/internal/entropy"
)

// History is the latest fetched price history of one market.
type History struct {
	Series    entropy.MarketSeries `json:"series"`
	FetchedAt time.Time            `json:"fetched_at"`
}

// TimeSeriesStore keeps the most recent history per market, capped in length.
type TimeSeriesStore struct {
	mu sync.RWMutex

	histories map[string]History // market_ticker -> history

	maxPointsPerMarket int
}

func NewTimeSeriesStore(maxPointsPerMarket int) *TimeSeriesStore {
	if maxPointsPerMarket <= 0 {
		maxPointsPerMarket = 24 * 90 // ~90 days of hourly candles
	}
	return &TimeSeriesStore{
		histories:          make(map[string]History),
		maxPointsPerMarket: maxPointsPerMarket,
	}
}

// Record replaces the stored history of a market.
func (ts *TimeSeriesStore) Record(series entropy.MarketSeries, fetchedAt time.Time) {
	points := series.Points
	// Keep only recent points
	if len(points) > ts.maxPointsPerMarket {
		points = points[len(points)-ts.maxPointsPerMarket:]
	}
	owned := make([]entropy.Point, len(points))
	copy(owned, points)

	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.histories[series.Ticker] = History{
		Series:    entropy.MarketSeries{Ticker: series.Ticker, Points: owned},
		FetchedAt: fetchedAt,
	}
}

// Get returns the history of a market.
func (ts *TimeSeriesStore) Get(ticker string) (History, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	h, ok := ts.histories[ticker]
	return h, ok
}

// Remove drops the history of a market.
func (ts *TimeSeriesStore) Remove(ticker string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.histories, ticker)
}

// All returns every stored series sorted by ticker.
func (ts *TimeSeriesStore) All() []entropy.MarketSeries {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	out := make([]entropy.MarketSeries, 0, len(ts.histories))
	for _, h := range ts.histories {
		out = append(out, h.Series)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// Len returns the number of markets with a stored history.
func (ts *TimeSeriesStore) Len() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.histories)
}
