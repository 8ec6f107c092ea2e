package entropy

import (
	"errors"
	"sort"
	"time"
)

// DefaultGridInterval is the spacing of the shared grid used for alignment.
const DefaultGridInterval = time.Hour

// AlignedTable holds one column per market over a shared, regular index.
// Columns are keyed by market and every column has len(Index) entries.
type AlignedTable struct {
	Interval time.Duration      `json:"interval"`
	Index    []time.Time        `json:"index"`
	Markets  []string           `json:"markets"`
	Columns  map[string][]Value `json:"columns"`
}

// Column returns the aligned values of a market.
func (t AlignedTable) Column(market string) ([]Value, bool) {
	col, ok := t.Columns[market]
	return col, ok
}

// Len returns the number of grid points.
func (t AlignedTable) Len() int {
	return len(t.Index)
}

// Align validates raw records per market and resamples them onto a common
// grid. Markets with a missing probability are left out of the table; a
// market with out-of-order timestamps fails the whole call.
func Align(markets map[string][]Record, interval time.Duration) (AlignedTable, error) {
	if interval <= 0 {
		return AlignedTable{}, ErrInvalidInterval
	}

	tickers := make([]string, 0, len(markets))
	for ticker := range markets {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	series := make([]MarketSeries, 0, len(tickers))
	for _, ticker := range tickers {
		s, err := NewMarketSeries(ticker, markets[ticker])
		if errors.Is(err, ErrMissingProbability) {
			continue
		}
		if err != nil {
			return AlignedTable{}, err
		}
		series = append(series, s)
	}

	return AlignSeries(series, interval)
}

// AlignSeries resamples already validated series onto a common grid spanning
// the union of their ranges. Each grid point takes the last observation at or
// before it, as long as it lies within the market's own [first, last] range.
func AlignSeries(series []MarketSeries, interval time.Duration) (AlignedTable, error) {
	if interval <= 0 {
		return AlignedTable{}, ErrInvalidInterval
	}

	table := AlignedTable{
		Interval: interval,
		Markets:  make([]string, 0, len(series)),
		Columns:  make(map[string][]Value, len(series)),
	}

	var start, end time.Time
	found := false
	for _, s := range series {
		first, ok := s.First()
		if !ok {
			continue
		}
		last, _ := s.Last()
		if !found || first.Before(start) {
			start = first
		}
		if !found || last.After(end) {
			end = last
		}
		found = true
	}

	if found {
		for t := start.Truncate(interval); !t.After(end); t = t.Add(interval) {
			table.Index = append(table.Index, t)
		}
	}

	sorted := make([]MarketSeries, len(series))
	copy(sorted, series)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Ticker < sorted[j].Ticker })

	for _, s := range sorted {
		table.Markets = append(table.Markets, s.Ticker)
		table.Columns[s.Ticker] = resample(s, table.Index)
	}

	return table, nil
}

func resample(s MarketSeries, index []time.Time) []Value {
	col := make([]Value, len(index))
	if len(s.Points) == 0 {
		return col
	}

	first := s.Points[0].Timestamp
	last := s.Points[len(s.Points)-1].Timestamp
	j := 0
	for i, t := range index {
		if t.Before(first) || t.After(last) {
			continue
		}
		for j+1 < len(s.Points) && !s.Points[j+1].Timestamp.After(t) {
			j++
		}
		col[i] = Some(s.Points[j].Probability)
	}
	return col
}
