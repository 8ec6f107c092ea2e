package entropy

import (
	"fmt"
	"time"
)

// Record is a single raw observation handed over by the ingestion layer.
// A nil Probability means the field was absent.
type Record struct {
	Timestamp   time.Time `json:"timestamp"`
	Probability *float64  `json:"probability"`
}

// Point is one validated observation of a market.
type Point struct {
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	Probability float64   `json:"probability" yaml:"probability"`
}

// MarketSeries is an ordered, strictly increasing sequence of observations
// for one market.
type MarketSeries struct {
	Ticker string  `json:"ticker" yaml:"ticker"`
	Points []Point `json:"points" yaml:"points"`
}

// NewMarketSeries validates records and copies them into a MarketSeries.
func NewMarketSeries(ticker string, records []Record) (MarketSeries, error) {
	points := make([]Point, 0, len(records))
	for i, r := range records {
		if r.Probability == nil {
			return MarketSeries{}, fmt.Errorf("%s record %d: %w", ticker, i, ErrMissingProbability)
		}
		if i > 0 && !r.Timestamp.After(records[i-1].Timestamp) {
			return MarketSeries{}, fmt.Errorf("%s record %d at %s: %w",
				ticker, i, r.Timestamp.Format(time.RFC3339), ErrNonMonotonic)
		}
		points = append(points, Point{Timestamp: r.Timestamp, Probability: *r.Probability})
	}
	return MarketSeries{Ticker: ticker, Points: points}, nil
}

// Len returns the number of observations.
func (s MarketSeries) Len() int {
	return len(s.Points)
}

// Prices returns a fresh slice of the probabilities.
func (s MarketSeries) Prices() []float64 {
	prices := make([]float64, len(s.Points))
	for i, p := range s.Points {
		prices[i] = p.Probability
	}
	return prices
}

// Timestamps returns a fresh slice of the observation times.
func (s MarketSeries) Timestamps() []time.Time {
	ts := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		ts[i] = p.Timestamp
	}
	return ts
}

// First returns the first observation time. ok is false for an empty series.
func (s MarketSeries) First() (t time.Time, ok bool) {
	if len(s.Points) == 0 {
		return time.Time{}, false
	}
	return s.Points[0].Timestamp, true
}

// Last returns the last observation time. ok is false for an empty series.
func (s MarketSeries) Last() (t time.Time, ok bool) {
	if len(s.Points) == 0 {
		return time.Time{}, false
	}
	return s.Points[len(s.Points)-1].Timestamp, true
}
