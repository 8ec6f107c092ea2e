package entropy

import (
	"fmt"
	"math"
	"time"
)

// DefaultShockThreshold is the z-score magnitude above which a change is a shock.
const DefaultShockThreshold = 3.0

// below this spread the changes are treated as constant
const degenerateTolerance = 1e-12

// ShockMask flags, per observation, whether the standardized change exceeded
// the threshold. Degenerate is set when the changes had zero variance; in
// that case no position is flagged and every z-score is undefined.
type ShockMask struct {
	Threshold  float64 `json:"threshold" yaml:"threshold"`
	Flags      []bool  `json:"flags" yaml:"flags"`
	ZScores    []Value `json:"z_scores" yaml:"z_scores"`
	Degenerate bool    `json:"degenerate" yaml:"degenerate"`
}

// Count returns the number of flagged positions.
func (m ShockMask) Count() int {
	n := 0
	for _, f := range m.Flags {
		if f {
			n++
		}
	}
	return n
}

// ShockEvent is a flagged observation, ready for overlay on the price line.
type ShockEvent struct {
	Index       int       `json:"index" yaml:"index"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	Probability float64   `json:"probability" yaml:"probability"`
	ZScore      float64   `json:"z_score" yaml:"z_score"`
}

// SeriesShocks is a ShockMask paired with the series it was computed from.
type SeriesShocks struct {
	Ticker string       `json:"ticker" yaml:"ticker"`
	Mask   ShockMask    `json:"mask" yaml:"mask"`
	Events []ShockEvent `json:"events" yaml:"events"`
}

// PctChanges returns p[t]/p[t-1]-1 with the first change fixed at 0. A change
// out of a zero or non-finite price, or into a non-finite one, is undefined.
func PctChanges(prices []float64) []Value {
	changes := make([]Value, len(prices))
	if len(prices) > 0 {
		changes[0] = Some(0)
	}
	for t := 1; t < len(prices); t++ {
		prev := prices[t-1]
		if prev == 0 || !finite(prev) || !finite(prices[t]) {
			continue
		}
		changes[t] = Some(prices[t]/prev - 1)
	}
	return changes
}

// DetectShocks standardizes the percentage changes of prices against the
// population mean and standard deviation of the defined changes and flags the
// positions where |z| > threshold. Positions with an undefined change are
// never flagged and keep an undefined z-score.
func DetectShocks(prices []float64, threshold float64) (ShockMask, error) {
	if !(threshold > 0) || math.IsInf(threshold, 0) {
		return ShockMask{}, fmt.Errorf("shock threshold %v: %w", threshold, ErrInvalidThreshold)
	}

	changes := PctChanges(prices)
	mask := ShockMask{
		Threshold: threshold,
		Flags:     make([]bool, len(prices)),
		ZScores:   make([]Value, len(prices)),
	}

	defined := make([]float64, 0, len(changes))
	for _, c := range changes {
		if c.Valid {
			defined = append(defined, c.Float)
		}
	}
	if len(defined) == 0 {
		return mask, nil
	}

	m := mean(defined)
	sd, _ := stddev(defined, 0)
	if sd <= degenerateTolerance*math.Max(1, math.Abs(m)) {
		mask.Degenerate = true
		return mask, nil
	}

	for i, c := range changes {
		if !c.Valid {
			continue
		}
		z := (c.Float - m) / sd
		mask.ZScores[i] = Some(z)
		mask.Flags[i] = math.Abs(z) > threshold
	}

	return mask, nil
}

// DetectSeriesShocks runs DetectShocks over a market series and lists the
// flagged observations.
func DetectSeriesShocks(series MarketSeries, threshold float64) (SeriesShocks, error) {
	mask, err := DetectShocks(series.Prices(), threshold)
	if err != nil {
		return SeriesShocks{}, fmt.Errorf("%s: %w", series.Ticker, err)
	}

	events := make([]ShockEvent, 0)
	for i, flagged := range mask.Flags {
		if !flagged {
			continue
		}
		events = append(events, ShockEvent{
			Index:       i,
			Timestamp:   series.Points[i].Timestamp,
			Probability: series.Points[i].Probability,
			ZScore:      mask.ZScores[i].Float,
		})
	}

	return SeriesShocks{Ticker: series.Ticker, Mask: mask, Events: events}, nil
}
