package entropy

import (
	"fmt"
	"math"
	"time"
)

// DefaultVolatilityWindow covers one diurnal cycle of hourly observations.
const DefaultVolatilityWindow = 24

// VolatilityPoint is the rolling volatility at one observation.
type VolatilityPoint struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Value     Value     `json:"value" yaml:"value"`
}

// VolatilitySeries is aligned 1:1 with the MarketSeries it was computed from.
type VolatilitySeries struct {
	Ticker string            `json:"ticker" yaml:"ticker"`
	Window int               `json:"window" yaml:"window"`
	Points []VolatilityPoint `json:"points" yaml:"points"`
}

// LogReturns returns ln(p[t]/p[t-1]) for every position. The first position,
// and any position where either price is non-positive or non-finite, is
// undefined.
func LogReturns(prices []float64) []Value {
	rets := make([]Value, len(prices))
	for t := 1; t < len(prices); t++ {
		prev, cur := prices[t-1], prices[t]
		if !finite(prev) || !finite(cur) || prev <= 0 || cur <= 0 {
			continue
		}
		rets[t] = Some(math.Log(cur / prev))
	}
	return rets
}

// RollingVolatility computes the sample standard deviation of log returns over
// the trailing window. The first window positions are undefined, as is any
// position whose window contains an undefined return.
func RollingVolatility(prices []float64, window int) ([]Value, error) {
	if window < 2 {
		return nil, fmt.Errorf("rolling volatility window %d: %w", window, ErrInvalidWindow)
	}

	rets := LogReturns(prices)
	out := make([]Value, len(prices))
	buf := make([]float64, window)

	for t := window; t < len(prices); t++ {
		complete := true
		for k := 0; k < window; k++ {
			r := rets[t-window+1+k]
			if !r.Valid {
				complete = false
				break
			}
			buf[k] = r.Float
		}
		if !complete {
			continue
		}
		if sd, ok := stddev(buf, 1); ok {
			out[t] = Some(sd)
		}
	}

	return out, nil
}

// EstimateVolatility runs RollingVolatility over a market series and pairs the
// result with the observation timestamps.
func EstimateVolatility(series MarketSeries, window int) (VolatilitySeries, error) {
	vols, err := RollingVolatility(series.Prices(), window)
	if err != nil {
		return VolatilitySeries{}, fmt.Errorf("%s: %w", series.Ticker, err)
	}

	points := make([]VolatilityPoint, len(vols))
	for i, v := range vols {
		points[i] = VolatilityPoint{Timestamp: series.Points[i].Timestamp, Value: v}
	}

	return VolatilitySeries{Ticker: series.Ticker, Window: window, Points: points}, nil
}

// Latest returns the most recent defined volatility.
func (v VolatilitySeries) Latest() (VolatilityPoint, bool) {
	for i := len(v.Points) - 1; i >= 0; i-- {
		if v.Points[i].Value.Valid {
			return v.Points[i], true
		}
	}
	return VolatilityPoint{}, false
}
