package signals

import (
	"time"

	"github.com/kalshi-entropy-feed/internal/config"
	"github.com/kalshi-entropy-feed/internal/entropy"
)

var t0 = time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC)

func hourlySeries(ticker string, prices []float64) entropy.MarketSeries {
	points := make([]entropy.Point, len(prices))
	for i, p := range prices {
		points[i] = entropy.Point{Timestamp: t0.Add(time.Duration(i) * time.Hour), Probability: p}
	}
	return entropy.MarketSeries{Ticker: ticker, Points: points}
}

// spiky oscillates around 0.51 with a single jump to 0.9 at index 20.
func spiky() []float64 {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 0.50 + 0.01*float64(i%3)
	}
	prices[20] = 0.9
	return prices
}

func scaled(prices []float64) []float64 {
	out := make([]float64, len(prices))
	for i, p := range prices {
		out[i] = 0.5*p + 0.1
	}
	return out
}

// withZero contains a zero price, which makes its percentage changes undefined.
func withZero() []float64 {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 0.4
	}
	prices[1] = 0
	prices[5] = 0.45
	return prices
}

func testAnalysisConfig() config.AnalysisConfig {
	cfg := config.Default().Analysis
	cfg.VolatilityWindow = 5
	cfg.Workers = 2
	return cfg
}

func testSeries() []entropy.MarketSeries {
	return []entropy.MarketSeries{
		hourlySeries("A", spiky()),
		hourlySeries("B", scaled(spiky())),
		hourlySeries("C", withZero()),
	}
}
