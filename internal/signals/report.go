package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kalshi-entropy-feed/internal/config"
	"github.com/kalshi-entropy-feed/internal/entropy"
	"golang.org/x/sync/errgroup"
)

// MarketAnalysis is the per-market part of a report.
type MarketAnalysis struct {
	Ticker       string                   `json:"ticker" yaml:"ticker"`
	Observations int                      `json:"observations" yaml:"observations"`
	Volatility   entropy.VolatilitySeries `json:"volatility" yaml:"volatility"`
	Shocks       entropy.SeriesShocks     `json:"shocks" yaml:"shocks"`
}

// LatestVolatility returns the most recent defined volatility reading.
func (a MarketAnalysis) LatestVolatility() (entropy.VolatilityPoint, bool) {
	return a.Volatility.Latest()
}

// LatestShock returns the most recent flagged shock.
func (a MarketAnalysis) LatestShock() (entropy.ShockEvent, bool) {
	if len(a.Shocks.Events) == 0 {
		return entropy.ShockEvent{}, false
	}
	return a.Shocks.Events[len(a.Shocks.Events)-1], true
}

// Report is the output of one analysis cycle.
type Report struct {
	ID           string                    `json:"id" yaml:"id"`
	GeneratedAt  time.Time                 `json:"generated_at" yaml:"generated_at"`
	GridInterval string                    `json:"grid_interval" yaml:"grid_interval"`
	Markets      map[string]MarketAnalysis `json:"markets" yaml:"markets"`
	Entanglement entropy.Entanglement      `json:"entanglement" yaml:"entanglement"`
}

// Analysis returns the analysis of one market.
func (r *Report) Analysis(ticker string) (MarketAnalysis, bool) {
	a, ok := r.Markets[ticker]
	return a, ok
}

// BuildReport runs volatility and shock detection per market on up to
// cfg.Workers goroutines, then the entanglement analysis across all markets.
// Every market appears in the report; prices the statistics cannot use show
// up as undefined values.
func BuildReport(ctx context.Context, series []entropy.MarketSeries, cfg config.AnalysisConfig, now time.Time) (*Report, error) {
	results := make([]MarketAnalysis, len(series))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, s := range series {
		i, s := i, s
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			analysis, err := analyzeMarket(s, cfg)
			if err != nil {
				return err
			}
			results[i] = analysis
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		ID:           uuid.NewString(),
		GeneratedAt:  now.UTC(),
		GridInterval: cfg.GridInterval().String(),
		Markets:      make(map[string]MarketAnalysis, len(series)),
	}
	for _, analysis := range results {
		report.Markets[analysis.Ticker] = analysis
	}

	table, err := entropy.AlignSeries(series, cfg.GridInterval())
	if err != nil {
		return nil, fmt.Errorf("failed to align series: %w", err)
	}
	ent, err := entropy.Entangle(table, cfg.NoiseThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to compute entanglement: %w", err)
	}
	report.Entanglement = ent

	return report, nil
}

func analyzeMarket(s entropy.MarketSeries, cfg config.AnalysisConfig) (MarketAnalysis, error) {
	vol, err := entropy.EstimateVolatility(s, cfg.VolatilityWindow)
	if err != nil {
		return MarketAnalysis{}, err
	}
	shocks, err := entropy.DetectSeriesShocks(s, cfg.ShockThreshold)
	if err != nil {
		return MarketAnalysis{}, err
	}
	return MarketAnalysis{
		Ticker:       s.Ticker,
		Observations: s.Len(),
		Volatility:   vol,
		Shocks:       shocks,
	}, nil
}
