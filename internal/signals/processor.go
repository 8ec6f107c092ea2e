package signals

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/kalshi-entropy-feed/internal/config"
	"github.com/kalshi-entropy-feed/internal/entropy"
	"github.com/kalshi-entropy-feed/internal/metrics"
	"github.com/kalshi-entropy-feed/internal/state"
	"github.com/rs/zerolog"
)

// ErrNoHistory is returned when no market history is available yet.
var ErrNoHistory = errors.New("no market history available")

const maxRecentSignals = 1000

// smallest coefficient move that re-raises a signal for the same pair
const pairCoefficientStep = 0.01

type Processor struct {
	state      *state.Engine
	signalChan chan<- Signal
	config     config.AnalysisConfig
	// coefficient the butterfly pair must reach to raise an entanglement signal
	entanglementThreshold float64
	log                   zerolog.Logger
	now                   func() time.Time

	mu        sync.RWMutex
	latest    *Report
	recent    []Signal
	lastShock map[string]time.Time // market_ticker -> last signalled shock
	lastPair  *entropy.EntanglementPair
}

func NewProcessor(stateEngine *state.Engine, signalChan chan<- Signal, cfg config.AnalysisConfig, entanglementThreshold float64, log zerolog.Logger) *Processor {
	return &Processor{
		state:                 stateEngine,
		signalChan:            signalChan,
		config:                cfg,
		entanglementThreshold: entanglementThreshold,
		log:                   log,
		now:                   time.Now,
		recent:                make([]Signal, 0, maxRecentSignals),
		lastShock:             make(map[string]time.Time),
	}
}

func (p *Processor) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.config.ComputationInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.Compute(ctx); err != nil {
				if errors.Is(err, ErrNoHistory) {
					p.log.Debug().Msg("waiting for market history")
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.log.Error().Err(err).Msg("analysis cycle failed")
			}
		}
	}
}

// Compute runs one analysis cycle over the stored histories, publishes the
// report as the latest one and emits the resulting signals.
func (p *Processor) Compute(ctx context.Context) (*Report, error) {
	histories := p.state.GetActiveHistories()
	if len(histories) == 0 {
		return nil, ErrNoHistory
	}

	started := p.now()
	report, err := BuildReport(ctx, histories, p.config, started)
	metrics.AnalysisDuration.Observe(p.now().Sub(started).Seconds())
	if err != nil {
		metrics.AnalysisCycles.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.AnalysisCycles.WithLabelValues("ok").Inc()

	if report.Entanglement.Pair != nil {
		metrics.Entanglement.Set(report.Entanglement.Pair.Coefficient)
	}

	p.mu.Lock()
	p.latest = report
	p.mu.Unlock()

	emitted := 0
	for _, signal := range p.deriveSignals(report) {
		p.publish(signal)
		emitted++
	}

	p.log.Info().
		Str("report_id", report.ID).
		Int("markets", len(report.Markets)).
		Int("signals", emitted).
		Msg("analysis cycle complete")

	return report, nil
}

// Latest returns the report of the most recent successful cycle.
func (p *Processor) Latest() (*Report, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.latest != nil
}

// RecentSignals returns emitted signals, oldest first, narrowed by filter.
func (p *Processor) RecentSignals(filter Filter) []Signal {
	p.mu.RLock()
	defer p.mu.RUnlock()

	filtered := make([]Signal, 0)
	for _, s := range p.recent {
		if filter.matches(s) {
			filtered = append(filtered, s)
		}
	}
	if filter.Limit > 0 && filter.Limit < len(filtered) {
		filtered = filtered[len(filtered)-filter.Limit:]
	}
	return filtered
}

func (p *Processor) publish(signal Signal) {
	p.mu.Lock()
	p.recent = append(p.recent, signal)
	// Keep only the most recent signals
	if len(p.recent) > maxRecentSignals {
		p.recent = p.recent[len(p.recent)-maxRecentSignals:]
	}
	p.mu.Unlock()

	if p.signalChan == nil {
		return
	}
	select {
	case p.signalChan <- signal:
	default:
		p.log.Warn().Str("type", string(signal.Type)).Msg("signal channel full, dropping signal")
	}
}

// deriveSignals turns a report into signals: the newest shock of each market
// not signalled before, and the butterfly pair when it first becomes strong
// enough or has moved since it was last signalled.
func (p *Processor) deriveSignals(report *Report) []Signal {
	var out []Signal

	tickers := make([]string, 0, len(report.Markets))
	for ticker := range report.Markets {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	p.mu.Lock()
	for _, ticker := range tickers {
		analysis := report.Markets[ticker]
		last, seen := p.lastShock[ticker]

		fresh := 0
		for _, ev := range analysis.Shocks.Events {
			if !seen || ev.Timestamp.After(last) {
				fresh++
			}
		}
		if fresh == 0 {
			continue
		}
		metrics.ShocksDetected.WithLabelValues(ticker).Add(float64(fresh))

		event, _ := analysis.LatestShock()
		p.lastShock[ticker] = event.Timestamp

		threshold := analysis.Shocks.Mask.Threshold
		data := &VolatilityShockData{
			ObservedAt:  event.Timestamp,
			Probability: event.Probability,
			ZScore:      event.ZScore,
			Threshold:   threshold,
		}
		if vp, ok := analysis.LatestVolatility(); ok {
			v := vp.Value.Float
			data.Volatility = &v
		}
		out = append(out, Signal{
			MarketTicker: ticker,
			Type:         SignalTypeVolatilityShock,
			Value:        event.ZScore,
			Timestamp:    report.GeneratedAt,
			Metadata: SignalMetadata{
				ReportID:         report.ID,
				ThresholdCrossed: true,
				Confidence:       math.Min(math.Abs(event.ZScore)/(2*threshold), 1.0),
			},
			VolatilityShock: data,
		})
	}

	pair := report.Entanglement.Pair
	raise := p.shouldSignalPair(pair)
	p.mu.Unlock()

	if raise {
		out = append(out, Signal{
			MarketTicker: pair.MarketA,
			Type:         SignalTypeEntanglement,
			Value:        pair.Coefficient,
			Timestamp:    report.GeneratedAt,
			Metadata: SignalMetadata{
				ReportID:         report.ID,
				ThresholdCrossed: true,
				Confidence:       pair.Coefficient,
			},
			Entanglement: &EntanglementData{
				MarketA:     pair.MarketA,
				MarketB:     pair.MarketB,
				Coefficient: pair.Coefficient,
				Threshold:   p.entanglementThreshold,
			},
		})
	}

	return out
}

// shouldSignalPair records pair as signalled and reports true when it is above
// the alert threshold and differs from the last signalled pair. A pair that
// drops below the threshold is forgotten. Callers hold p.mu.
func (p *Processor) shouldSignalPair(pair *entropy.EntanglementPair) bool {
	if pair == nil || p.entanglementThreshold <= 0 || pair.Coefficient < p.entanglementThreshold {
		p.lastPair = nil
		return false
	}
	if prev := p.lastPair; prev != nil && prev.MarketA == pair.MarketA && prev.MarketB == pair.MarketB &&
		math.Abs(prev.Coefficient-pair.Coefficient) < pairCoefficientStep {
		return false
	}
	signalled := *pair
	p.lastPair = &signalled
	return true
}
