package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kalshi-entropy-feed/internal/config"
	"github.com/kalshi-entropy-feed/internal/entropy"
	"github.com/kalshi-entropy-feed/internal/metrics"
	"github.com/kalshi-entropy-feed/internal/state"
	"github.com/rs/zerolog"
)

// ErrNoMarkets is returned when discovery finds nothing to analyze.
var ErrNoMarkets = errors.New("no active markets found")

type Layer struct {
	restClient *RESTClient
	state      *state.Engine
	cfg        config.IngestionConfig
	log        zerolog.Logger
	now        func() time.Time
}

func NewLayer(kalshiCfg config.KalshiConfig, ingestionCfg config.IngestionConfig, stateEngine *state.Engine, log zerolog.Logger) (*Layer, error) {
	restClient, err := NewRESTClient(kalshiCfg, ingestionCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create REST client: %w", err)
	}

	return &Layer{
		restClient: restClient,
		state:      stateEngine,
		cfg:        ingestionCfg,
		log:        log,
		now:        time.Now,
	}, nil
}

// Run polls immediately and then on every poll interval until ctx is done.
func (l *Layer) Run(ctx context.Context) error {
	if err := l.Poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
		l.log.Error().Err(err).Msg("initial poll failed")
	}

	ticker := time.NewTicker(l.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := l.Poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				l.log.Error().Err(err).Msg("poll failed")
			}
		}
	}
}

// Poll runs one discovery and history fetch cycle.
func (l *Layer) Poll(ctx context.Context) error {
	markets, held, err := l.discover(ctx)
	if err != nil {
		return err
	}
	if len(markets) == 0 {
		return ErrNoMarkets
	}
	l.prune(markets, held)

	fetched := l.FetchHistories(ctx, markets)
	if err := ctx.Err(); err != nil {
		return err
	}

	l.log.Info().
		Int("markets", len(markets)).
		Int("histories", fetched).
		Msg("completed poll cycle")
	return nil
}

// DiscoverMarkets registers the markets to track: the configured market
// tickers if any, otherwise open markets of the configured or discovered
// series. Only active markets are kept.
func (l *Layer) DiscoverMarkets(ctx context.Context) ([]*state.Market, error) {
	markets, _, err := l.discover(ctx)
	return markets, err
}

// discover also returns the tracked tickers whose lookup failed this pass, so
// a transient error does not count as the market having closed.
func (l *Layer) discover(ctx context.Context) ([]*state.Market, []string, error) {
	var (
		markets []*state.Market
		held    []string
	)
	keep := func(m *state.Market) bool {
		if !m.IsActive() {
			return false
		}
		l.state.RegisterMarket(m)
		markets = append(markets, m)
		return len(markets) >= l.cfg.MaxMarkets
	}

	if len(l.cfg.MarketTickers) > 0 {
		for _, ticker := range l.cfg.MarketTickers {
			km, err := l.restClient.GetMarket(ctx, ticker)
			if err != nil {
				if ctx.Err() != nil {
					return nil, nil, ctx.Err()
				}
				l.log.Warn().Err(err).Str("market", ticker).Msg("skipping market")
				held = append(held, ticker)
				continue
			}
			if keep(km.ToMarket("")) {
				break
			}
		}
		return markets, held, nil
	}

	series := l.cfg.SeriesTickers
	if len(series) == 0 && l.cfg.Category != "" {
		discovered, err := l.restClient.ListSeries(ctx, l.cfg.Category)
		if err != nil {
			return nil, nil, err
		}
		l.log.Debug().Str("category", l.cfg.Category).Int("series", len(discovered)).Msg("discovered series")
		series = discovered
	}

	if len(series) == 0 {
		kms, err := l.restClient.ListMarkets(ctx, MarketFilter{Status: "open"}, l.cfg.MaxMarkets)
		if err != nil {
			return nil, nil, err
		}
		for _, km := range kms {
			if keep(km.ToMarket("")) {
				break
			}
		}
		return markets, held, nil
	}

	for _, s := range series {
		kms, err := l.restClient.ListMarkets(ctx, MarketFilter{Status: "open", SeriesTicker: s}, l.cfg.MaxMarkets-len(markets))
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			l.log.Warn().Err(err).Str("series", s).Msg("failed to list markets for series")
			for _, m := range l.state.GetAllMarkets() {
				if m.SeriesTicker == s {
					held = append(held, m.Ticker)
				}
			}
			continue
		}
		for _, km := range kms {
			if keep(km.ToMarket(s)) {
				return markets, held, nil
			}
		}
	}
	return markets, held, nil
}

// prune forgets every tracked market that discovery no longer returned.
func (l *Layer) prune(markets []*state.Market, held []string) {
	keep := append([]string(nil), held...)
	for _, m := range markets {
		keep = append(keep, m.Ticker)
	}
	if dropped := l.state.RetainMarkets(keep); len(dropped) > 0 {
		l.log.Info().Strs("markets", dropped).Msg("dropped markets no longer listed")
	}
}

// FetchHistories fetches and stores the candlestick history of each market and
// returns how many were stored.
func (l *Layer) FetchHistories(ctx context.Context, markets []*state.Market) int {
	end := l.now().UTC()
	start := end.Add(-time.Duration(l.cfg.HistoryHours) * time.Hour)

	stored := 0
	for _, m := range markets {
		if ctx.Err() != nil {
			break
		}

		records, err := l.restClient.FetchHistory(ctx, m.SeriesTicker, m.Ticker, start, end, l.cfg.CandleIntervalMins)
		if err != nil {
			l.log.Warn().Err(err).Str("market", m.Ticker).Msg("failed to fetch history")
			continue
		}

		series, err := entropy.NewMarketSeries(m.Ticker, records)
		if err != nil {
			metrics.MarketsSkipped.WithLabelValues("invalid_history").Inc()
			l.log.Warn().Err(err).Str("market", m.Ticker).Msg("discarding history")
			continue
		}

		l.state.RecordHistory(series, end)
		stored++
	}
	return stored
}
