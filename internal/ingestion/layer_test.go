package ingestion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalshi-entropy-feed/internal/state"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kalshiStub(t *testing.T) http.Handler {
	base := time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("/markets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, GetMarketsResponse{Markets: []KalshiMarket{
			{Ticker: "KXFED-24DEC-T4.50", EventTicker: "KXFED-24DEC", Status: "active"},
			{Ticker: "KXFED-24DEC-T4.75", EventTicker: "KXFED-24DEC", Status: "closed"},
			{Ticker: "KXFED-24DEC-T5.00", EventTicker: "KXFED-24DEC", Status: "active"},
		}})
	})
	mux.HandleFunc("/series/", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "T5.00") {
			// out of order candles
			writeJSON(t, w, GetCandlesticksResponse{Candlesticks: []Candlestick{
				{EndPeriodTS: base.Add(2 * time.Hour).Unix(), Price: PriceBar{Close: cents(40)}},
				{EndPeriodTS: base.Add(time.Hour).Unix(), Price: PriceBar{Close: cents(41)}},
			}})
			return
		}
		writeJSON(t, w, GetCandlesticksResponse{Candlesticks: []Candlestick{
			{EndPeriodTS: base.Add(time.Hour).Unix(), Price: PriceBar{Close: cents(30)}},
			{EndPeriodTS: base.Add(2 * time.Hour).Unix(), Price: PriceBar{Close: cents(32)}},
		}})
	})
	return mux
}

func TestLayerPollStoresHistories(t *testing.T) {
	srv := httptest.NewServer(kalshiStub(t))
	defer srv.Close()

	kalshiCfg, ingestionCfg := testConfigs(srv.URL)
	engine := state.NewEngine()
	layer, err := NewLayer(kalshiCfg, ingestionCfg, engine, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, layer.Poll(context.Background()))

	markets := engine.GetAllMarkets()
	require.Len(t, markets, 2)
	assert.Equal(t, "KXFED", markets[0].SeriesTicker)

	h, ok := engine.GetHistory("KXFED-24DEC-T4.50")
	require.True(t, ok)
	require.Len(t, h.Series.Points, 2)
	assert.InDelta(t, 0.32, h.Series.Points[1].Probability, 1e-12)

	// non-monotonic history is discarded
	_, ok = engine.GetHistory("KXFED-24DEC-T5.00")
	assert.False(t, ok)
}

func TestLayerMaxMarkets(t *testing.T) {
	srv := httptest.NewServer(kalshiStub(t))
	defer srv.Close()

	kalshiCfg, ingestionCfg := testConfigs(srv.URL)
	ingestionCfg.MaxMarkets = 1
	engine := state.NewEngine()
	layer, err := NewLayer(kalshiCfg, ingestionCfg, engine, zerolog.Nop())
	require.NoError(t, err)

	markets, err := layer.DiscoverMarkets(context.Background())
	require.NoError(t, err)
	assert.Len(t, markets, 1)
}

func TestLayerPollNoMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, GetMarketsResponse{})
	}))
	defer srv.Close()

	kalshiCfg, ingestionCfg := testConfigs(srv.URL)
	layer, err := NewLayer(kalshiCfg, ingestionCfg, state.NewEngine(), zerolog.Nop())
	require.NoError(t, err)

	assert.ErrorIs(t, layer.Poll(context.Background()), ErrNoMarkets)
}

func TestLayerPollDropsUnlistedMarkets(t *testing.T) {
	base := time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC)
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/markets", func(w http.ResponseWriter, r *http.Request) {
		listed := []KalshiMarket{{Ticker: "KXA-1", EventTicker: "KXA", Status: "active"}}
		if atomic.AddInt32(&polls, 1) == 1 {
			listed = append(listed, KalshiMarket{Ticker: "KXB-1", EventTicker: "KXB", Status: "active"})
		}
		writeJSON(t, w, GetMarketsResponse{Markets: listed})
	})
	mux.HandleFunc("/series/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, GetCandlesticksResponse{Candlesticks: []Candlestick{
			{EndPeriodTS: base.Add(time.Hour).Unix(), Price: PriceBar{Close: cents(30)}},
			{EndPeriodTS: base.Add(2 * time.Hour).Unix(), Price: PriceBar{Close: cents(32)}},
		}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	kalshiCfg, ingestionCfg := testConfigs(srv.URL)
	engine := state.NewEngine()
	layer, err := NewLayer(kalshiCfg, ingestionCfg, engine, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, layer.Poll(context.Background()))
	require.Len(t, engine.GetActiveHistories(), 2)

	require.NoError(t, layer.Poll(context.Background()))
	histories := engine.GetActiveHistories()
	require.Len(t, histories, 1)
	assert.Equal(t, "KXA-1", histories[0].Ticker)

	_, ok := engine.GetMarket("KXB-1")
	assert.False(t, ok)
	_, ok = engine.GetHistory("KXB-1")
	assert.False(t, ok)
}
