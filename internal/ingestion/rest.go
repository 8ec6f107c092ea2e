package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/kalshi-entropy-feed/internal/config"
	"github.com/kalshi-entropy-feed/internal/entropy"
	"github.com/kalshi-entropy-feed/internal/metrics"
	"github.com/kalshi-entropy-feed/internal/state"
	"golang.org/x/time/rate"
)

const pageLimit = 100

// ErrUnexpectedStatus wraps non-200 responses from the Kalshi API.
var ErrUnexpectedStatus = errors.New("unexpected status")

type RESTClient struct {
	baseURL     string
	auth        *Auth
	client      *http.Client
	rateLimiter *rate.Limiter
}

type GetMarketsResponse struct {
	Markets []KalshiMarket `json:"markets"`
	Cursor  *string        `json:"cursor"`
}

type KalshiMarket struct {
	Ticker         string  `json:"ticker"`
	EventTicker    string  `json:"event_ticker"`
	SeriesTicker   string  `json:"series_ticker,omitempty"`
	Title          string  `json:"title"`
	Category       string  `json:"category"`
	Status         string  `json:"status"`
	OpenTime       *string `json:"open_time"`
	ExpirationTime *string `json:"expiration_time"`
	LastPrice      *int    `json:"last_price"` // cents
	Volume         int64   `json:"volume"`
}

type GetCandlesticksResponse struct {
	Ticker       string        `json:"ticker"`
	Candlesticks []Candlestick `json:"candlesticks"`
}

type Candlestick struct {
	EndPeriodTS  int64    `json:"end_period_ts"`
	YesBid       PriceBar `json:"yes_bid"`
	YesAsk       PriceBar `json:"yes_ask"`
	Price        PriceBar `json:"price"`
	Volume       int64    `json:"volume"`
	OpenInterest int64    `json:"open_interest"`
}

// PriceBar holds OHLC prices in cents; any of them may be absent.
type PriceBar struct {
	Open  *int `json:"open"`
	High  *int `json:"high"`
	Low   *int `json:"low"`
	Close *int `json:"close"`
}

// MarketFilter narrows ListMarkets.
type MarketFilter struct {
	SeriesTicker string
	Status       string
}

func NewRESTClient(cfg config.KalshiConfig, ingestionCfg config.IngestionConfig) (*RESTClient, error) {
	client := &http.Client{
		Timeout: time.Duration(ingestionCfg.RequestTimeoutSecs) * time.Second,
	}

	var auth *Auth
	if cfg.APIKeyID != "" && cfg.PrivateKeyPath != "" {
		privateKeyPEM, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}

		auth, err = NewAuth(cfg.APIKeyID, string(privateKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize auth: %w", err)
		}
	}

	rateLimiter := rate.NewLimiter(rate.Limit(ingestionCfg.RateLimitPerSecond), ingestionCfg.RateLimitPerSecond)

	return &RESTClient{
		baseURL:     cfg.APIBaseURL,
		auth:        auth,
		client:      client,
		rateLimiter: rateLimiter,
	}, nil
}

// ListMarkets pages through GET /markets until the cursor runs out or limit
// markets were collected. limit <= 0 means no limit.
func (c *RESTClient) ListMarkets(ctx context.Context, filter MarketFilter, limit int) ([]KalshiMarket, error) {
	var (
		markets []KalshiMarket
		cursor  string
	)
	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(pageLimit))
		if filter.Status != "" {
			q.Set("status", filter.Status)
		}
		if filter.SeriesTicker != "" {
			q.Set("series_ticker", filter.SeriesTicker)
		}
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var resp GetMarketsResponse
		if err := c.get(ctx, "/markets", q, &resp); err != nil {
			metrics.FetchErrors.WithLabelValues("markets").Inc()
			return nil, fmt.Errorf("failed to fetch markets: %w", err)
		}

		markets = append(markets, resp.Markets...)
		if limit > 0 && len(markets) >= limit {
			return markets[:limit], nil
		}

		if resp.Cursor == nil || *resp.Cursor == "" {
			return markets, nil
		}
		cursor = *resp.Cursor
	}
}

// GetMarket fetches a single market by ticker.
func (c *RESTClient) GetMarket(ctx context.Context, ticker string) (*KalshiMarket, error) {
	var resp struct {
		Market KalshiMarket `json:"market"`
	}
	if err := c.get(ctx, "/markets/"+url.PathEscape(ticker), nil, &resp); err != nil {
		metrics.FetchErrors.WithLabelValues("market").Inc()
		return nil, fmt.Errorf("failed to fetch market %s: %w", ticker, err)
	}
	return &resp.Market, nil
}

// FetchHistory returns the candlestick history of a market between start and
// end as probability records. periodMins is the candle width in minutes.
func (c *RESTClient) FetchHistory(ctx context.Context, seriesTicker, ticker string, start, end time.Time, periodMins int) ([]entropy.Record, error) {
	q := url.Values{}
	q.Set("start_ts", strconv.FormatInt(start.Unix(), 10))
	q.Set("end_ts", strconv.FormatInt(end.Unix(), 10))
	q.Set("period_interval", strconv.Itoa(periodMins))

	path := fmt.Sprintf("/series/%s/markets/%s/candlesticks", url.PathEscape(seriesTicker), url.PathEscape(ticker))

	var resp GetCandlesticksResponse
	if err := c.get(ctx, path, q, &resp); err != nil {
		metrics.FetchErrors.WithLabelValues("candlesticks").Inc()
		return nil, fmt.Errorf("failed to fetch candlesticks for %s: %w", ticker, err)
	}

	return CandlesToRecords(resp.Candlesticks), nil
}

// CandlesToRecords converts candles to records, preferring the traded close
// and falling back to the bid/ask midpoint. Candles with neither are dropped.
func CandlesToRecords(candles []Candlestick) []entropy.Record {
	records := make([]entropy.Record, 0, len(candles))
	for _, cs := range candles {
		p, ok := cs.probability()
		if !ok {
			continue
		}
		records = append(records, entropy.Record{
			Timestamp:   time.Unix(cs.EndPeriodTS, 0).UTC(),
			Probability: &p,
		})
	}
	return records
}

func (cs Candlestick) probability() (float64, bool) {
	if cs.Price.Close != nil {
		return float64(*cs.Price.Close) / 100, true
	}
	if cs.YesBid.Close != nil && cs.YesAsk.Close != nil {
		return float64(*cs.YesBid.Close+*cs.YesAsk.Close) / 200, true
	}
	return 0, false
}

func (c *RESTClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	// Wait for rate limit
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	// Add authentication if available
	if c.auth != nil {
		signPath, err := signingPath(c.baseURL, path)
		if err != nil {
			return err
		}
		headers, err := c.auth.SignRequest(http.MethodGet, signPath, nil)
		if err != nil {
			return err
		}
		req.Header.Set("KALSHI-ACCESS-KEY", headers.AccessKey)
		req.Header.Set("KALSHI-ACCESS-SIGNATURE", headers.AccessSignature)
		req.Header.Set("KALSHI-ACCESS-TIMESTAMP", headers.AccessTimestamp)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w %d, body: %s", ErrUnexpectedStatus, resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// signingPath is the full request path without query, as Kalshi signs it.
func signingPath(baseURL, path string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	return base.Path + path, nil
}

func parseMarketStatus(s string) state.MarketStatus {
	switch s {
	case "initialized":
		return state.StatusInitialized
	case "inactive":
		return state.StatusInactive
	case "active", "open":
		return state.StatusActive
	case "closed":
		return state.StatusClosed
	case "determined":
		return state.StatusDetermined
	case "disputed":
		return state.StatusDisputed
	case "amended":
		return state.StatusAmended
	case "finalized", "settled":
		return state.StatusFinalized
	default:
		return state.StatusInactive
	}
}

// ToMarket converts the wire representation into a state market.
func (m KalshiMarket) ToMarket(seriesTicker string) *state.Market {
	market := &state.Market{
		Ticker:       m.Ticker,
		SeriesTicker: m.SeriesTicker,
		EventTicker:  m.EventTicker,
		Title:        m.Title,
		Category:     m.Category,
		Status:       parseMarketStatus(m.Status),
		Volume:       m.Volume,
	}
	if market.SeriesTicker == "" {
		market.SeriesTicker = seriesTicker
	}
	if market.SeriesTicker == "" {
		market.SeriesTicker = seriesFromEvent(m.EventTicker)
	}
	if m.OpenTime != nil {
		if t, err := time.Parse(time.RFC3339, *m.OpenTime); err == nil {
			market.OpenTime = &t
		}
	}
	if m.ExpirationTime != nil {
		if t, err := time.Parse(time.RFC3339, *m.ExpirationTime); err == nil {
			market.ExpirationTime = &t
		}
	}
	if m.LastPrice != nil {
		p := float64(*m.LastPrice) / 100
		market.LastPrice = &p
	}
	return market
}
