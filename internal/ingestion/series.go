package ingestion

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/kalshi-entropy-feed/internal/metrics"
)

type GetSeriesResponse struct {
	Series []Series `json:"series"`
	Cursor *string  `json:"cursor"`
}

type Series struct {
	Ticker   string `json:"ticker"`
	Title    string `json:"title"`
	Category string `json:"category"`
}

// ListSeries fetches the tickers of every series in a category.
func (c *RESTClient) ListSeries(ctx context.Context, category string) ([]string, error) {
	var (
		tickers []string
		cursor  string
	)
	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(pageLimit))
		if category != "" {
			q.Set("category", category)
		}
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var resp GetSeriesResponse
		if err := c.get(ctx, "/series", q, &resp); err != nil {
			metrics.FetchErrors.WithLabelValues("series").Inc()
			return nil, fmt.Errorf("failed to fetch series: %w", err)
		}

		for _, s := range resp.Series {
			tickers = append(tickers, s.Ticker)
		}

		if resp.Cursor == nil || *resp.Cursor == "" {
			return tickers, nil
		}
		cursor = *resp.Cursor
	}
}

// seriesFromEvent derives the series ticker from an event ticker, e.g.
// KXPRESPARTY-24 -> KXPRESPARTY.
func seriesFromEvent(eventTicker string) string {
	if i := strings.Index(eventTicker, "-"); i > 0 {
		return eventTicker[:i]
	}
	return eventTicker
}
