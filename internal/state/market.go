package state

import "time"

type MarketStatus string

const (
	StatusInitialized MarketStatus = "initialized"
	StatusInactive    MarketStatus = "inactive"
	StatusActive      MarketStatus = "active"
	StatusClosed      MarketStatus = "closed"
	StatusDetermined  MarketStatus = "determined"
	StatusDisputed    MarketStatus = "disputed"
	StatusAmended     MarketStatus = "amended"
	StatusFinalized   MarketStatus = "finalized"
)

type Market struct {
	Ticker         string       `json:"ticker"`
	SeriesTicker   string       `json:"series_ticker"`
	EventTicker    string       `json:"event_ticker"`
	Title          string       `json:"title"`
	Category       string       `json:"category"`
	Status         MarketStatus `json:"status"`
	OpenTime       *time.Time   `json:"open_time,omitempty"`
	ExpirationTime *time.Time   `json:"expiration_time,omitempty"`
	LastPrice      *float64     `json:"last_price,omitempty"` // probability
	Volume         int64        `json:"volume"`
}

func (m *Market) Clone() *Market {
	c := *m
	if m.OpenTime != nil {
		t := *m.OpenTime
		c.OpenTime = &t
	}
	if m.ExpirationTime != nil {
		t := *m.ExpirationTime
		c.ExpirationTime = &t
	}
	if m.LastPrice != nil {
		p := *m.LastPrice
		c.LastPrice = &p
	}
	return &c
}

// IsActive reports whether the market is still trading.
func (m *Market) IsActive() bool {
	return m.Status == StatusActive
}
