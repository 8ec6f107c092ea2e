package signals

import "time"

type SignalType string

const (
	SignalTypeVolatilityShock SignalType = "volatility_shock"
	SignalTypeEntanglement    SignalType = "entanglement"
)

type Signal struct {
	MarketTicker string         `json:"market_ticker"`
	Type         SignalType     `json:"type"`
	Value        float64        `json:"value"`
	Timestamp    time.Time      `json:"timestamp"`
	Metadata     SignalMetadata `json:"metadata"`

	// Type-specific data (only one will be set)
	VolatilityShock *VolatilityShockData `json:"volatility_shock,omitempty"`
	Entanglement    *EntanglementData    `json:"entanglement,omitempty"`
}

type SignalMetadata struct {
	ReportID         string  `json:"report_id"`
	ThresholdCrossed bool    `json:"threshold_crossed"`
	Confidence       float64 `json:"confidence"` // 0.0 to 1.0
}

type VolatilityShockData struct {
	ObservedAt  time.Time `json:"observed_at"`
	Probability float64   `json:"probability"`
	ZScore      float64   `json:"z_score"`
	Threshold   float64   `json:"threshold"`
	Volatility  *float64  `json:"volatility,omitempty"`
}

type EntanglementData struct {
	MarketA     string  `json:"market_a"`
	MarketB     string  `json:"market_b"`
	Coefficient float64 `json:"coefficient"`
	Threshold   float64 `json:"threshold"`
}

// Filter selects signals by market and type; zero fields match everything.
type Filter struct {
	MarketTicker string
	Type         SignalType
	Limit        int
}

func (f Filter) matches(s Signal) bool {
	if f.MarketTicker != "" && s.MarketTicker != f.MarketTicker {
		if s.Entanglement == nil || (s.Entanglement.MarketA != f.MarketTicker && s.Entanglement.MarketB != f.MarketTicker) {
			return false
		}
	}
	if f.Type != "" && s.Type != f.Type {
		return false
	}
	return true
}
