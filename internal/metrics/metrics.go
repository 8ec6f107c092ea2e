package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	AnalysisCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "entropy",
			Subsystem: "analysis",
			Name:      "cycles_total",
			Help:      "Analysis cycles by outcome",
		},
		[]string{"outcome"},
	)

	AnalysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "entropy",
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Duration of a full analysis cycle",
			Buckets:   prometheus.DefBuckets,
		},
	)

	ShocksDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "entropy",
			Subsystem: "analysis",
			Name:      "shocks_total",
			Help:      "Shock observations flagged per market",
		},
		[]string{"market"},
	)

	MarketsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "entropy",
			Subsystem: "analysis",
			Name:      "markets_skipped_total",
			Help:      "Markets left out of an analysis cycle",
		},
		[]string{"reason"},
	)

	Entanglement = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "entropy",
			Subsystem: "analysis",
			Name:      "butterfly_coefficient",
			Help:      "Coefficient of the strongest filtered pair in the latest report",
		},
	)

	FetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "entropy",
			Subsystem: "ingestion",
			Name:      "fetch_errors_total",
			Help:      "Kalshi requests that failed",
		},
		[]string{"endpoint"},
	)
)

// Register adds the collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(AnalysisCycles, AnalysisDuration, ShocksDetected, MarketsSkipped, Entanglement, FetchErrors)
	})
}
