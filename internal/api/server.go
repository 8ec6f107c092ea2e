package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/kalshi-entropy-feed/internal/config"
	"github.com/kalshi-entropy-feed/internal/entropy"
	"github.com/kalshi-entropy-feed/internal/signals"
	"github.com/kalshi-entropy-feed/internal/state"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// ReportSource is what the server needs from the signal processor.
type ReportSource interface {
	Latest() (*signals.Report, bool)
	RecentSignals(filter signals.Filter) []signals.Signal
}

type Server struct {
	config  config.APIConfig
	state   *state.Engine
	reports ReportSource
	log     zerolog.Logger
	started time.Time
	server  *http.Server
}

func NewServer(cfg config.APIConfig, stateEngine *state.Engine, reports ReportSource, log zerolog.Logger) *Server {
	return &Server{
		config:  cfg,
		state:   stateEngine,
		reports: reports,
		log:     log,
		started: time.Now(),
	}
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	c := cors.New(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           3600,
	})

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.getHealth).Methods("GET")
	api.HandleFunc("/markets", s.getMarkets).Methods("GET")
	api.HandleFunc("/markets/{ticker}", s.getMarket).Methods("GET")
	api.HandleFunc("/markets/{ticker}/history", s.getHistory).Methods("GET")
	api.HandleFunc("/markets/{ticker}/volatility", s.getVolatility).Methods("GET")
	api.HandleFunc("/markets/{ticker}/shocks", s.getShocks).Methods("GET")
	api.HandleFunc("/entanglement", s.getEntanglement).Methods("GET")
	api.HandleFunc("/entanglement/butterfly", s.getButterfly).Methods("GET")
	api.HandleFunc("/signals", s.getSignals).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return c.Handler(router)
}

func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.BindAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("api shutdown")
		}
	}()

	s.log.Info().Str("addr", s.config.BindAddress).Msg("API server starting")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// latestReport writes 503 and returns false until the first analysis cycle.
func (s *Server) latestReport(w http.ResponseWriter) (*signals.Report, bool) {
	report, ok := s.reports.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "analysis not ready")
		return nil, false
	}
	return report, true
}

// marketAnalysis resolves the {ticker} route variable against the latest report.
func (s *Server) marketAnalysis(w http.ResponseWriter, r *http.Request) (*signals.Report, signals.MarketAnalysis, bool) {
	ticker := mux.Vars(r)["ticker"]

	report, ok := s.latestReport(w)
	if !ok {
		return nil, signals.MarketAnalysis{}, false
	}
	analysis, ok := report.Analysis(ticker)
	if !ok {
		writeError(w, http.StatusNotFound, "market not found")
		return nil, signals.MarketAnalysis{}, false
	}
	return report, analysis, true
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	response := struct {
		Status       string     `json:"status"`
		Uptime       string     `json:"uptime"`
		Markets      int        `json:"markets"`
		Histories    int        `json:"histories"`
		LastReportID string     `json:"last_report_id,omitempty"`
		LastReportAt *time.Time `json:"last_report_at,omitempty"`
	}{
		Status:    "ok",
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Markets:   len(s.state.GetAllMarkets()),
		Histories: s.state.GetTimeSeries().Len(),
	}
	if report, ok := s.reports.Latest(); ok {
		response.LastReportID = report.ID
		at := report.GeneratedAt
		response.LastReportAt = &at
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) getMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.state.GetAllMarkets()

	response := struct {
		Markets []*state.Market `json:"markets"`
		Count   int             `json:"count"`
	}{
		Markets: markets,
		Count:   len(markets),
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) getMarket(w http.ResponseWriter, r *http.Request) {
	market, exists := s.state.GetMarket(mux.Vars(r)["ticker"])
	if !exists {
		writeError(w, http.StatusNotFound, "market not found")
		return
	}
	writeJSON(w, http.StatusOK, market)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	history, exists := s.state.GetHistory(mux.Vars(r)["ticker"])
	if !exists {
		writeError(w, http.StatusNotFound, "history not found")
		return
	}

	response := struct {
		Ticker    string          `json:"ticker"`
		FetchedAt time.Time       `json:"fetched_at"`
		Points    []entropy.Point `json:"points"`
		Count     int             `json:"count"`
	}{
		Ticker:    history.Series.Ticker,
		FetchedAt: history.FetchedAt,
		Points:    history.Series.Points,
		Count:     history.Series.Len(),
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) getVolatility(w http.ResponseWriter, r *http.Request) {
	report, analysis, ok := s.marketAnalysis(w, r)
	if !ok {
		return
	}

	response := struct {
		ReportID string                    `json:"report_id"`
		Ticker   string                    `json:"ticker"`
		Window   int                       `json:"window"`
		Latest   *entropy.VolatilityPoint  `json:"latest,omitempty"`
		Points   []entropy.VolatilityPoint `json:"points"`
	}{
		ReportID: report.ID,
		Ticker:   analysis.Ticker,
		Window:   analysis.Volatility.Window,
		Points:   analysis.Volatility.Points,
	}
	if latest, ok := analysis.LatestVolatility(); ok {
		response.Latest = &latest
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) getShocks(w http.ResponseWriter, r *http.Request) {
	report, analysis, ok := s.marketAnalysis(w, r)
	if !ok {
		return
	}

	response := struct {
		ReportID   string               `json:"report_id"`
		Ticker     string               `json:"ticker"`
		Threshold  float64              `json:"threshold"`
		Degenerate bool                 `json:"degenerate"`
		Mask       []bool               `json:"mask"`
		ZScores    []entropy.Value      `json:"z_scores"`
		Events     []entropy.ShockEvent `json:"events"`
	}{
		ReportID:   report.ID,
		Ticker:     analysis.Ticker,
		Threshold:  analysis.Shocks.Mask.Threshold,
		Degenerate: analysis.Shocks.Mask.Degenerate,
		Mask:       analysis.Shocks.Mask.Flags,
		ZScores:    analysis.Shocks.Mask.ZScores,
		Events:     analysis.Shocks.Events,
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) getEntanglement(w http.ResponseWriter, r *http.Request) {
	report, ok := s.latestReport(w)
	if !ok {
		return
	}

	includeRaw, _ := strconv.ParseBool(r.URL.Query().Get("raw"))

	ent := report.Entanglement
	response := struct {
		ReportID  string                     `json:"report_id"`
		Threshold float64                    `json:"threshold"`
		Filtered  entropy.CorrelationMatrix  `json:"filtered"`
		Raw       *entropy.CorrelationMatrix `json:"raw,omitempty"`
		Pair      *entropy.EntanglementPair  `json:"pair,omitempty"`
	}{
		ReportID:  report.ID,
		Threshold: ent.Threshold,
		Filtered:  ent.Filtered,
		Pair:      ent.Pair,
	}
	if includeRaw {
		response.Raw = &ent.Raw
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) getButterfly(w http.ResponseWriter, r *http.Request) {
	report, ok := s.latestReport(w)
	if !ok {
		return
	}
	if report.Entanglement.Pair == nil {
		writeError(w, http.StatusNotFound, "no correlated pair")
		return
	}
	writeJSON(w, http.StatusOK, report.Entanglement.Pair)
}

func (s *Server) getSignals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := signals.Filter{
		MarketTicker: q.Get("market_ticker"),
		Type:         signals.SignalType(q.Get("type")),
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			filter.Limit = l
		}
	}

	filtered := s.reports.RecentSignals(filter)
	response := struct {
		Signals []signals.Signal `json:"signals"`
		Count   int              `json:"count"`
	}{
		Signals: filtered,
		Count:   len(filtered),
	}
	writeJSON(w, http.StatusOK, response)
}
