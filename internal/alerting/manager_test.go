package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kalshi-entropy-feed/internal/config"
	"github.com/kalshi-entropy-feed/internal/signals"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Send(_ context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func shockSignal(ticker string) signals.Signal {
	vol := 0.0123
	return signals.Signal{
		MarketTicker: ticker,
		Type:         signals.SignalTypeVolatilityShock,
		Value:        4.2,
		Metadata:     signals.SignalMetadata{ThresholdCrossed: true},
		VolatilityShock: &signals.VolatilityShockData{
			ObservedAt:  time.Date(2024, 11, 5, 20, 0, 0, 0, time.UTC),
			Probability: 0.9,
			ZScore:      4.2,
			Threshold:   3,
			Volatility:  &vol,
		},
	}
}

func TestManagerCooldown(t *testing.T) {
	rec := &recorder{}
	m := NewManager(config.AlertingConfig{Enabled: true, AlertCooldownSecs: 60}, nil, zerolog.Nop())
	m.notifiers = []Notifier{rec}

	now := time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	ctx := context.Background()
	m.handleSignal(ctx, shockSignal("A"))
	m.handleSignal(ctx, shockSignal("A"))
	m.handleSignal(ctx, shockSignal("B"))
	m.inflight.Wait()
	assert.Equal(t, 2, rec.count())

	now = now.Add(61 * time.Second)
	m.handleSignal(ctx, shockSignal("A"))
	m.inflight.Wait()
	assert.Equal(t, 3, rec.count())
}

func TestManagerRunSkipsWhenDisabled(t *testing.T) {
	rec := &recorder{}
	ch := make(chan signals.Signal, 1)
	m := NewManager(config.AlertingConfig{Enabled: false}, ch, zerolog.Nop())
	m.notifiers = []Notifier{rec}

	ch <- shockSignal("A")
	close(ch)
	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, 0, rec.count())
}

func TestManagerRunDelivers(t *testing.T) {
	rec := &recorder{}
	ch := make(chan signals.Signal, 2)
	m := NewManager(config.AlertingConfig{Enabled: true}, ch, zerolog.Nop())
	m.notifiers = []Notifier{rec}

	ch <- shockSignal("A")
	ch <- signals.Signal{MarketTicker: "A", Type: signals.SignalTypeVolatilityShock}
	close(ch)
	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, 1, rec.count())
}

func TestFormatSignalMessage(t *testing.T) {
	msg := FormatSignalMessage(shockSignal("KXFED-24DEC"))
	assert.Contains(t, msg, "Volatility Shock")
	assert.Contains(t, msg, "KXFED-24DEC")
	assert.Contains(t, msg, "90.0%")
	assert.Contains(t, msg, "+4.20")

	msg = FormatSignalMessage(signals.Signal{
		Type: signals.SignalTypeEntanglement,
		Entanglement: &signals.EntanglementData{
			MarketA: "A", MarketB: "B", Coefficient: 0.95, Threshold: 0.9,
		},
	})
	assert.Contains(t, msg, "A ↔ B")
	assert.Contains(t, msg, "0.950")

	assert.Equal(t, "Signal: other on X (Value: 1.50)",
		FormatSignalMessage(signals.Signal{Type: "other", MarketTicker: "X", Value: 1.5}))
}

func TestWebhookClients(t *testing.T) {
	var bodies []map[string]string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
		if r.URL.Path == "/discord" {
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	require.NoError(t, NewSlackClient(srv.URL+"/slack").Send(ctx, "hello"))
	require.NoError(t, NewDiscordClient(srv.URL+"/discord").Send(ctx, "world"))

	require.Len(t, bodies, 2)
	assert.Equal(t, "hello", bodies[0]["text"])
	assert.Equal(t, "world", bodies[1]["content"])
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewSlackClient(srv.URL).Send(context.Background(), "x")
	assert.Error(t, err)
}
