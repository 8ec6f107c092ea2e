package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kalshi-entropy-feed/internal/config"
	"github.com/kalshi-entropy-feed/internal/signals"
	"github.com/rs/zerolog"
)

type Manager struct {
	config     config.AlertingConfig
	signalChan <-chan signals.Signal
	notifiers  []Notifier
	log        zerolog.Logger
	now        func() time.Time

	mu       sync.Mutex
	cooldown map[string]time.Time
	inflight sync.WaitGroup
}

func NewManager(cfg config.AlertingConfig, signalChan <-chan signals.Signal, log zerolog.Logger) *Manager {
	var notifiers []Notifier
	if cfg.SlackWebhookURL != "" {
		notifiers = append(notifiers, NewSlackClient(cfg.SlackWebhookURL))
	}
	if cfg.DiscordWebhookURL != "" {
		notifiers = append(notifiers, NewDiscordClient(cfg.DiscordWebhookURL))
	}

	return &Manager{
		config:     cfg,
		signalChan: signalChan,
		notifiers:  notifiers,
		log:        log,
		now:        time.Now,
		cooldown:   make(map[string]time.Time),
	}
}

// Run consumes signals until ctx is done. With alerting disabled the channel
// is still drained so the processor never sees it full.
func (m *Manager) Run(ctx context.Context) error {
	defer m.inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case signal, ok := <-m.signalChan:
			if !ok {
				return nil
			}
			if !m.config.Enabled || !signal.Metadata.ThresholdCrossed {
				continue
			}
			m.handleSignal(ctx, signal)
		}
	}
}

func (m *Manager) handleSignal(ctx context.Context, signal signals.Signal) {
	if !m.acquire(cooldownKey(signal)) {
		return
	}

	message := FormatSignalMessage(signal)
	for _, n := range m.notifiers {
		m.inflight.Add(1)
		go func(n Notifier) {
			defer m.inflight.Done()
			if err := n.Send(ctx, message); err != nil {
				m.log.Warn().Err(err).Str("notifier", n.Name()).Str("type", string(signal.Type)).Msg("failed to deliver alert")
			}
		}(n)
	}
}

// acquire reports whether key is out of cooldown and, if so, starts a new one.
func (m *Manager) acquire(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if last, ok := m.cooldown[key]; ok {
		if now.Sub(last) < time.Duration(m.config.AlertCooldownSecs)*time.Second {
			return false
		}
	}
	m.cooldown[key] = now
	return true
}

func cooldownKey(signal signals.Signal) string {
	if e := signal.Entanglement; e != nil {
		return string(signal.Type) + ":" + e.MarketA + ":" + e.MarketB
	}
	return string(signal.Type) + ":" + signal.MarketTicker
}

// FormatSignalMessage renders a signal as a chat message.
func FormatSignalMessage(signal signals.Signal) string {
	var msg string

	switch signal.Type {
	case signals.SignalTypeVolatilityShock:
		if d := signal.VolatilityShock; d != nil {
			msg = fmt.Sprintf("⚡ **Volatility Shock**\n"+
				"Market: %s\n"+
				"Observed: %s\n"+
				"Probability: %.1f%%\n"+
				"Z-score: %+.2f (threshold %.2f)",
				signal.MarketTicker,
				d.ObservedAt.UTC().Format(time.RFC3339),
				d.Probability*100,
				d.ZScore,
				d.Threshold,
			)
			if d.Volatility != nil {
				msg += fmt.Sprintf("\nVolatility: %.4f", *d.Volatility)
			}
		}

	case signals.SignalTypeEntanglement:
		if d := signal.Entanglement; d != nil {
			msg = fmt.Sprintf("🦋 **Butterfly Effect**\n"+
				"Markets: %s ↔ %s\n"+
				"Correlation: %.3f (alert at %.2f)",
				d.MarketA,
				d.MarketB,
				d.Coefficient,
				d.Threshold,
			)
		}
	}

	if msg == "" {
		msg = fmt.Sprintf("Signal: %s on %s (Value: %.2f)", signal.Type, signal.MarketTicker, signal.Value)
	}

	return msg
}
