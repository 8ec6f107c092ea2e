package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/kalshi-entropy-feed/internal/alerting"
	"github.com/kalshi-entropy-feed/internal/api"
	"github.com/kalshi-entropy-feed/internal/config"
	"github.com/kalshi-entropy-feed/internal/ingestion"
	"github.com/kalshi-entropy-feed/internal/logging"
	"github.com/kalshi-entropy-feed/internal/metrics"
	"github.com/kalshi-entropy-feed/internal/signals"
	"github.com/kalshi-entropy-feed/internal/state"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run ingestion, analysis, alerting and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	log.Info().Msg("Starting Kalshi Entropy Feed")

	metrics.Register()

	stateEngine := state.NewEngine()

	signalChan := make(chan signals.Signal, 100)

	signalProcessor := signals.NewProcessor(stateEngine, signalChan, cfg.Analysis,
		cfg.Alerting.EntanglementThreshold, logging.Component(log, "signals"))

	alertManager := alerting.NewManager(cfg.Alerting, signalChan, logging.Component(log, "alerting"))

	ingestionLayer, err := ingestion.NewLayer(cfg.Kalshi, cfg.Ingestion, stateEngine, logging.Component(log, "ingestion"))
	if err != nil {
		return fmt.Errorf("failed to initialize ingestion layer: %w", err)
	}

	apiServer := api.NewServer(cfg.API, stateEngine, signalProcessor, logging.Component(log, "api"))

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	components := []struct {
		name string
		run  func(context.Context) error
	}{
		{"ingestion", ingestionLayer.Run},
		{"signal processor", signalProcessor.Run},
		{"alert manager", alertManager.Run},
		{"api server", apiServer.Run},
	}

	var wg sync.WaitGroup
	for _, c := range components {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("component", c.name).Msg("component stopped")
			}
		}()
	}

	log.Info().Msg("All components started. System running...")

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	wg.Wait()
	log.Info().Msg("Shutdown complete")
	return nil
}
