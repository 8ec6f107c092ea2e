package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kalshi-entropy-feed/internal/config"
	"github.com/kalshi-entropy-feed/internal/ingestion"
	"github.com/kalshi-entropy-feed/internal/logging"
	"github.com/kalshi-entropy-feed/internal/signals"
	"github.com/kalshi-entropy-feed/internal/state"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type analyzeOptions struct {
	tickers []string
	series  []string
	format  string
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Fetch history once, analyze it and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.format != "json" && opts.format != "yaml" {
				return fmt.Errorf("unsupported format %q (want json or yaml)", opts.format)
			}

			cfg, err := config.Load(root.configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if len(opts.tickers) > 0 {
				cfg.Ingestion.MarketTickers = opts.tickers
			}
			if len(opts.series) > 0 {
				cfg.Ingestion.SeriesTickers = opts.series
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			report, err := analyze(ctx, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), report, opts.format)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.tickers, "tickers", "t", nil, "market tickers to analyze (overrides discovery)")
	cmd.Flags().StringSliceVarP(&opts.series, "series", "s", nil, "series tickers to discover markets from")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "json", "output format: json or yaml")
	return cmd
}

// analyze runs a single ingestion poll and analysis cycle. Logs go to logOut
// so the report on stdout stays machine readable.
func analyze(ctx context.Context, cfg *config.Config, logOut io.Writer) (*signals.Report, error) {
	if logOut == nil {
		logOut = os.Stderr
	}
	log, err := logging.New(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}

	stateEngine := state.NewEngine()
	layer, err := ingestion.NewLayer(cfg.Kalshi, cfg.Ingestion, stateEngine, logging.Component(log, "ingestion"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ingestion layer: %w", err)
	}
	if err := layer.Poll(ctx); err != nil {
		return nil, fmt.Errorf("failed to fetch market history: %w", err)
	}

	processor := signals.NewProcessor(stateEngine, nil, cfg.Analysis, cfg.Alerting.EntanglementThreshold, logging.Component(log, "signals"))
	return processor.Compute(ctx)
}

func writeReport(w io.Writer, report *signals.Report, format string) error {
	switch strings.ToLower(format) {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
}
