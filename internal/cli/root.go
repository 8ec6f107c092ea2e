package cli

import (
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

// NewRootCommand builds the entropy-feed command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "entropy-feed",
		Short:         "Volatility, shock and entanglement analytics for Kalshi markets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a TOML config file (default config/default.toml)")

	cmd.AddCommand(
		newServeCmd(opts),
		newAnalyzeCmd(opts),
	)
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		cmd.PrintErrln("Error:", err)
		os.Exit(1)
	}
}
