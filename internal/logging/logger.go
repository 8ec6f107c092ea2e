package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kalshi-entropy-feed/internal/config"
	"github.com/rs/zerolog"
)

// New builds the process logger. Output goes to stdout unless w is given.
func New(cfg config.LogConfig, w ...io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level: %w", err)
	}

	var output io.Writer = os.Stdout
	if len(w) > 0 && w[0] != nil {
		output = w[0]
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", "entropy-feed").
		Logger(), nil
}

// Component derives a sub-logger tagged with a component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
