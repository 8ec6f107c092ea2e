package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// DefaultPath is read when no explicit config file is given.
const DefaultPath = "config/default.toml"

type Config struct {
	Kalshi    KalshiConfig    `toml:"kalshi"`
	Ingestion IngestionConfig `toml:"ingestion"`
	Analysis  AnalysisConfig  `toml:"analysis"`
	API       APIConfig       `toml:"api"`
	Alerting  AlertingConfig  `toml:"alerting"`
	Log       LogConfig       `toml:"log"`
}

type KalshiConfig struct {
	APIBaseURL     string `toml:"api_base_url" validate:"required,url"`
	APIKeyID       string `toml:"api_key_id"`
	PrivateKeyPath string `toml:"private_key_path"`
}

type IngestionConfig struct {
	PollIntervalSecs   int      `toml:"poll_interval_secs" validate:"min=1"`
	RateLimitPerSecond int      `toml:"rate_limit_per_second" validate:"min=1"`
	HistoryHours       int      `toml:"history_hours" validate:"min=1"`
	CandleIntervalMins int      `toml:"candle_interval_mins" validate:"oneof=1 60 1440"`
	Category           string   `toml:"category"`
	SeriesTickers      []string `toml:"series_tickers"`
	MarketTickers      []string `toml:"market_tickers"`
	MaxMarkets         int      `toml:"max_markets" validate:"min=1"`
	RequestTimeoutSecs int      `toml:"request_timeout_secs" validate:"min=1"`
}

type AnalysisConfig struct {
	ComputationIntervalSecs int     `toml:"computation_interval_secs" validate:"min=1"`
	GridIntervalMins        int     `toml:"grid_interval_mins" validate:"min=1"`
	VolatilityWindow        int     `toml:"volatility_window" validate:"min=2"`
	ShockThreshold          float64 `toml:"shock_threshold" validate:"gt=0"`
	NoiseThreshold          float64 `toml:"noise_threshold" validate:"gte=0,lte=1"`
	Workers                 int     `toml:"workers" validate:"min=1"`
}

type APIConfig struct {
	BindAddress string   `toml:"bind_address" validate:"required"`
	CORSOrigins []string `toml:"cors_origins"`
}

type AlertingConfig struct {
	Enabled               bool    `toml:"enabled"`
	SlackWebhookURL       string  `toml:"slack_webhook_url" validate:"omitempty,url"`
	DiscordWebhookURL     string  `toml:"discord_webhook_url" validate:"omitempty,url"`
	AlertCooldownSecs     int     `toml:"alert_cooldown_secs" validate:"min=0"`
	EntanglementThreshold float64 `toml:"entanglement_threshold" validate:"gte=0,lte=1"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=trace debug info warn error"`
	Format string `toml:"format" validate:"oneof=json console"`
}

// GridInterval returns the alignment grid spacing.
func (c AnalysisConfig) GridInterval() time.Duration {
	return time.Duration(c.GridIntervalMins) * time.Minute
}

// ComputationInterval returns the period between analysis cycles.
func (c AnalysisConfig) ComputationInterval() time.Duration {
	return time.Duration(c.ComputationIntervalSecs) * time.Second
}

// PollInterval returns the period between ingestion cycles.
func (c IngestionConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Kalshi: KalshiConfig{
			APIBaseURL:     "https://api.elections.kalshi.com/trade-api/v2",
			PrivateKeyPath: "",
		},
		Ingestion: IngestionConfig{
			PollIntervalSecs:   300,
			RateLimitPerSecond: 10,
			HistoryHours:       24 * 7,
			CandleIntervalMins: 60,
			MaxMarkets:         40,
			RequestTimeoutSecs: 30,
		},
		Analysis: AnalysisConfig{
			ComputationIntervalSecs: 60,
			GridIntervalMins:        60,
			VolatilityWindow:        24,
			ShockThreshold:          3.0,
			NoiseThreshold:          0.3,
			Workers:                 4,
		},
		API: APIConfig{
			BindAddress: "0.0.0.0:8080",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Alerting: AlertingConfig{
			Enabled:               true,
			AlertCooldownSecs:     900,
			EntanglementThreshold: 0.9,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load layers the TOML file at path (DefaultPath when empty; a missing default
// file is not an error), a .env file and ENTROPY__* environment variables
// over the defaults, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// running on defaults
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// .env is optional
	_ = godotenv.Load()

	applyEnv(cfg)

	// Validate private key path
	if cfg.Kalshi.PrivateKeyPath != "" {
		if _, err := os.Stat(cfg.Kalshi.PrivateKeyPath); err != nil {
			// Try relative to current directory
			if _, err := os.Stat(filepath.Join(".", cfg.Kalshi.PrivateKeyPath)); err == nil {
				cfg.Kalshi.PrivateKeyPath = filepath.Join(".", cfg.Kalshi.PrivateKeyPath)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints declared in struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Kalshi.APIBaseURL = getEnv("ENTROPY__KALSHI__API_BASE_URL", cfg.Kalshi.APIBaseURL)
	cfg.Kalshi.APIKeyID = getEnv("ENTROPY__KALSHI__API_KEY_ID", cfg.Kalshi.APIKeyID)
	cfg.Kalshi.PrivateKeyPath = getEnv("ENTROPY__KALSHI__PRIVATE_KEY_PATH", cfg.Kalshi.PrivateKeyPath)

	cfg.Ingestion.PollIntervalSecs = getEnvInt("ENTROPY__INGESTION__POLL_INTERVAL_SECS", cfg.Ingestion.PollIntervalSecs)
	cfg.Ingestion.RateLimitPerSecond = getEnvInt("ENTROPY__INGESTION__RATE_LIMIT_PER_SECOND", cfg.Ingestion.RateLimitPerSecond)
	cfg.Ingestion.HistoryHours = getEnvInt("ENTROPY__INGESTION__HISTORY_HOURS", cfg.Ingestion.HistoryHours)
	cfg.Ingestion.CandleIntervalMins = getEnvInt("ENTROPY__INGESTION__CANDLE_INTERVAL_MINS", cfg.Ingestion.CandleIntervalMins)
	cfg.Ingestion.Category = getEnv("ENTROPY__INGESTION__CATEGORY", cfg.Ingestion.Category)
	cfg.Ingestion.SeriesTickers = getEnvSlice("ENTROPY__INGESTION__SERIES_TICKERS", cfg.Ingestion.SeriesTickers)
	cfg.Ingestion.MarketTickers = getEnvSlice("ENTROPY__INGESTION__MARKET_TICKERS", cfg.Ingestion.MarketTickers)
	cfg.Ingestion.MaxMarkets = getEnvInt("ENTROPY__INGESTION__MAX_MARKETS", cfg.Ingestion.MaxMarkets)
	cfg.Ingestion.RequestTimeoutSecs = getEnvInt("ENTROPY__INGESTION__REQUEST_TIMEOUT_SECS", cfg.Ingestion.RequestTimeoutSecs)

	cfg.Analysis.ComputationIntervalSecs = getEnvInt("ENTROPY__ANALYSIS__COMPUTATION_INTERVAL_SECS", cfg.Analysis.ComputationIntervalSecs)
	cfg.Analysis.GridIntervalMins = getEnvInt("ENTROPY__ANALYSIS__GRID_INTERVAL_MINS", cfg.Analysis.GridIntervalMins)
	cfg.Analysis.VolatilityWindow = getEnvInt("ENTROPY__ANALYSIS__VOLATILITY_WINDOW", cfg.Analysis.VolatilityWindow)
	cfg.Analysis.ShockThreshold = getEnvFloat("ENTROPY__ANALYSIS__SHOCK_THRESHOLD", cfg.Analysis.ShockThreshold)
	cfg.Analysis.NoiseThreshold = getEnvFloat("ENTROPY__ANALYSIS__NOISE_THRESHOLD", cfg.Analysis.NoiseThreshold)
	cfg.Analysis.Workers = getEnvInt("ENTROPY__ANALYSIS__WORKERS", cfg.Analysis.Workers)

	cfg.API.BindAddress = getEnv("ENTROPY__API__BIND_ADDRESS", cfg.API.BindAddress)
	cfg.API.CORSOrigins = getEnvSlice("ENTROPY__API__CORS_ORIGINS", cfg.API.CORSOrigins)

	cfg.Alerting.Enabled = getEnvBool("ENTROPY__ALERTING__ENABLED", cfg.Alerting.Enabled)
	cfg.Alerting.SlackWebhookURL = getEnv("ENTROPY__ALERTING__SLACK_WEBHOOK_URL", cfg.Alerting.SlackWebhookURL)
	cfg.Alerting.DiscordWebhookURL = getEnv("ENTROPY__ALERTING__DISCORD_WEBHOOK_URL", cfg.Alerting.DiscordWebhookURL)
	cfg.Alerting.AlertCooldownSecs = getEnvInt("ENTROPY__ALERTING__ALERT_COOLDOWN_SECS", cfg.Alerting.AlertCooldownSecs)
	cfg.Alerting.EntanglementThreshold = getEnvFloat("ENTROPY__ALERTING__ENTANGLEMENT_THRESHOLD", cfg.Alerting.EntanglementThreshold)

	cfg.Log.Level = getEnv("ENTROPY__LOG__LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("ENTROPY__LOG__FORMAT", cfg.Log.Format)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
