package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	DatabaseDSN string `envconfig:"DATABASE_DSN" default:"quadras.db?_journal_mode=WAL&_busy_timeout=5000"`
	CatalogPath string `envconfig:"CATALOG_PATH" default:"catalog.yaml"`

	// Empty NATSURL publishes events to the log only.
	NATSURL           string `envconfig:"NATS_URL"`
	NATSStream        string `envconfig:"NATS_STREAM" default:"MATCH_EVENTS"`
	NATSSubjectPrefix string `envconfig:"NATS_SUBJECT_PREFIX" default:"quadras.events"`
	EventBuffer       int    `envconfig:"EVENT_BUFFER" default:"256"`

	HoldTTL         time.Duration `envconfig:"HOLD_TTL" default:"10s"`
	QueueTTL        time.Duration `envconfig:"QUEUE_TTL" default:"24h"`
	OpenMatchTTL    time.Duration `envconfig:"OPEN_MATCH_TTL" default:"48h"`
	ReportGrace     time.Duration `envconfig:"REPORT_GRACE" default:"72h"`
	ChallengeExpiry time.Duration `envconfig:"CHALLENGE_EXPIRY" default:"0s"`
	SweepInterval   time.Duration `envconfig:"SWEEP_INTERVAL" default:"1s"`

	// Empty ArbiterToken disables dispute resolution over HTTP.
	ArbiterToken string `envconfig:"ARBITER_TOKEN"`

	SessionLifetime time.Duration `envconfig:"SESSION_LIFETIME" default:"24h"`
	CORSOrigins     []string      `envconfig:"CORS_ORIGINS" default:"*"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if c.HoldTTL <= 0 {
		return fmt.Errorf("HOLD_TTL must be positive")
	}
	if c.ChallengeExpiry < 0 {
		return fmt.Errorf("CHALLENGE_EXPIRY must not be negative")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// SetupLogger configures the global zerolog logger.
func (c Config) SetupLogger() {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if c.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
