package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"PULSE_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"PULSE_DB_MAX_CONNS" default:"8"`

	// Timezone drives the local clock times of the daily delivery windows.
	Timezone string `envconfig:"PULSE_TIMEZONE" default:"America/New_York"`

	DedupLookbackHours   int     `envconfig:"PULSE_DEDUP_LOOKBACK_HOURS" default:"48"`
	HistoryLookbackHours int     `envconfig:"PULSE_HISTORY_LOOKBACK_HOURS" default:"24"`
	TitleSimilarity      float64 `envconfig:"PULSE_TITLE_SIMILARITY" default:"0.75"`

	// Bcrypt hash of the intake API key. Empty disables intake auth (local only).
	IntakeAPIKeyHash string `envconfig:"PULSE_INTAKE_API_KEY_HASH" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("PULSE_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("PULSE_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("PULSE_DB_MIN_CONNS (%d) cannot exceed PULSE_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if _, err := time.LoadLocation(strings.TrimSpace(c.Timezone)); err != nil {
		return fmt.Errorf("PULSE_TIMEZONE is invalid: %w", err)
	}
	if c.DedupLookbackHours < 1 {
		return fmt.Errorf("PULSE_DEDUP_LOOKBACK_HOURS must be >= 1")
	}
	if c.HistoryLookbackHours < 1 {
		return fmt.Errorf("PULSE_HISTORY_LOOKBACK_HOURS must be >= 1")
	}
	if c.TitleSimilarity <= 0 || c.TitleSimilarity > 1 {
		return fmt.Errorf("PULSE_TITLE_SIMILARITY must be in (0, 1]")
	}
	return nil
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(c.Timezone))
	if err != nil {
		return time.UTC
	}
	return loc
}
