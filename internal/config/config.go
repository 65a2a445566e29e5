package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"SHELF_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"SHELF_DB_MAX_CONNS" default:"8"`

	// Optional YAML file overriding the embedded curation rules.
	RulesFile string `envconfig:"SHELF_RULES_FILE" default:""`

	SimilarityThreshold float64 `envconfig:"SHELF_SIMILARITY_THRESHOLD" default:"0.85"`
	GroupingMode        string  `envconfig:"SHELF_GROUPING_MODE" default:"greedy"`
	MultiValuePolicy    string  `envconfig:"SHELF_MULTI_VALUE_POLICY" default:"first"`
	DedupWorkers        int     `envconfig:"SHELF_DEDUP_WORKERS" default:"1"`
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
		return fmt.Errorf("SHELF_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("SHELF_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("SHELF_DB_MIN_CONNS (%d) cannot exceed SHELF_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("SHELF_SIMILARITY_THRESHOLD must be in (0, 1]")
	}
	switch strings.ToLower(strings.TrimSpace(c.GroupingMode)) {
	case "greedy", "transitive":
	default:
		return fmt.Errorf("SHELF_GROUPING_MODE must be greedy or transitive, got %q", c.GroupingMode)
	}
	switch strings.ToLower(strings.TrimSpace(c.MultiValuePolicy)) {
	case "first", "reject":
	default:
		return fmt.Errorf("SHELF_MULTI_VALUE_POLICY must be first or reject, got %q", c.MultiValuePolicy)
	}
	if c.DedupWorkers < 1 {
		return fmt.Errorf("SHELF_DEDUP_WORKERS must be >= 1")
	}
	return nil
}
