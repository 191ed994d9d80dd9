package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL          string   `env:"DATABASE_URL"`
	InputDir             string   `env:"INPUT_DIR" envDefault:"."`
	OutputDir            string   `env:"OUTPUT_DIR" envDefault:"harmonized_output"`
	CrosswalkPath        string   `env:"CROSSWALK_PATH"`
	BatchSize            int      `env:"BATCH_SIZE" envDefault:"10"`
	DBBatchSize          int      `env:"DB_BATCH_SIZE" envDefault:"80000"`
	LowCoverageThreshold float64  `env:"LOW_COVERAGE_THRESHOLD" envDefault:"50"`
	ReleaseExtensions    []string `env:"RELEASE_EXTENSIONS" envDefault:".csv,.txt,.xlsx" envSeparator:","`
	LogLevel             string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat            string   `env:"LOG_FORMAT" envDefault:"text"`
	APIPort              string   `env:"API_PORT" envDefault:"8080"`
}

// LoadEnv loads the env files that exist and returns how many were found.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}

	if len(existing) == 0 {
		return 0, nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return 0, fmt.Errorf("error loading env files: %w", err)
	}

	return len(existing), nil
}

func New() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("invalid value for BATCH_SIZE: expected a positive integer, got '%d'", c.BatchSize)
	}
	if c.DBBatchSize <= 0 {
		return fmt.Errorf("invalid value for DB_BATCH_SIZE: expected a positive integer, got '%d'", c.DBBatchSize)
	}
	if c.LowCoverageThreshold < 0 || c.LowCoverageThreshold > 100 {
		return fmt.Errorf("invalid value for LOW_COVERAGE_THRESHOLD: expected a percentage, got '%g'", c.LowCoverageThreshold)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid value for LOG_FORMAT: expected text or json, got '%s'", c.LogFormat)
	}

	extensions := make([]string, 0, len(c.ReleaseExtensions))
	for _, ext := range c.ReleaseExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extensions = append(extensions, ext)
	}
	if len(extensions) == 0 {
		return fmt.Errorf("invalid value for RELEASE_EXTENSIONS: expected at least one extension")
	}
	c.ReleaseExtensions = extensions

	return nil
}

// HasDatabase reports whether rows and diagnostics should also go to Postgres.
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}
