// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
		RequestTimeout  time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"60s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Optimization struct {
		// DefaultOptimizer is used by studies that name none.
		DefaultOptimizer string `env:"OPT_DEFAULT_OPTIMIZER" envDefault:"rs"`
		DefaultDesign    string `env:"OPT_DEFAULT_DESIGN" envDefault:"random"`
		// InitialPoints of zero selects dims+1.
		InitialPoints int `env:"OPT_INITIAL_POINTS" envDefault:"0"`
		// TotalLimit of zero leaves studies without a budget.
		TotalLimit     int `env:"OPT_TOTAL_LIMIT" envDefault:"0"`
		MaxSuggestions int `env:"OPT_MAX_SUGGESTIONS" envDefault:"100"`
		MaxStudies     int `env:"OPT_MAX_STUDIES" envDefault:"1000"`
		// SpaceFile preloads a study named "default" from a declaration file.
		SpaceFile string `env:"OPT_SPACE_FILE"`
		Seed      int64  `env:"OPT_SEED" envDefault:"0"`
	}
	Surrogate struct {
		Kernel         string  `env:"GP_KERNEL" envDefault:"matern52"`
		Acquisition    string  `env:"GP_ACQUISITION" envDefault:"ei"`
		LengthScale    float64 `env:"GP_LENGTH_SCALE" envDefault:"0.3"`
		SignalVariance float64 `env:"GP_SIGNAL_VARIANCE" envDefault:"1"`
		NoiseVariance  float64 `env:"GP_NOISE_VARIANCE" envDefault:"1e-6"`
		Xi             float64 `env:"GP_XI" envDefault:"0.01"`
		Candidates     int     `env:"GP_CANDIDATES" envDefault:"256"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Logging.Level == "" {
		if cfg.Environment == "development" {
			cfg.Logging.Level = "debug"
		} else {
			cfg.Logging.Level = "info"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges that struct tags cannot express.
func (c *Config) Validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be in [1, 65535], got %d", c.HTTP.Port)
	}
	if c.Optimization.MaxSuggestions < 1 {
		return fmt.Errorf("OPT_MAX_SUGGESTIONS must be positive, got %d", c.Optimization.MaxSuggestions)
	}
	if c.Optimization.MaxStudies < 1 {
		return fmt.Errorf("OPT_MAX_STUDIES must be positive, got %d", c.Optimization.MaxStudies)
	}
	if c.Optimization.TotalLimit < 0 || c.Optimization.InitialPoints < 0 {
		return fmt.Errorf("OPT_TOTAL_LIMIT and OPT_INITIAL_POINTS must not be negative")
	}
	return nil
}
