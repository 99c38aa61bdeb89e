package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LUTC_"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if LUTC_CONFIG is set
//  3. env (prefix LUTC_), after loading an optional .env file
func Load(_ context.Context) (*Config, error) {
	// A missing .env is the common case.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: .env: %v", ErrLoadConfig, err)
	}

	base := New()
	k := koanf.New(".")

	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// LUTC_RENDER_MAX_SIDE -> render_max_side (flat keys).
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.resolvePaths()
	return &cfg, nil
}

// Validate checks invariants that defaults cannot guarantee once a file or
// the environment overrode them.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DataDir == "" && (c.DatabasePath == "" || c.BlobDir == "" || c.RenderCacheDir == ""):
		return fmt.Errorf("%w: data_dir must not be empty", ErrInvalidConfig)
	case c.RenderMaxSide < 0:
		return fmt.Errorf("%w: render_max_side must be >= 0", ErrInvalidConfig)
	case c.CanonicalSize < 16:
		return fmt.Errorf("%w: canonical_size must be >= 16", ErrInvalidConfig)
	case c.KMeansRestarts < 1 || c.KMeansMaxIterations < 1:
		return fmt.Errorf("%w: kmeans_restarts and kmeans_max_iterations must be positive", ErrInvalidConfig)
	case c.JobQueueSize < 1:
		return fmt.Errorf("%w: job_queue_size must be positive", ErrInvalidConfig)
	}
	return nil
}
