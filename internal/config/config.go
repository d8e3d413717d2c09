package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the gateway's environment-driven configuration.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8008"`
	Upstream   string `env:"UPSTREAM_URL" envDefault:"http://localhost:3000"`

	// CacheVersion names the offline cache generations; bump it on deploy
	// to invalidate every previous generation at activation.
	CacheVersion string `env:"CACHE_VERSION" envDefault:"1"`

	DatabasePath string `env:"DATABASE_PATH" envDefault:"fitness-gateway.db"`

	SweepInterval  time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"60s"`
	SyncInterval   time.Duration `env:"SYNC_INTERVAL" envDefault:"30s"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`

	// GenerateTimeout applies to AI-generation endpoints.
	GenerateTimeout time.Duration `env:"GENERATE_TIMEOUT" envDefault:"60s"`
}

// Load parses configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
