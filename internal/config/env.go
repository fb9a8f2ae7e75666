// Package config defines environment configuration structs and loaders.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type AppConfig struct {
	Feed        FeedEnvConfig
	Snapshot    SnapshotEnvConfig
	Server      ServerEnvConfig
	Simulation  SimulationEnvConfig
	Environment string `env:"ENVIRONMENT, default=prod"`
}

// LoadConfig reads the whole application configuration from the environment.
func LoadConfig(ctx context.Context) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	return cfg, nil
}

// FeedEnvConfig configures access to the marathon match results feed.
type FeedEnvConfig struct {
	BaseURL      string        `env:"FEED_BASE_URL, default=http://www.topcoder.com"`
	Timeout      time.Duration `env:"FEED_TIMEOUT, default=30s"`
	RetryMax     int           `env:"FEED_RETRY_MAX, default=4"`
	RetryWaitMin time.Duration `env:"FEED_RETRY_WAIT_MIN, default=500ms"`
	RetryWaitMax time.Duration `env:"FEED_RETRY_WAIT_MAX, default=10s"`
	RateLimit    float64       `env:"FEED_RATE_LIMIT, default=5"` // requests per second
	RateBurst    int           `env:"FEED_RATE_BURST, default=2"`
}

// SnapshotEnvConfig configures the on-disk snapshot store.
type SnapshotEnvConfig struct {
	Dir       string        `env:"SNAPSHOT_DIR, default=.mmstats"`
	MemoryTTL time.Duration `env:"SNAPSHOT_MEMORY_TTL, default=10m"`
	Disabled  bool          `env:"SNAPSHOT_DISABLED, default=false"`
}

// ServerEnvConfig configures the HTTP service.
type ServerEnvConfig struct {
	Address       string        `env:"SERVER_ADDRESS, default=127.0.0.1:8080"`
	BodyLimit     int           `env:"SERVER_BODY_LIMIT, default=8388608"`
	ReadTimeout   time.Duration `env:"SERVER_READ_TIMEOUT, default=30s"`
	EstimateLimit time.Duration `env:"SERVER_ESTIMATE_TIMEOUT, default=2m"`
}

// SimulationEnvConfig holds defaults applied when a request leaves them unset.
type SimulationEnvConfig struct {
	Simulations    int    `env:"SIM_SIMULATIONS, default=1000"`
	MaxSimulations int    `env:"SIM_MAX_SIMULATIONS, default=1000000"`
	Workers        int    `env:"SIM_WORKERS, default=0"`
	Policy         string `env:"SIM_POLICY, default=custom-squared-ratio"`
}

