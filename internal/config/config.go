// Package config handles environment variable loading for ports, database strings, etc.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the daemon.
type Config struct {
	// Database connection string
	DatabaseURL string

	// HTTP server port for the control API
	HTTPPort int

	// Remote document source
	SourceBaseURL      string
	SourceTimeout      time.Duration
	SourceCertInterval time.Duration

	// Engine
	MaxConcurrentRuns int
	BatchRetries      int
	RetryBackoff      time.Duration
	PurgeGraceWait    time.Duration

	// Stall monitor
	StallTimeout  time.Duration
	StallInterval time.Duration
	MaxAttempts   int
	InfiniteRetry bool
	StallDelay    time.Duration

	// Scheduler: interval between automatic incremental runs; zero
	// disables scheduling.
	ScheduleInterval time.Duration

	// Artifact render service; empty disables artifact rendering.
	RenderServiceURL string

	// OTLP trace collector endpoint; empty disables tracing export.
	OTELEndpoint string

	Debug bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:           8460,
		SourceTimeout:      60 * time.Second,
		SourceCertInterval: 2 * time.Second,
		MaxConcurrentRuns:  8,
		BatchRetries:       3,
		RetryBackoff:       5 * time.Second,
		PurgeGraceWait:     2 * time.Second,
		StallTimeout:       10 * time.Minute,
		StallInterval:      time.Minute,
		MaxAttempts:        3,
		StallDelay:         30 * time.Second,
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg.SourceBaseURL = os.Getenv("SOURCE_BASE_URL")
	if cfg.SourceBaseURL == "" {
		return nil, fmt.Errorf("SOURCE_BASE_URL is required")
	}

	if err := intVar(&cfg.HTTPPort, "PORT"); err != nil {
		return nil, err
	}
	if err := intVar(&cfg.MaxConcurrentRuns, "MAX_CONCURRENT_RUNS"); err != nil {
		return nil, err
	}
	if err := intVar(&cfg.BatchRetries, "BATCH_RETRIES"); err != nil {
		return nil, err
	}
	if err := intVar(&cfg.MaxAttempts, "STALL_MAX_ATTEMPTS"); err != nil {
		return nil, err
	}

	if err := durationVar(&cfg.SourceTimeout, "SOURCE_TIMEOUT"); err != nil {
		return nil, err
	}
	if err := durationVar(&cfg.SourceCertInterval, "SOURCE_CERT_INTERVAL"); err != nil {
		return nil, err
	}
	if err := durationVar(&cfg.RetryBackoff, "RETRY_BACKOFF"); err != nil {
		return nil, err
	}
	if err := durationVar(&cfg.PurgeGraceWait, "PURGE_GRACE_WAIT"); err != nil {
		return nil, err
	}
	if err := durationVar(&cfg.StallTimeout, "STALL_TIMEOUT"); err != nil {
		return nil, err
	}
	if err := durationVar(&cfg.StallInterval, "STALL_INTERVAL"); err != nil {
		return nil, err
	}
	if err := durationVar(&cfg.StallDelay, "STALL_DELAY"); err != nil {
		return nil, err
	}
	if err := durationVar(&cfg.ScheduleInterval, "SCHEDULE_INTERVAL"); err != nil {
		return nil, err
	}

	cfg.InfiniteRetry = os.Getenv("INFINITE_RETRY") == "true"
	cfg.Debug = os.Getenv("DEBUG") == "true"
	cfg.RenderServiceURL = os.Getenv("RENDER_SERVICE_URL")
	cfg.OTELEndpoint = os.Getenv("OTEL_ENDPOINT")

	return cfg, nil
}

func intVar(dst *int, name string) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = v
	return nil
}

func durationVar(dst *time.Duration, name string) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = v
	return nil
}
