package config

import (
	"testing"
	"time"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SOURCE_BASE_URL", "https://dfe.example.gov")

	_, err := Load()
	if err == nil {
		t.Error("expected error when DATABASE_URL is missing")
	}
}

func TestLoad_RequiresSourceBaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("SOURCE_BASE_URL", "")

	_, err := Load()
	if err == nil {
		t.Error("expected error when SOURCE_BASE_URL is missing")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("SOURCE_BASE_URL", "https://dfe.example.gov")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Check defaults
	if cfg.HTTPPort != 8460 {
		t.Errorf("expected HTTPPort 8460, got %d", cfg.HTTPPort)
	}
	if cfg.MaxConcurrentRuns != 8 {
		t.Errorf("expected MaxConcurrentRuns 8, got %d", cfg.MaxConcurrentRuns)
	}
	if cfg.BatchRetries != 3 {
		t.Errorf("expected BatchRetries 3, got %d", cfg.BatchRetries)
	}
	if cfg.SourceTimeout != 60*time.Second {
		t.Errorf("expected SourceTimeout 60s, got %v", cfg.SourceTimeout)
	}
	if cfg.SourceCertInterval != 2*time.Second {
		t.Errorf("expected SourceCertInterval 2s, got %v", cfg.SourceCertInterval)
	}
	if cfg.StallTimeout != 10*time.Minute {
		t.Errorf("expected StallTimeout 10m, got %v", cfg.StallTimeout)
	}
	if cfg.StallInterval != time.Minute {
		t.Errorf("expected StallInterval 1m, got %v", cfg.StallInterval)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("expected MaxAttempts 3, got %d", cfg.MaxAttempts)
	}
	if cfg.InfiniteRetry {
		t.Error("expected InfiniteRetry to default to false")
	}
	if cfg.ScheduleInterval != 0 {
		t.Errorf("expected scheduling disabled by default, got %v", cfg.ScheduleInterval)
	}
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://custom/db")
	t.Setenv("SOURCE_BASE_URL", "https://dfe.custom.gov")
	t.Setenv("PORT", "9999")
	t.Setenv("MAX_CONCURRENT_RUNS", "2")
	t.Setenv("STALL_TIMEOUT", "5m")
	t.Setenv("SCHEDULE_INTERVAL", "30m")
	t.Setenv("INFINITE_RETRY", "true")
	t.Setenv("RENDER_SERVICE_URL", "http://render:9000")
	t.Setenv("OTEL_ENDPOINT", "otel-collector:4317")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DatabaseURL != "postgres://custom/db" {
		t.Errorf("expected DatabaseURL from env, got %s", cfg.DatabaseURL)
	}
	if cfg.HTTPPort != 9999 {
		t.Errorf("expected HTTPPort 9999, got %d", cfg.HTTPPort)
	}
	if cfg.MaxConcurrentRuns != 2 {
		t.Errorf("expected MaxConcurrentRuns 2, got %d", cfg.MaxConcurrentRuns)
	}
	if cfg.StallTimeout != 5*time.Minute {
		t.Errorf("expected StallTimeout 5m, got %v", cfg.StallTimeout)
	}
	if cfg.ScheduleInterval != 30*time.Minute {
		t.Errorf("expected ScheduleInterval 30m, got %v", cfg.ScheduleInterval)
	}
	if !cfg.InfiniteRetry {
		t.Error("expected InfiniteRetry true")
	}
	if cfg.RenderServiceURL != "http://render:9000" {
		t.Errorf("expected RenderServiceURL from env, got %s", cfg.RenderServiceURL)
	}
	if cfg.OTELEndpoint != "otel-collector:4317" {
		t.Errorf("expected OTELEndpoint otel-collector:4317, got %s", cfg.OTELEndpoint)
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("SOURCE_BASE_URL", "https://dfe.example.gov")
	t.Setenv("PORT", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Error("expected error for invalid PORT")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("SOURCE_BASE_URL", "https://dfe.example.gov")
	t.Setenv("STALL_TIMEOUT", "ten minutes")

	_, err := Load()
	if err == nil {
		t.Error("expected error for invalid STALL_TIMEOUT")
	}
}
