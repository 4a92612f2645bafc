package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
logging:
  development: false
  level: debug
auth:
  enabled: true
  api_key: secret
model_api:
  port: 9000
  model_path: artifacts/model.json
  request_timeout_seconds: 3
stats_api:
  port: 9001
  dataset_path: data/sample.csv
dashboard:
  port: 9002
  stats_api_url: http://stats:9001
storage:
  backend: gcs
  bucket: fraud-bucket
tracking:
  backend: postgres
  dsn: postgres://localhost/runs
  max_conns: 8
audit:
  max_batch_events: 50
  max_batch_wait_ms: 250
  predictions_table: audit_predictions
pubsub:
  project_id: demo
  topic_name: fraud-alerts
rate_limit:
  enabled: true
  rps: 5
  burst: 10
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ModelAPI.Port != 9000 || cfg.ModelAPI.ModelPath != "artifacts/model.json" {
		t.Fatalf("expected model api overrides, got %+v", cfg.ModelAPI)
	}
	if got := cfg.ModelAPI.RequestTimeout(); got != 3*time.Second {
		t.Fatalf("expected request timeout 3s, got %v", got)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Storage.Backend != "gcs" || cfg.Storage.Bucket != "fraud-bucket" {
		t.Fatalf("expected gcs storage, got %+v", cfg.Storage)
	}
	if cfg.Tracking.Backend != "postgres" || cfg.Tracking.MaxConns != 8 {
		t.Fatalf("expected postgres tracking, got %+v", cfg.Tracking)
	}
	if cfg.Audit.PredictionsTable != "audit_predictions" || cfg.Audit.MaxBatchWait() != 250*time.Millisecond {
		t.Fatalf("expected audit overrides, got %+v", cfg.Audit)
	}
	if cfg.Audit.BufferSize != 4096 {
		t.Fatalf("expected default buffer size, got %d", cfg.Audit.BufferSize)
	}
	if cfg.Dashboard.ModelAPIURL != "http://127.0.0.1:5000" || cfg.Dashboard.StatsAPIURL != "http://stats:9001" {
		t.Fatalf("expected dashboard urls, got %+v", cfg.Dashboard)
	}
	if cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging overrides, got %+v", cfg.Logging)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ModelAPI.Port != 5000 || cfg.StatsAPI.Port != 5001 || cfg.Dashboard.Port != 8050 {
		t.Fatalf("unexpected default ports: %d %d %d", cfg.ModelAPI.Port, cfg.StatsAPI.Port, cfg.Dashboard.Port)
	}
	if cfg.Tracking.Backend != "sqlite" || cfg.Tracking.SQLitePath != "./runs.db" {
		t.Fatalf("unexpected tracking defaults: %+v", cfg.Tracking)
	}
	if cfg.Storage.Backend != "local" {
		t.Fatalf("unexpected storage backend %q", cfg.Storage.Backend)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		ModelAPI:  ModelAPIConfig{Port: 5000, RequestTimeoutSeconds: 10},
		StatsAPI:  StatsAPIConfig{Port: 5001},
		Dashboard: DashboardConfig{Port: 8050, ClientTimeoutSeconds: 5},
		Storage:   StorageConfig{Backend: "local"},
		Tracking:  TrackingConfig{Backend: "memory"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid model port", func(c *Config) { c.ModelAPI.Port = 0 }, "model_api.port"},
		{"invalid dashboard port", func(c *Config) { c.Dashboard.Port = 70000 }, "dashboard.port"},
		{"invalid timeout", func(c *Config) { c.ModelAPI.RequestTimeoutSeconds = 0 }, "model_api.request_timeout_seconds"},
		{"invalid client timeout", func(c *Config) { c.Dashboard.ClientTimeoutSeconds = 0 }, "dashboard.client_timeout_seconds"},
		{"auth missing api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"gcs without bucket", func(c *Config) { c.Storage.Backend = "gcs" }, "storage.bucket"},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"sqlite without path", func(c *Config) { c.Tracking.Backend = "sqlite" }, "tracking.sqlite_path"},
		{"postgres without dsn", func(c *Config) { c.Tracking.Backend = "postgres" }, "tracking.dsn"},
		{"unknown tracking", func(c *Config) { c.Tracking.Backend = "mlflow" }, "tracking.backend"},
		{"audit without buffer", func(c *Config) { c.Audit.Enabled = true }, "audit.buffer_size"},
		{"rate limit without rps", func(c *Config) { c.RateLimit.Enabled = true }, "rate_limit.rps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
