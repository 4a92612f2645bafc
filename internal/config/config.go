// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Auth      AuthConfig      `mapstructure:"auth"`
	ModelAPI  ModelAPIConfig  `mapstructure:"model_api"`
	StatsAPI  StatsAPIConfig  `mapstructure:"stats_api"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	Audit     AuditConfig     `mapstructure:"audit"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Explain   ExplainConfig   `mapstructure:"explain"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ModelAPIConfig controls the prediction service.
type ModelAPIConfig struct {
	Port                  int    `mapstructure:"port"`
	ModelPath             string `mapstructure:"model_path"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// RequestTimeout returns the per-request handler budget.
func (c ModelAPIConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// StatsAPIConfig controls the statistics service.
type StatsAPIConfig struct {
	Port        int    `mapstructure:"port"`
	DatasetPath string `mapstructure:"dataset_path"`
}

// DashboardConfig controls the dashboard and its upstream clients.
type DashboardConfig struct {
	Port                 int    `mapstructure:"port"`
	ModelAPIURL          string `mapstructure:"model_api_url"`
	StatsAPIURL          string `mapstructure:"stats_api_url"`
	ClientTimeoutSeconds int    `mapstructure:"client_timeout_seconds"`
}

// ClientTimeout returns the upstream HTTP client timeout.
func (c DashboardConfig) ClientTimeout() time.Duration {
	return time.Duration(c.ClientTimeoutSeconds) * time.Second
}

// StorageConfig selects the blob backend for datasets, models and reports.
type StorageConfig struct {
	Backend string             `mapstructure:"backend"`
	Bucket  string             `mapstructure:"bucket"`
	Prefix  string             `mapstructure:"prefix"`
	Local   LocalStorageConfig `mapstructure:"local"`
}

// LocalStorageConfig roots the filesystem backend.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// TrackingConfig selects the experiment run store.
type TrackingConfig struct {
	Backend                string `mapstructure:"backend"`
	SQLitePath             string `mapstructure:"sqlite_path"`
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// AuditConfig controls the prediction event hub and its sinks.
type AuditConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	BufferSize         int    `mapstructure:"buffer_size"`
	MaxBatchEvents     int    `mapstructure:"max_batch_events"`
	MaxBatchWaitMs     int    `mapstructure:"max_batch_wait_ms"`
	SinkTimeoutSeconds int    `mapstructure:"sink_timeout_seconds"`
	DSN                string `mapstructure:"dsn"`
	PredictionsTable   string `mapstructure:"predictions_table"`
	AlertsEnabled      bool   `mapstructure:"alerts_enabled"`
}

// PubSubConfig holds metadata for fraud alert publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// RateLimitConfig throttles prediction requests per client.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// TelemetryConfig toggles OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// ExplainConfig controls report rendering.
type ExplainConfig struct {
	OutputPrefix         string `mapstructure:"output_prefix"`
	ChromePath           string `mapstructure:"chrome_path"`
	RenderTimeoutSeconds int    `mapstructure:"render_timeout_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FRAUD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("model_api.port", 5000)
	v.SetDefault("model_api.model_path", "models/fraud_model.json")
	v.SetDefault("model_api.request_timeout_seconds", 10)
	v.SetDefault("stats_api.port", 5001)
	v.SetDefault("stats_api.dataset_path", "data/fraud_data.csv")
	v.SetDefault("dashboard.port", 8050)
	v.SetDefault("dashboard.model_api_url", "http://127.0.0.1:5000")
	v.SetDefault("dashboard.stats_api_url", "http://127.0.0.1:5001")
	v.SetDefault("dashboard.client_timeout_seconds", 5)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local.base_dir", ".")
	v.SetDefault("tracking.backend", "sqlite")
	v.SetDefault("tracking.sqlite_path", "./runs.db")
	v.SetDefault("tracking.max_conns", 4)
	v.SetDefault("tracking.min_conns", 0)
	v.SetDefault("tracking.max_conn_lifetime_minutes", 30)
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.buffer_size", 4096)
	v.SetDefault("audit.max_batch_events", 1000)
	v.SetDefault("audit.max_batch_wait_ms", 500)
	v.SetDefault("audit.sink_timeout_seconds", 10)
	v.SetDefault("audit.predictions_table", "predictions")
	v.SetDefault("audit.alerts_enabled", false)
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.rps", 20)
	v.SetDefault("rate_limit.burst", 40)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "fraud-detection")
	v.SetDefault("explain.output_prefix", "reports")
	v.SetDefault("explain.render_timeout_seconds", 30)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	for name, port := range map[string]int{
		"model_api.port": c.ModelAPI.Port,
		"stats_api.port": c.StatsAPI.Port,
		"dashboard.port": c.Dashboard.Port,
	} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%s must be between 1 and 65535", name)
		}
	}
	if c.ModelAPI.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("model_api.request_timeout_seconds must be > 0")
	}
	if c.Dashboard.ClientTimeoutSeconds <= 0 {
		return fmt.Errorf("dashboard.client_timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Backend {
	case "local", "memory":
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of local, gcs, memory")
	}
	switch c.Tracking.Backend {
	case "memory":
	case "sqlite":
		if c.Tracking.SQLitePath == "" {
			return fmt.Errorf("tracking.sqlite_path must be set for the sqlite backend")
		}
	case "postgres":
		if c.Tracking.DSN == "" {
			return fmt.Errorf("tracking.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("tracking.backend must be one of memory, sqlite, postgres")
	}
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 || c.Audit.MaxBatchEvents <= 0 {
			return fmt.Errorf("audit.buffer_size and audit.max_batch_events must be > 0")
		}
		if c.Audit.AlertsEnabled && c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
			return fmt.Errorf("pubsub.project_id must be set when a topic is configured")
		}
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate_limit.rps and rate_limit.burst must be > 0 when enabled")
	}
	return nil
}

// SinkTimeout returns the per-sink audit flush budget.
func (c AuditConfig) SinkTimeout() time.Duration {
	return time.Duration(c.SinkTimeoutSeconds) * time.Second
}

// MaxBatchWait returns the audit flush interval.
func (c AuditConfig) MaxBatchWait() time.Duration {
	return time.Duration(c.MaxBatchWaitMs) * time.Millisecond
}

// MaxConnLifetime returns the tracking pool connection lifetime.
func (c TrackingConfig) MaxConnLifetime() time.Duration {
	return time.Duration(c.MaxConnLifetimeMinutes) * time.Minute
}
