package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/pario-ai/fairlens/pkg/biaserr"
	"github.com/pario-ai/fairlens/pkg/cache"
	"github.com/pario-ai/fairlens/pkg/models"
)

// Analyzer modes.
const (
	ModeRemote = "remote"
	ModeLocal  = "local"
)

// Log formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config holds all fairlens configuration.
type Config struct {
	Listen   string             `yaml:"listen"`
	Audit    models.AuditConfig `yaml:"audit"`
	Analyzer AnalyzerConfig     `yaml:"analyzer"`
	Engine   Engine             `yaml:"engine"`
	Cache    cache.Config       `yaml:"cache"`
	Alerts   AlertsConfig       `yaml:"alerts"`
	Log      LogConfig          `yaml:"log"`
}

// AnalyzerConfig selects the bias analysis service.
// Mode is "remote" (default) or "local". A zero RequestsPerSecond leaves the
// remote client unthrottled.
type AnalyzerConfig struct {
	URL               string        `yaml:"url"`
	Timeout           time.Duration `yaml:"timeout"`
	APIKey            string        `yaml:"api_key"`
	Mode              string        `yaml:"mode"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// Engine holds the scoring policy of the detection engine.
type Engine struct {
	Thresholds    models.Thresholds   `yaml:"thresholds"`
	Weights       models.LayerWeights `yaml:"weights"`
	AlertMinLevel models.AlertLevel   `yaml:"alert_min_level"`
}

// Validate checks thresholds, weights and the alert level.
func (e Engine) Validate() error {
	if err := e.Thresholds.Validate(); err != nil {
		return err
	}
	if err := e.Weights.Validate(); err != nil {
		return err
	}
	if e.AlertMinLevel.Rank() < 0 {
		return biaserr.Configuration("engine.alert_min_level", "unknown alert level %q", e.AlertMinLevel)
	}
	return nil
}

// AlertsConfig controls alert delivery. An empty WebhookURL logs alerts only.
type AlertsConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultEngine returns the default scoring policy.
func DefaultEngine() Engine {
	return Engine{
		Thresholds: models.Thresholds{Warning: 0.3, High: 0.6, Critical: 0.8},
		Weights: models.LayerWeights{
			Preprocessing: 0.2,
			ModelLevel:    0.3,
			Interactive:   0.2,
			Evaluation:    0.3,
		},
		AlertMinLevel: models.AlertHigh,
	}
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Audit: models.AuditConfig{
			Enabled:        true,
			DBPath:         "fairlens-audit.db",
			RetentionDays:  90,
			HashSubjectIDs: true,
		},
		Analyzer: AnalyzerConfig{
			URL:     "http://localhost:5000",
			Timeout: 30 * time.Second,
			Mode:    ModeRemote,
		},
		Engine: DefaultEngine(),
		Cache:  cache.DefaultConfig(),
		Alerts: AlertsConfig{
			Timeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: FormatJSON,
		},
	}
}

// Load reads a YAML config file, expands environment variables and validates
// the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting as a *biaserr.ConfigurationError.
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}

	switch c.Analyzer.Mode {
	case ModeLocal:
	case ModeRemote, "":
		u, err := url.Parse(c.Analyzer.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return biaserr.Configuration("analyzer.url", "must be an absolute URL, got %q", c.Analyzer.URL)
		}
	default:
		return biaserr.Configuration("analyzer.mode", "must be %q or %q, got %q", ModeRemote, ModeLocal, c.Analyzer.Mode)
	}
	if c.Analyzer.Timeout < 0 {
		return biaserr.Configuration("analyzer.timeout", "must not be negative, got %s", c.Analyzer.Timeout)
	}
	if c.Analyzer.RequestsPerSecond < 0 || c.Analyzer.Burst < 0 {
		return biaserr.Configuration("analyzer.requests_per_second", "rate limit must not be negative, got %v/%d", c.Analyzer.RequestsPerSecond, c.Analyzer.Burst)
	}

	if c.Audit.Enabled && c.Audit.DBPath == "" {
		return biaserr.Configuration("audit.db_path", "required when audit is enabled")
	}
	if c.Audit.RetentionDays < 0 {
		return biaserr.Configuration("audit.retention_days", "must not be negative, got %d", c.Audit.RetentionDays)
	}

	if c.Alerts.WebhookURL != "" {
		if u, err := url.Parse(c.Alerts.WebhookURL); err != nil || u.Scheme == "" || u.Host == "" {
			return biaserr.Configuration("alerts.webhook_url", "must be an absolute URL, got %q", c.Alerts.WebhookURL)
		}
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return biaserr.Configuration("log.level", "%v", err)
	}
	switch c.Log.Format {
	case FormatJSON, FormatConsole:
	default:
		return biaserr.Configuration("log.format", "must be %q or %q, got %q", FormatJSON, FormatConsole, c.Log.Format)
	}
	return nil
}
