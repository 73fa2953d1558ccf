// Package config loads agent configuration in layers: built-in defaults,
// then an optional YAML file, then DOCSYNC_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete agent configuration.
type Config struct {
	Document  DocumentConfig  `yaml:"document"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Durable   DurableConfig   `yaml:"durable"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Draft     DraftConfig     `yaml:"draft"`
	LogLevel  string          `yaml:"log_level"`
}

// DocumentConfig identifies the document this agent session syncs.
type DocumentConfig struct {
	ID        string `yaml:"id"`
	SectionID string `yaml:"section_id"`
}

// RealtimeConfig configures the realtime transport.
type RealtimeConfig struct {
	// URL selects the transport by scheme: ws(s):// for websocket,
	// nats:// for NATS.
	URL string `yaml:"url"`
	// Token is sent as a bearer credential on websocket dials.
	Token string `yaml:"token"`
}

// DurableConfig configures the durable section store.
type DurableConfig struct {
	// DSN selects the backend: memory://, file://, postgres://, http(s)://.
	DSN string `yaml:"dsn"`
	// Persist gates snapshot writes; reading is always allowed.
	Persist bool `yaml:"persist"`
}

// ReconcileConfig tunes the periodic snapshot loop.
type ReconcileConfig struct {
	Interval    time.Duration `yaml:"interval"`
	JitterRatio float64       `yaml:"jitter_ratio"`
}

// ReconnectConfig tunes the realtime reconnect schedule.
type ReconnectConfig struct {
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
}

// DraftConfig configures the local draft buffer.
type DraftConfig struct {
	// Dir holds per-section draft files. Empty disables the buffer.
	Dir string `yaml:"dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Durable: DurableConfig{
			DSN:     "memory://",
			Persist: true,
		},
		Reconcile: ReconcileConfig{
			Interval: 30 * time.Second,
		},
		Reconnect: ReconnectConfig{
			BaseDelay: 30 * time.Second,
			MaxDelay:  300 * time.Second,
		},
		LogLevel: "info",
	}
}

// Load builds the layered configuration. path may be empty to skip the file
// layer.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays DOCSYNC_* environment variables. Unset variables leave
// the current value alone.
func (c *Config) applyEnv(getenv func(string) string) {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	setString("DOCSYNC_DOCUMENT_ID", &c.Document.ID)
	setString("DOCSYNC_SECTION_ID", &c.Document.SectionID)
	setString("DOCSYNC_REALTIME_URL", &c.Realtime.URL)
	setString("DOCSYNC_REALTIME_TOKEN", &c.Realtime.Token)
	setString("DOCSYNC_DURABLE_DSN", &c.Durable.DSN)
	setString("DOCSYNC_DRAFT_DIR", &c.Draft.Dir)
	setString("DOCSYNC_LOG_LEVEL", &c.LogLevel)
	setDuration("DOCSYNC_RECONCILE_INTERVAL", &c.Reconcile.Interval)
	setDuration("DOCSYNC_RECONNECT_BASE", &c.Reconnect.BaseDelay)
	setDuration("DOCSYNC_RECONNECT_MAX", &c.Reconnect.MaxDelay)
	if v := strings.TrimSpace(getenv("DOCSYNC_PERSIST")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Durable.Persist = b
		}
	}
	if v := strings.TrimSpace(getenv("DOCSYNC_RECONCILE_JITTER")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Reconcile.JitterRatio = f
		}
	}
}

// Validate checks that the configuration can run a session.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Document.ID) == "" {
		return fmt.Errorf("document.id is required")
	}
	if strings.TrimSpace(c.Document.SectionID) == "" {
		return fmt.Errorf("document.section_id is required")
	}
	if strings.TrimSpace(c.Durable.DSN) == "" {
		return fmt.Errorf("durable.dsn is required")
	}
	if c.Reconcile.Interval <= 0 {
		return fmt.Errorf("reconcile.interval must be positive")
	}
	if c.Reconnect.BaseDelay <= 0 || c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		return fmt.Errorf("reconnect delays must satisfy 0 < base_delay <= max_delay")
	}
	if c.Reconcile.JitterRatio < 0 || c.Reconcile.JitterRatio > 1 {
		return fmt.Errorf("reconcile.jitter_ratio must be between 0 and 1")
	}
	switch level := strings.ToLower(c.LogLevel); level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}
	return nil
}
