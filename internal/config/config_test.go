package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidatesOnceIdentified(t *testing.T) {
	cfg := Default()
	cfg.Document.ID = "doc_1"
	cfg.Document.SectionID = "sec_1"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate with IDs set: %v", err)
	}
	if cfg.Reconcile.Interval != 30*time.Second {
		t.Fatalf("unexpected default interval %s", cfg.Reconcile.Interval)
	}
	if cfg.Reconnect.BaseDelay != 30*time.Second || cfg.Reconnect.MaxDelay != 300*time.Second {
		t.Fatalf("unexpected default reconnect delays %s/%s", cfg.Reconnect.BaseDelay, cfg.Reconnect.MaxDelay)
	}
}

func TestLoadLayersFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	body := `
document:
  id: doc_1
  section_id: sec_1
durable:
  dsn: postgres://localhost/docsync
reconcile:
  interval: 45s
log_level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Durable.DSN != "postgres://localhost/docsync" {
		t.Fatalf("file layer not applied: %q", cfg.Durable.DSN)
	}
	if cfg.Reconcile.Interval != 45*time.Second {
		t.Fatalf("file interval not applied: %s", cfg.Reconcile.Interval)
	}
	if cfg.Reconnect.BaseDelay != 30*time.Second {
		t.Fatalf("unset file fields must keep defaults, got %s", cfg.Reconnect.BaseDelay)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	env := map[string]string{
		"DOCSYNC_DURABLE_DSN":        "memory://",
		"DOCSYNC_RECONNECT_BASE":     "10s",
		"DOCSYNC_PERSIST":            "false",
		"DOCSYNC_RECONCILE_JITTER":   "0.1",
		"DOCSYNC_RECONNECT_MAX":      "",
		"DOCSYNC_RECONCILE_INTERVAL": "bogus",
	}
	cfg := Default()
	cfg.Document.ID = "doc_1"
	cfg.Document.SectionID = "sec_1"
	cfg.Durable.DSN = "postgres://localhost/docsync"
	cfg.applyEnv(func(key string) string { return env[key] })

	if cfg.Durable.DSN != "memory://" {
		t.Fatalf("env DSN not applied: %q", cfg.Durable.DSN)
	}
	if cfg.Reconnect.BaseDelay != 10*time.Second {
		t.Fatalf("env base delay not applied: %s", cfg.Reconnect.BaseDelay)
	}
	if cfg.Durable.Persist {
		t.Fatalf("env persist flag not applied")
	}
	if cfg.Reconcile.JitterRatio != 0.1 {
		t.Fatalf("env jitter not applied: %v", cfg.Reconcile.JitterRatio)
	}
	if cfg.Reconnect.MaxDelay != 300*time.Second {
		t.Fatalf("empty env var must keep previous value, got %s", cfg.Reconnect.MaxDelay)
	}
	if cfg.Reconcile.Interval != 30*time.Second {
		t.Fatalf("unparseable env duration must keep previous value, got %s", cfg.Reconcile.Interval)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing document id", func(c *Config) { c.Document.ID = "" }},
		{"missing section id", func(c *Config) { c.Document.SectionID = "" }},
		{"missing dsn", func(c *Config) { c.Durable.DSN = "" }},
		{"zero interval", func(c *Config) { c.Reconcile.Interval = 0 }},
		{"max below base", func(c *Config) { c.Reconnect.MaxDelay = time.Second }},
		{"jitter above one", func(c *Config) { c.Reconcile.JitterRatio = 1.5 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Document.ID = "doc_1"
			cfg.Document.SectionID = "sec_1"
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
