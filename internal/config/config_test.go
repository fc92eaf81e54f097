package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"modelguard/internal/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "modelguard.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAMLWithDefaults(t *testing.T) {
	path := writeConfig(t, `
model_name: prod-llm
detection:
  max_requests_per_window: 50
  rate_window: 30s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ModelName != "prod-llm" {
		t.Fatalf("model_name = %q", cfg.ModelName)
	}
	if cfg.Detection.MaxRequestsPerWindow != 50 || cfg.Detection.RateWindow != 30*time.Second {
		t.Fatalf("detection overrides not applied: %+v", cfg.Detection)
	}
	if cfg.Detection.FailedAttemptsThreshold != 5 {
		t.Fatalf("failed_attempts_threshold default = %d, want 5", cfg.Detection.FailedAttemptsThreshold)
	}
	if cfg.Detection.SuspiciousPatternThreshold != 0.8 {
		t.Fatalf("pattern threshold default = %f, want 0.8", cfg.Detection.SuspiciousPatternThreshold)
	}
	if cfg.Alerting.Cooldown != 300*time.Second {
		t.Fatalf("cooldown default = %v, want 300s", cfg.Alerting.Cooldown)
	}
	if cfg.Detection.IdentityRetention != 10*cfg.Detection.FailureWindow {
		t.Fatalf("identity retention = %v, want 10x the larger window", cfg.Detection.IdentityRetention)
	}
	if len(cfg.Rules) != 4 {
		t.Fatalf("default rules = %d, want 4 builtin", len(cfg.Rules))
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, `{"model_name": "prod-llm", "log_level": "debug"}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ModelName != "prod-llm" || cfg.LogLevel != "debug" {
		t.Fatalf("json config not applied: %+v", cfg)
	}
}

func TestLoadRejectsEmpty(t *testing.T) {
	path := writeConfig(t, "   \n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for empty config")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "bad aggregation",
			mutate: func(c *Config) { c.Detection.Aggregation = "median" },
			want:   "aggregation",
		},
		{
			name:   "bad regex rule",
			mutate: func(c *Config) { c.Rules = []RuleConfig{{Name: "bad", Type: "regex", Pattern: "(", Weight: 0.5}} },
			want:   "bad",
		},
		{
			name:   "weight out of range",
			mutate: func(c *Config) { c.Rules = []RuleConfig{{Name: "w", Type: "substring", Pattern: "x", Weight: 1.5}} },
			want:   "weight",
		},
		{
			name:   "unknown matcher type",
			mutate: func(c *Config) { c.Rules = []RuleConfig{{Name: "m", Type: "bloom", Weight: 0.5}} },
			want:   "matcher",
		},
		{
			name:   "unknown severity",
			mutate: func(c *Config) { c.Severity.Double = "catastrophic" },
			want:   "severity",
		},
		{
			name:   "severity tiers out of order",
			mutate: func(c *Config) { c.Severity.Double = "low" },
			want:   "must not rank below",
		},
		{
			name:   "triple below double",
			mutate: func(c *Config) { c.Severity.Triple = "medium" },
			want:   "triple",
		},
		{
			name:   "unknown notifier",
			mutate: func(c *Config) { c.Alerting.Notifier.Type = "pager" },
			want:   "notifier",
		},
		{
			name:   "webhook without url",
			mutate: func(c *Config) { c.Alerting.Notifier.Type = "webhook" },
			want:   "webhook_url",
		},
		{
			name: "kafka incomplete",
			mutate: func(c *Config) {
				c.Ingest.Kafka.Enabled = true
				c.Ingest.Kafka.Brokers = []string{"localhost:9092"}
			},
			want: "kafka",
		},
		{
			name:   "pattern threshold out of range",
			mutate: func(c *Config) { c.Detection.SuspiciousPatternThreshold = 1.5 },
			want:   "suspicious_pattern_threshold",
		},
		{
			name:   "unknown storage driver",
			mutate: func(c *Config) { c.Storage.Enabled = true; c.Storage.Driver = "mongodb" },
			want:   "storage.driver",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateDefaultsPass(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
}

func TestAlertFloor(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.AlertFloor() != model.SeverityMedium {
		t.Fatalf("default floor = %s, want medium", cfg.AlertFloor())
	}
	cfg.Alerting.SeverityFloor = "critical"
	if cfg.AlertFloor() != model.SeverityCritical {
		t.Fatalf("floor = %s, want critical", cfg.AlertFloor())
	}
}

func TestManagerReload(t *testing.T) {
	path := writeConfig(t, "model_name: first\n")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if m.Get().ModelName != "first" {
		t.Fatalf("model_name = %q", m.Get().ModelName)
	}
	if err := os.WriteFile(path, []byte("model_name: second\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if _, err := m.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if m.Get().ModelName != "second" {
		t.Fatalf("model_name after reload = %q", m.Get().ModelName)
	}
}

func TestManagerReloadKeepsOldOnError(t *testing.T) {
	path := writeConfig(t, "model_name: first\n")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := os.WriteFile(path, []byte("detection:\n  aggregation: median\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if _, err := m.Reload(); err == nil {
		t.Fatal("expected reload error for invalid config")
	}
	if m.Get().ModelName != "first" {
		t.Fatalf("config replaced despite failed reload: %q", m.Get().ModelName)
	}
}
