package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"modelguard/internal/model"
)

type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	ModelName string          `json:"model_name" yaml:"model_name"`
	Ingest    IngestConfig    `json:"ingest" yaml:"ingest"`
	Detection DetectionConfig `json:"detection" yaml:"detection"`
	Rules     []RuleConfig    `json:"rules" yaml:"rules"`
	Severity  SeverityConfig  `json:"severity" yaml:"severity"`
	Alerting  AlertingConfig  `json:"alerting" yaml:"alerting"`
	Ledger    LedgerConfig    `json:"ledger" yaml:"ledger"`
	Alerts    AlertsConfig    `json:"alerts" yaml:"alerts"`
	API       APIConfig       `json:"api" yaml:"api"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
}

type IngestConfig struct {
	ChannelBuffer int            `json:"channel_buffer" yaml:"channel_buffer"`
	REST          RESTConfig     `json:"rest" yaml:"rest"`
	Kafka         KafkaConfig    `json:"kafka" yaml:"kafka"`
	Redis         RedisConfig    `json:"redis" yaml:"redis"`
	FileTail      FileTailConfig `json:"file_tail" yaml:"file_tail"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Key      string `json:"key" yaml:"key"`
}

type FileTailConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	Files      []string `json:"files" yaml:"files"`
	StartAtEnd bool     `json:"start_at_end" yaml:"start_at_end"`
}

type DetectionConfig struct {
	MaxRequestsPerWindow       int           `json:"max_requests_per_window" yaml:"max_requests_per_window"`
	RateWindow                 time.Duration `json:"rate_window" yaml:"rate_window"`
	SuspiciousPatternThreshold float64       `json:"suspicious_pattern_threshold" yaml:"suspicious_pattern_threshold"`
	FailedAttemptsThreshold    int           `json:"failed_attempts_threshold" yaml:"failed_attempts_threshold"`
	FailureWindow              time.Duration `json:"failure_window" yaml:"failure_window"`
	Aggregation                string        `json:"aggregation" yaml:"aggregation"`
	StrongScore                float64       `json:"strong_score" yaml:"strong_score"`
	StrongRateMultiplier       float64       `json:"strong_rate_multiplier" yaml:"strong_rate_multiplier"`
	StrongFailureMultiplier    float64       `json:"strong_failure_multiplier" yaml:"strong_failure_multiplier"`
	IdentityRetention          time.Duration `json:"identity_retention" yaml:"identity_retention"`
	SweepInterval              time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
}

type RuleConfig struct {
	Name      string  `json:"name" yaml:"name"`
	Type      string  `json:"type" yaml:"type"`
	Pattern   string  `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Threshold float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Ratio     float64 `json:"ratio,omitempty" yaml:"ratio,omitempty"`
	Weight    float64 `json:"weight" yaml:"weight"`
}

// SeverityConfig maps fired-signal combinations to tiers. The defaults
// implement: one weak signal low, one strong signal medium, two signals
// high, any pair including the pattern signal critical, three critical.
type SeverityConfig struct {
	SingleWeak   string `json:"single_weak" yaml:"single_weak"`
	SingleStrong string `json:"single_strong" yaml:"single_strong"`
	Double       string `json:"double" yaml:"double"`
	PatternCombo string `json:"pattern_combo" yaml:"pattern_combo"`
	Triple       string `json:"triple" yaml:"triple"`
}

type AlertingConfig struct {
	SeverityFloor   string         `json:"severity_floor" yaml:"severity_floor"`
	Cooldown        time.Duration  `json:"cooldown" yaml:"cooldown"`
	QueueSize       int            `json:"queue_size" yaml:"queue_size"`
	DeliveryTimeout time.Duration  `json:"delivery_timeout" yaml:"delivery_timeout"`
	Notifier        NotifierConfig `json:"notifier" yaml:"notifier"`
}

type NotifierConfig struct {
	Type       string     `json:"type" yaml:"type"`
	WebhookURL string     `json:"webhook_url,omitempty" yaml:"webhook_url,omitempty"`
	SMTP       SMTPConfig `json:"smtp,omitempty" yaml:"smtp,omitempty"`
}

type SMTPConfig struct {
	Addr       string   `json:"addr" yaml:"addr"`
	Sender     string   `json:"sender" yaml:"sender"`
	Recipients []string `json:"recipients" yaml:"recipients"`
	Username   string   `json:"username,omitempty" yaml:"username,omitempty"`
	Password   string   `json:"password,omitempty" yaml:"password,omitempty"`
}

type LedgerConfig struct {
	Retention  time.Duration `json:"retention" yaml:"retention"`
	StoreLimit int           `json:"store_limit" yaml:"store_limit"`
	TopN       int           `json:"top_n" yaml:"top_n"`
}

type AlertsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		ModelName: "model",
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			Kafka:         KafkaConfig{Enabled: false},
			Redis:         RedisConfig{Enabled: false, Addr: "127.0.0.1:6379", Key: "modelguard:events"},
		},
		Detection: DetectionConfig{
			MaxRequestsPerWindow:       100,
			RateWindow:                 60 * time.Second,
			SuspiciousPatternThreshold: 0.8,
			FailedAttemptsThreshold:    5,
			FailureWindow:              300 * time.Second,
			Aggregation:                "max",
			StrongScore:                0.9,
			StrongRateMultiplier:       2.0,
			StrongFailureMultiplier:    2.0,
			SweepInterval:              60 * time.Second,
		},
		Rules: []RuleConfig{
			{Name: "prompt_injection", Type: "regex", Pattern: `(?i)ignore (all )?previous instructions`, Weight: 0.9},
			{Name: "extreme_values", Type: "numeric_extreme", Threshold: 1e6, Weight: 0.85},
			{Name: "suspicious_sparsity", Type: "numeric_sparsity", Ratio: 0.01, Weight: 0.6},
			{Name: "adversarial_gradient", Type: "numeric_gradient", Threshold: 100, Weight: 0.85},
		},
		Severity: SeverityConfig{
			SingleWeak:   "low",
			SingleStrong: "medium",
			Double:       "high",
			PatternCombo: "critical",
			Triple:       "critical",
		},
		Alerting: AlertingConfig{
			SeverityFloor:   "medium",
			Cooldown:        300 * time.Second,
			QueueSize:       256,
			DeliveryTimeout: 5 * time.Second,
			Notifier:        NotifierConfig{Type: "log"},
		},
		Ledger:  LedgerConfig{Retention: 24 * time.Hour, StoreLimit: 10000, TopN: 5},
		Alerts:  AlertsConfig{StoreLimit: 1000},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:modelguard.db?_pragma=busy_timeout(5000)"},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.ModelName == "" {
		cfg.ModelName = def.ModelName
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = def.Ingest.ChannelBuffer
	}
	if cfg.Detection.MaxRequestsPerWindow <= 0 {
		cfg.Detection.MaxRequestsPerWindow = def.Detection.MaxRequestsPerWindow
	}
	if cfg.Detection.RateWindow <= 0 {
		cfg.Detection.RateWindow = def.Detection.RateWindow
	}
	if cfg.Detection.SuspiciousPatternThreshold <= 0 {
		cfg.Detection.SuspiciousPatternThreshold = def.Detection.SuspiciousPatternThreshold
	}
	if cfg.Detection.FailedAttemptsThreshold <= 0 {
		cfg.Detection.FailedAttemptsThreshold = def.Detection.FailedAttemptsThreshold
	}
	if cfg.Detection.FailureWindow <= 0 {
		cfg.Detection.FailureWindow = def.Detection.FailureWindow
	}
	if cfg.Detection.Aggregation == "" {
		cfg.Detection.Aggregation = def.Detection.Aggregation
	}
	if cfg.Detection.StrongScore <= 0 {
		cfg.Detection.StrongScore = def.Detection.StrongScore
	}
	if cfg.Detection.StrongRateMultiplier <= 0 {
		cfg.Detection.StrongRateMultiplier = def.Detection.StrongRateMultiplier
	}
	if cfg.Detection.StrongFailureMultiplier <= 0 {
		cfg.Detection.StrongFailureMultiplier = def.Detection.StrongFailureMultiplier
	}
	if cfg.Detection.IdentityRetention <= 0 {
		window := cfg.Detection.RateWindow
		if cfg.Detection.FailureWindow > window {
			window = cfg.Detection.FailureWindow
		}
		cfg.Detection.IdentityRetention = 10 * window
	}
	if cfg.Detection.SweepInterval <= 0 {
		cfg.Detection.SweepInterval = def.Detection.SweepInterval
	}
	if cfg.Severity.SingleWeak == "" {
		cfg.Severity.SingleWeak = def.Severity.SingleWeak
	}
	if cfg.Severity.SingleStrong == "" {
		cfg.Severity.SingleStrong = def.Severity.SingleStrong
	}
	if cfg.Severity.Double == "" {
		cfg.Severity.Double = def.Severity.Double
	}
	if cfg.Severity.PatternCombo == "" {
		cfg.Severity.PatternCombo = def.Severity.PatternCombo
	}
	if cfg.Severity.Triple == "" {
		cfg.Severity.Triple = def.Severity.Triple
	}
	if cfg.Alerting.SeverityFloor == "" {
		cfg.Alerting.SeverityFloor = def.Alerting.SeverityFloor
	}
	if cfg.Alerting.Cooldown <= 0 {
		cfg.Alerting.Cooldown = def.Alerting.Cooldown
	}
	if cfg.Alerting.QueueSize <= 0 {
		cfg.Alerting.QueueSize = def.Alerting.QueueSize
	}
	if cfg.Alerting.DeliveryTimeout <= 0 {
		cfg.Alerting.DeliveryTimeout = def.Alerting.DeliveryTimeout
	}
	if cfg.Alerting.Notifier.Type == "" {
		cfg.Alerting.Notifier.Type = def.Alerting.Notifier.Type
	}
	if cfg.Ledger.Retention <= 0 {
		cfg.Ledger.Retention = def.Ledger.Retention
	}
	if cfg.Ledger.StoreLimit <= 0 {
		cfg.Ledger.StoreLimit = def.Ledger.StoreLimit
	}
	if cfg.Ledger.TopN <= 0 {
		cfg.Ledger.TopN = def.Ledger.TopN
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = def.Alerts.StoreLimit
	}
	if cfg.Ingest.Redis.Enabled && cfg.Ingest.Redis.Key == "" {
		cfg.Ingest.Redis.Key = def.Ingest.Redis.Key
	}
}

var ruleNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Ingest.Redis.Enabled && cfg.Ingest.Redis.Addr == "" {
		return errors.New("ingest.redis.addr required when ingest.redis.enabled is true")
	}
	if cfg.Ingest.FileTail.Enabled && len(cfg.Ingest.FileTail.Files) == 0 {
		return errors.New("ingest.file_tail.files required when ingest.file_tail.enabled is true")
	}
	if cfg.Detection.SuspiciousPatternThreshold < 0 || cfg.Detection.SuspiciousPatternThreshold > 1 {
		return errors.New("detection.suspicious_pattern_threshold must be within [0,1]")
	}
	switch cfg.Detection.Aggregation {
	case "max", "sum", "mean":
	default:
		return fmt.Errorf("detection.aggregation must be max, sum or mean, got %q", cfg.Detection.Aggregation)
	}
	for i, rule := range cfg.Rules {
		if rule.Name == "" || !ruleNamePattern.MatchString(rule.Name) {
			return fmt.Errorf("rules[%d]: invalid rule name %q", i, rule.Name)
		}
		if rule.Weight < 0 || rule.Weight > 1 {
			return fmt.Errorf("rules[%d] %s: weight must be within [0,1]", i, rule.Name)
		}
		switch rule.Type {
		case "regex":
			if _, err := regexp.Compile(rule.Pattern); err != nil {
				return fmt.Errorf("rules[%d] %s: %w", i, rule.Name, err)
			}
		case "substring", "prefix":
			if rule.Pattern == "" {
				return fmt.Errorf("rules[%d] %s: pattern required", i, rule.Name)
			}
		case "numeric_extreme", "numeric_sparsity", "numeric_gradient":
		default:
			return fmt.Errorf("rules[%d] %s: unknown matcher type %q", i, rule.Name, rule.Type)
		}
	}
	if _, err := model.ParseSeverity(cfg.Severity.PatternCombo); err != nil {
		return fmt.Errorf("severity: %w", err)
	}
	// Tiers for growing fired-signal sets must not decrease, or the
	// classification stops being monotone.
	chain := []struct {
		key  string
		name string
	}{
		{"single_weak", cfg.Severity.SingleWeak},
		{"single_strong", cfg.Severity.SingleStrong},
		{"double", cfg.Severity.Double},
		{"triple", cfg.Severity.Triple},
	}
	prev := model.SeverityNone
	for i, tier := range chain {
		sev, err := model.ParseSeverity(tier.name)
		if err != nil {
			return fmt.Errorf("severity: %w", err)
		}
		if sev < prev {
			return fmt.Errorf("severity: %s (%s) must not rank below %s (%s)",
				tier.key, tier.name, chain[i-1].key, chain[i-1].name)
		}
		prev = sev
	}
	if _, err := model.ParseSeverity(cfg.Alerting.SeverityFloor); err != nil {
		return fmt.Errorf("alerting.severity_floor: %w", err)
	}
	switch cfg.Alerting.Notifier.Type {
	case "log", "webhook", "smtp":
	default:
		return fmt.Errorf("alerting.notifier.type must be log, webhook or smtp, got %q", cfg.Alerting.Notifier.Type)
	}
	if cfg.Alerting.Notifier.Type == "webhook" && cfg.Alerting.Notifier.WebhookURL == "" {
		return errors.New("alerting.notifier.webhook_url required for webhook notifier")
	}
	if cfg.Alerting.Notifier.Type == "smtp" {
		smtp := cfg.Alerting.Notifier.SMTP
		if smtp.Addr == "" || smtp.Sender == "" || len(smtp.Recipients) == 0 {
			return errors.New("alerting.notifier.smtp requires addr, sender, recipients")
		}
	}
	if cfg.Storage.Enabled {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "sqlite", "postgres", "postgresql":
		default:
			return fmt.Errorf("storage.driver must be sqlite or postgres, got %q", cfg.Storage.Driver)
		}
	}
	return nil
}

// AlertFloor returns the parsed alert severity floor. Validate has
// already rejected unknown names by the time this is called.
func (c *Config) AlertFloor() model.Severity {
	floor, err := model.ParseSeverity(c.Alerting.SeverityFloor)
	if err != nil {
		return model.SeverityMedium
	}
	return floor
}

type Manager struct {
	path string
	cfg  atomic.Value
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	return m, nil
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	return cfg, nil
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
