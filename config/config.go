package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	ThreatRelay ThreatRelayConfig `yaml:"threatrelay"`
}

// ThreatRelayConfig is the project configuration.
type ThreatRelayConfig struct {
	Integration IntegrationConfig `yaml:"integration"`
	Store       StoreConfig       `yaml:"store"`
	Intake      IntakeConfig      `yaml:"intake"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Agents      AgentsConfig      `yaml:"agents"`
	Intel       IntelConfig       `yaml:"intel"`
	Rules       RulesConfig       `yaml:"rules"`
	Alerts      AlertsConfig      `yaml:"alerts"`
	Journal     JournalConfig     `yaml:"journal"`
	API         APIConfig         `yaml:"api"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// IntegrationConfig controls escalation behavior.
type IntegrationConfig struct {
	Mode            string `yaml:"mode"` // passive|active
	AutoCorrelate   bool   `yaml:"auto_correlate"`
	ThreatThreshold int    `yaml:"threat_threshold"`
}

// StoreConfig controls Redis persistence.
type StoreConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// IntakeConfig controls the external-detector finding intake.
type IntakeConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Key          string        `yaml:"key"`
	Workers      int           `yaml:"workers"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// SchedulerConfig controls the schedule poller.
type SchedulerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxParallel  int           `yaml:"max_parallel"`
	PassTimeout  time.Duration `yaml:"pass_timeout"`
}

// AgentsConfig controls the agent execution client.
type AgentsConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// IntelConfig controls the threat-intelligence feed.
type IntelConfig struct {
	URL      string            `yaml:"url"`
	Timeout  time.Duration     `yaml:"timeout"`
	CacheTTL time.Duration     `yaml:"cache_ttl"`
	Headers  map[string]string `yaml:"headers"`
}

// RulesConfig controls finding rule tagging.
type RulesConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AlertsConfig controls alert sinks. Both sinks are optional; with neither
// configured, dispatch is a no-op.
type AlertsConfig struct {
	WebhookURL string            `yaml:"webhook_url"`
	Headers    map[string]string `yaml:"headers"`
	Timeout    time.Duration     `yaml:"timeout"`
	Email      EmailConfig       `yaml:"email"`
}

// EmailConfig controls the SMTP alert sink.
type EmailConfig struct {
	To       string `yaml:"to"`
	From     string `yaml:"from"`
	SMTPAddr string `yaml:"smtp_addr"`
}

// JournalConfig controls the local threat journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// APIConfig controls the operator HTTP API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file, then applies recognized
// environment overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)

	if err := cfg.ThreatRelay.Integration.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *IntegrationConfig) validate() error {
	switch c.Mode {
	case "", "passive", "active":
	default:
		return fmt.Errorf("invalid integration mode: %q (want passive or active)", c.Mode)
	}
	if c.ThreatThreshold < 0 || c.ThreatThreshold > 5 {
		return fmt.Errorf("threat_threshold must be within 1..5, got %d", c.ThreatThreshold)
	}
	return nil
}

// applyEnv overlays environment variables onto the file config. The env
// surface matches the legacy deployment variables.
func applyEnv(cfg *Config) {
	if v := envFirst("INTEGRATION_MODE", "LEGION_INTEGRATION_MODE"); v != "" {
		cfg.ThreatRelay.Integration.Mode = strings.ToLower(v)
	}
	if v := envFirst("AUTO_CORRELATE", "LEGION_AUTO_CORRELATE"); v != "" {
		cfg.ThreatRelay.Integration.AutoCorrelate = v == "true" || v == "1"
	}
	if v := envFirst("THREAT_THRESHOLD", "LEGION_THREAT_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ThreatRelay.Integration.ThreatThreshold = n
		}
	}
	if v := envFirst("WEBHOOK_URL", "SECURITY_WEBHOOK_URL"); v != "" {
		cfg.ThreatRelay.Alerts.WebhookURL = v
	}
	if v := envFirst("ALERT_EMAIL", "SECURITY_ALERT_EMAIL"); v != "" {
		cfg.ThreatRelay.Alerts.Email.To = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.ThreatRelay.Store.Addr = v
	}
}

func envFirst(names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}
