package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	AI       AIConfig       `yaml:"ai"`
	Gate     GateConfig     `yaml:"gate"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	EventLog EventLogConfig `yaml:"event_log"`
	LogLevel string         `yaml:"log_level"`
}

// AIConfig recognises the keys spec.md §6 names for the intent proposer.
type AIConfig struct {
	Mode            string        `yaml:"ai_mode"`  // ollama | dummy | auto
	Model           string        `yaml:"ai_model"`
	OllamaURL       string        `yaml:"ollama_url"`
	Timeout         time.Duration `yaml:"timeout"`
	ResponsesPath   string        `yaml:"responses_path"` // variety-pool data file; "" uses the built-in fallback pool
	MinSuggestDelay time.Duration `yaml:"min_suggest_delay"`
}

// GateConfig selects the decision-gate cooldown/spam profile. Production
// is the default per this module's Open Question decision (see SPEC_FULL.md);
// Testing mirrors the original's reduced v0.2 thresholds.
type GateConfig struct {
	Profile string `yaml:"profile"` // production | testing
}

type MonitorConfig struct {
	PollingInterval time.Duration `yaml:"polling_interval"`
	WatchPath       string        `yaml:"watch_path"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AuthToken      string   `yaml:"auth_token"`
	MaxConnections int      `yaml:"max_connections"`
}

// EventLogConfig controls the telemetry sink. An absent/empty Path means
// the default location (DefaultEventLogPath); an empty Path does not
// disable the sink. RetentionDays governs the periodic CleanupOlderThan sweep;
// zero or negative disables cleanup and retains events indefinitely.
type EventLogConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.Monitor.WatchPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Monitor.WatchPath = home
		}
	}

	return cfg, nil
}

// LoadOrDefault loads config from the given path, or returns default config if path doesn't exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return defaultConfig(), nil
	}
	return Load(path)
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			Host:           "127.0.0.1",
			MaxConnections: 1000,
		},
		AI: AIConfig{
			Mode:            "auto",
			Model:           "llama3.2",
			OllamaURL:       "http://localhost:11434",
			Timeout:         5 * time.Second,
			MinSuggestDelay: 900 * time.Second,
		},
		Gate: GateConfig{
			Profile: "production",
		},
		Monitor: MonitorConfig{
			PollingInterval: 3 * time.Second,
		},
		EventLog: EventLogConfig{
			Path:          DefaultEventLogPath(),
			RetentionDays: 30,
		},
		LogLevel: "info",
	}
}

func defaultStateDir() string {
	if value := os.Getenv("XDG_STATE_HOME"); value != "" {
		return value
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".local", "state")
}

// DefaultEventLogPath returns the default XDG-compliant path for the event
// log's SQLite database.
func DefaultEventLogPath() string {
	return filepath.Join(defaultStateDir(), "orbit", "orbit.db")
}

// Diff compares two configs and returns human-readable descriptions of
// what changed. It compares the AI mode/model/URL/timeout, the gate
// profile, the monitor polling interval and watch path, the event-log path
// and retention, and the log level; server settings and the responses path
// are not compared. Matches the teacher's Diff shape (SIGHUP-driven reload
// reporting).
func Diff(old, new *Config) []string {
	var changes []string

	if old.AI.Mode != new.AI.Mode {
		changes = append(changes, fmt.Sprintf("ai.ai_mode: %s → %s", old.AI.Mode, new.AI.Mode))
	}
	if old.AI.Model != new.AI.Model {
		changes = append(changes, fmt.Sprintf("ai.ai_model: %s → %s", old.AI.Model, new.AI.Model))
	}
	if old.AI.OllamaURL != new.AI.OllamaURL {
		changes = append(changes, fmt.Sprintf("ai.ollama_url: %s → %s", old.AI.OllamaURL, new.AI.OllamaURL))
	}
	if old.AI.Timeout != new.AI.Timeout {
		changes = append(changes, fmt.Sprintf("ai.timeout: %s → %s", old.AI.Timeout, new.AI.Timeout))
	}
	if old.Gate.Profile != new.Gate.Profile {
		changes = append(changes, fmt.Sprintf("gate.profile: %s → %s", old.Gate.Profile, new.Gate.Profile))
	}
	if old.Monitor.PollingInterval != new.Monitor.PollingInterval {
		changes = append(changes, fmt.Sprintf("monitor.polling_interval: %s → %s", old.Monitor.PollingInterval, new.Monitor.PollingInterval))
	}
	if old.Monitor.WatchPath != new.Monitor.WatchPath {
		changes = append(changes, fmt.Sprintf("monitor.watch_path: %s → %s", old.Monitor.WatchPath, new.Monitor.WatchPath))
	}
	if old.EventLog.Path != new.EventLog.Path {
		changes = append(changes, fmt.Sprintf("event_log.path: %s → %s", old.EventLog.Path, new.EventLog.Path))
	}
	if old.EventLog.RetentionDays != new.EventLog.RetentionDays {
		changes = append(changes, fmt.Sprintf("event_log.retention_days: %d → %d", old.EventLog.RetentionDays, new.EventLog.RetentionDays))
	}
	if old.LogLevel != new.LogLevel {
		changes = append(changes, fmt.Sprintf("log_level: %s → %s", old.LogLevel, new.LogLevel))
	}

	return changes
}

func defaultConfigDir() string {
	if value := os.Getenv("XDG_CONFIG_HOME"); value != "" {
		return value
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config")
}

// DefaultConfigPath returns the default XDG-compliant config file path.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "orbit", "config.yaml")
}
