// ABOUTME: Configuration loading and parsing for botster
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete botster configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Hub     HubConfig     `yaml:"hub"`
	Repo    RepoConfig    `yaml:"repo"`
	Agent   AgentConfig   `yaml:"agent"`
	Queue   QueueConfig   `yaml:"queue"`
	Auth    AuthConfig    `yaml:"auth"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the remote-attach listener configuration.
type ServerConfig struct {
	// Addr is the HTTP listen address for remote viewer attach.
	// Empty disables remote access entirely.
	Addr string `yaml:"addr"`

	// DeviceName identifies this hub in the channel handshake.
	DeviceName string `yaml:"device_name"`
}

// HubConfig holds the scheduling loop tunables.
type HubConfig struct {
	MaxSessions    int `yaml:"max_sessions"`
	ScrollbackSize int `yaml:"scrollback_size"`

	PollInterval    time.Duration `yaml:"-"`
	PollIntervalRaw string        `yaml:"poll_interval"`
}

// RepoConfig identifies the repository agents work on.
type RepoConfig struct {
	// Path is the primary checkout workspaces branch from.
	Path string `yaml:"path"`

	// Name identifies the repository in session keys, e.g. "octo/widgets".
	Name string `yaml:"name"`

	// BranchPrefix prefixes issue-derived branch names.
	BranchPrefix string `yaml:"branch_prefix"`

	// WorktreeDir is where workspace checkouts are created.
	WorktreeDir string `yaml:"worktree_dir"`
}

// AgentConfig describes the process spawned in each workspace.
type AgentConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`

	// HelperCommand optionally runs a secondary long-running process
	// beside each agent, given an allocated localhost port via PORT.
	// Empty disables helpers.
	HelperCommand string   `yaml:"helper_command"`
	HelperArgs    []string `yaml:"helper_args"`
}

// QueueConfig holds the inbound mention queue configuration.
type QueueConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`

	// DedupeWindow bounds how long processed message ids are remembered.
	DedupeWindow    time.Duration `yaml:"-"`
	DedupeWindowRaw string        `yaml:"dedupe_window"`
}

// AuthConfig holds remote pairing configuration.
type AuthConfig struct {
	PairingSecret string `yaml:"pairing_secret"`
}

// LedgerConfig holds the session event ledger configuration.
type LedgerConfig struct {
	// Path is the SQLite database file. Empty disables the ledger.
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable
// values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required fields are present and consistent.
// Returns an error describing the first failure encountered.
func (c *Config) Validate() error {
	if c.Repo.Path == "" {
		return fmt.Errorf("repo.path is required")
	}
	if c.Repo.Name == "" {
		return fmt.Errorf("repo.name is required")
	}
	if c.Agent.Command == "" {
		return fmt.Errorf("agent.command is required")
	}

	if c.Server.Addr != "" && c.Auth.PairingSecret == "" {
		return fmt.Errorf("auth.pairing_secret is required when server.addr is set")
	}

	if c.Queue.Enabled {
		if c.Queue.URL == "" {
			return fmt.Errorf("queue.url is required when queue is enabled")
		}
		if c.Queue.Subject == "" {
			return fmt.Errorf("queue.subject is required when queue is enabled")
		}
	}

	if c.Hub.MaxSessions < 0 {
		return fmt.Errorf("hub.max_sessions must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Hub.PollIntervalRaw != "" {
		cfg.Hub.PollInterval, err = time.ParseDuration(cfg.Hub.PollIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing poll_interval %q: %w", cfg.Hub.PollIntervalRaw, err)
		}
	}

	if cfg.Queue.DedupeWindowRaw != "" {
		cfg.Queue.DedupeWindow, err = time.ParseDuration(cfg.Queue.DedupeWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe_window %q: %w", cfg.Queue.DedupeWindowRaw, err)
		}
	}

	return nil
}
