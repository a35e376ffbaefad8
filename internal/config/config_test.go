// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "127.0.0.1:8422"
  device_name: "workstation"

hub:
  max_sessions: 4
  scrollback_size: 131072
  poll_interval: "25ms"

repo:
  path: "/home/dev/widgets"
  name: "octo/widgets"
  branch_prefix: "issue"
  worktree_dir: "/home/dev/.botster/worktrees"

agent:
  command: "agentsh"
  args: ["--interactive"]

queue:
  enabled: true
  url: "nats://localhost:4222"
  subject: "mentions.widgets"
  dedupe_window: "10m"

auth:
  pairing_secret: "test-secret"

ledger:
  path: "./ledger.db"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:8422" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, "127.0.0.1:8422")
	}
	if cfg.Server.DeviceName != "workstation" {
		t.Errorf("Server.DeviceName = %q, want %q", cfg.Server.DeviceName, "workstation")
	}

	if cfg.Hub.MaxSessions != 4 {
		t.Errorf("Hub.MaxSessions = %d, want 4", cfg.Hub.MaxSessions)
	}
	if cfg.Hub.PollInterval != 25*time.Millisecond {
		t.Errorf("Hub.PollInterval = %v, want 25ms", cfg.Hub.PollInterval)
	}

	if cfg.Repo.Name != "octo/widgets" {
		t.Errorf("Repo.Name = %q, want %q", cfg.Repo.Name, "octo/widgets")
	}
	if cfg.Repo.BranchPrefix != "issue" {
		t.Errorf("Repo.BranchPrefix = %q, want %q", cfg.Repo.BranchPrefix, "issue")
	}

	if cfg.Agent.Command != "agentsh" {
		t.Errorf("Agent.Command = %q, want %q", cfg.Agent.Command, "agentsh")
	}
	if len(cfg.Agent.Args) != 1 || cfg.Agent.Args[0] != "--interactive" {
		t.Errorf("Agent.Args = %v, want [--interactive]", cfg.Agent.Args)
	}

	if !cfg.Queue.Enabled {
		t.Error("Queue.Enabled = false, want true")
	}
	if cfg.Queue.DedupeWindow != 10*time.Minute {
		t.Errorf("Queue.DedupeWindow = %v, want 10m", cfg.Queue.DedupeWindow)
	}

	if cfg.Ledger.Path != "./ledger.db" {
		t.Errorf("Ledger.Path = %q, want %q", cfg.Ledger.Path, "./ledger.db")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("BOTSTER_TEST_SECRET", "expanded-secret")

	path := writeConfig(t, `
repo:
  path: "/repo"
  name: "octo/widgets"

agent:
  command: "agentsh"

server:
  addr: "127.0.0.1:8422"

auth:
  pairing_secret: "${BOTSTER_TEST_SECRET}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.PairingSecret != "expanded-secret" {
		t.Errorf("Auth.PairingSecret = %q, want %q", cfg.Auth.PairingSecret, "expanded-secret")
	}
}

func TestLoad_UnsetEnvVarBecomesEmpty(t *testing.T) {
	path := writeConfig(t, `
repo:
  path: "/repo"
  name: "${BOTSTER_DEFINITELY_UNSET_VAR}"

agent:
  command: "agentsh"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() should fail: unset env var left repo.name empty")
	}
	if !strings.Contains(err.Error(), "repo.name") {
		t.Errorf("error = %v, want mention of repo.name", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Load() should fail for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "repo: [not: valid: yaml")
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() should fail for invalid YAML")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
repo:
  path: "/repo"
  name: "octo/widgets"

agent:
  command: "agentsh"

hub:
  poll_interval: "not-a-duration"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() should fail for invalid duration")
	}
	if !strings.Contains(err.Error(), "poll_interval") {
		t.Errorf("error = %v, want mention of poll_interval", err)
	}
}

func TestValidate_RequiredFields(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "missing repo path",
			cfg:  Config{Repo: RepoConfig{Name: "n"}, Agent: AgentConfig{Command: "c"}},
			want: "repo.path",
		},
		{
			name: "missing repo name",
			cfg:  Config{Repo: RepoConfig{Path: "/r"}, Agent: AgentConfig{Command: "c"}},
			want: "repo.name",
		},
		{
			name: "missing agent command",
			cfg:  Config{Repo: RepoConfig{Path: "/r", Name: "n"}},
			want: "agent.command",
		},
		{
			name: "server without pairing secret",
			cfg: Config{
				Repo:   RepoConfig{Path: "/r", Name: "n"},
				Agent:  AgentConfig{Command: "c"},
				Server: ServerConfig{Addr: ":8422"},
			},
			want: "auth.pairing_secret",
		},
		{
			name: "queue without url",
			cfg: Config{
				Repo:  RepoConfig{Path: "/r", Name: "n"},
				Agent: AgentConfig{Command: "c"},
				Queue: QueueConfig{Enabled: true, Subject: "s"},
			},
			want: "queue.url",
		},
		{
			name: "queue without subject",
			cfg: Config{
				Repo:  RepoConfig{Path: "/r", Name: "n"},
				Agent: AgentConfig{Command: "c"},
				Queue: QueueConfig{Enabled: true, URL: "nats://localhost:4222"},
			},
			want: "queue.subject",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err == nil {
				t.Fatal("Validate() should have returned an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestValidate_MinimalConfig(t *testing.T) {
	cfg := Config{
		Repo:  RepoConfig{Path: "/r", Name: "octo/widgets"},
		Agent: AgentConfig{Command: "agentsh"},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}
