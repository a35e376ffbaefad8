// Package config handles configuration loading for botster.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and duration parsing.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  pairing_secret: "${BOTSTER_PAIRING_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	hub:
//	  poll_interval: "25ms"
//	queue:
//	  dedupe_window: "10m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Remote attach listener:
//
//	server:
//	  addr: "127.0.0.1:8422"      # empty disables remote access
//	  device_name: "workstation"
//
// Scheduling loop:
//
//	hub:
//	  max_sessions: 10
//	  scrollback_size: 262144
//	  poll_interval: "50ms"
//
// Repository and workspaces:
//
//	repo:
//	  path: "/home/dev/widgets"
//	  name: "octo/widgets"
//	  branch_prefix: "issue"
//	  worktree_dir: "~/.botster/worktrees"
//
// Agent process:
//
//	agent:
//	  command: "agentsh"
//	  args: ["--interactive"]
//
// Mention queue:
//
//	queue:
//	  enabled: true
//	  url: "nats://localhost:4222"
//	  subject: "mentions.widgets"
//	  dedupe_window: "10m"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
