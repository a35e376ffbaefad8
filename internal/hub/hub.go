// ABOUTME: The hub: one scheduling loop that owns every registry mutation.
// ABOUTME: All inputs arrive as Actions; collaborators run off-loop.

package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tonksthebear/trybotster-sub005/internal/action"
	"github.com/Tonksthebear/trybotster-sub005/internal/agent"
	"github.com/Tonksthebear/trybotster-sub005/internal/client"
	"github.com/Tonksthebear/trybotster-sub005/internal/session"
	"github.com/Tonksthebear/trybotster-sub005/internal/workspace"
)

// Config carries the hub's tunables. Zero values fall back to the
// defaults below.
type Config struct {
	// Repo identifies the repository for session key derivation.
	Repo string

	// BranchPrefix prefixes issue-derived branch names.
	BranchPrefix string

	// Command and Args start the agent process inside each workspace.
	Command string
	Args    []string
	Env     []string

	// HelperCommand optionally starts a secondary long-running process
	// beside each agent, handed an allocated localhost port through the
	// PORT environment variable. Empty disables helpers.
	HelperCommand string
	HelperArgs    []string

	// MaxSessions caps concurrently running agents, in-flight spawns
	// included.
	MaxSessions int

	// PollInterval paces the output drain tick.
	PollInterval time.Duration

	// ScrollbackSize bounds each agent's retained output in bytes.
	ScrollbackSize int

	// Rows and Cols are the geometry applied to a fresh process before
	// any viewer reports dimensions.
	Rows uint16
	Cols uint16
}

const (
	DefaultMaxSessions  = 10
	DefaultPollInterval = 50 * time.Millisecond
	DefaultRows         = 24
	DefaultCols         = 80
)

func (c *Config) applyDefaults() {
	if c.MaxSessions <= 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ScrollbackSize <= 0 {
		c.ScrollbackSize = agent.DefaultScrollbackSize
	}
	if c.Rows == 0 {
		c.Rows = DefaultRows
	}
	if c.Cols == 0 {
		c.Cols = DefaultCols
	}
}

// Recorder persists session lifecycle events. Optional; a nil recorder
// disables the ledger.
type Recorder interface {
	Record(ctx context.Context, kind, agentKey, detail string) error
}

// envelope is one queued action with its issuing client and an optional
// synchronous result path.
type envelope struct {
	act      action.Action
	clientID string
	attach   *client.Client
	reply    chan error
}

// spawnResult is the completion a spawn goroutine posts back to the loop.
type spawnResult struct {
	key      string
	clientID string
	ag       *agent.Agent
	err      error
}

// Hub multiplexes a pool of agent sessions to attached viewers. One
// goroutine (Run) performs every registry mutation; the mutex exists so
// renderers can take read snapshots between loop iterations.
type Hub struct {
	cfg      Config
	logger   *slog.Logger
	factory  session.Factory
	wsman    workspace.Manager
	recorder Recorder

	mu      sync.RWMutex
	agents  *agent.Registry
	clients *client.Registry
	pending map[string]struct{}
	exited  map[string]struct{}
	polling bool

	actions   chan envelope
	spawnDone chan spawnResult
	cancel    context.CancelFunc
	done      chan struct{}
}

// New builds a hub. localSink receives everything addressed to the local
// UI; pass nil when running headless.
func New(cfg Config, factory session.Factory, wsman workspace.Manager, localSink client.Sink, logger *slog.Logger) *Hub {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if localSink == nil {
		localSink = client.NopSink{}
	}

	h := &Hub{
		cfg:       cfg,
		logger:    logger.With("component", "hub"),
		factory:   factory,
		wsman:     wsman,
		agents:    agent.NewRegistry(),
		clients:   client.NewRegistry(),
		pending:   make(map[string]struct{}),
		exited:    make(map[string]struct{}),
		polling:   true,
		actions:   make(chan envelope, 64),
		spawnDone: make(chan spawnResult),
		done:      make(chan struct{}),
	}

	// The local UI is always attached and never removed.
	_ = h.clients.Register(&client.Client{ID: client.LocalID, Sink: localSink})
	return h
}

// SetRecorder wires the optional session-event ledger. Call before Run.
func (h *Hub) SetRecorder(r Recorder) {
	h.recorder = r
}

// Run drives the scheduling loop until the context is cancelled or a
// Quit action arrives. It owns all registry mutation.
func (h *Hub) Run(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	defer h.cancel()
	defer close(h.done)

	ticker := time.NewTicker(h.cfg.PollInterval)
	defer ticker.Stop()

	h.logger.Info("hub started",
		"max_sessions", h.cfg.MaxSessions,
		"poll_interval", h.cfg.PollInterval)

	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return
		case env := <-h.actions:
			err := h.dispatch(ctx, env)
			if env.reply != nil {
				env.reply <- err
			}
		case res := <-h.spawnDone:
			h.finishSpawn(ctx, res)
		case <-ticker.C:
			h.mu.RLock()
			polling := h.polling
			h.mu.RUnlock()
			if polling {
				h.pumpOutput()
				h.reapExited(ctx)
			}
		}
	}
}

// Done is closed when the loop has exited.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Submit queues an action without waiting for the result. clientID
// attributes the action; use client.LocalID for the local UI.
func (h *Hub) Submit(act action.Action, clientID string) {
	select {
	case h.actions <- envelope{act: act, clientID: clientID}:
	case <-h.done:
	}
}

// Do queues an action and waits for the loop's validation result. Callers
// that must distinguish not-consumed outcomes (session limit, unknown
// agent) use this instead of Submit.
func (h *Hub) Do(ctx context.Context, act action.Action, clientID string) error {
	reply := make(chan error, 1)
	select {
	case h.actions <- envelope{act: act, clientID: clientID, reply: reply}:
	case <-h.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AttachClient registers a remote viewer. The client's Sink must be safe
// to call from the scheduling loop and must not block.
func (h *Hub) AttachClient(ctx context.Context, c *client.Client) error {
	return h.do(ctx, envelope{act: action.Action{Kind: action.KindConnect}, clientID: c.ID, attach: c})
}

// DetachClient unregisters a remote viewer. Idempotent.
func (h *Hub) DetachClient(ctx context.Context, id string) error {
	return h.do(ctx, envelope{act: action.Action{Kind: action.KindDisconnect}, clientID: id})
}

func (h *Hub) do(ctx context.Context, env envelope) error {
	env.reply = make(chan error, 1)
	select {
	case h.actions <- env:
	case <-h.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-env.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shutdown closes every agent process. Workspaces survive a shutdown;
// only explicit Close actions delete them.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.agents.Each(func(a *agent.Agent) {
		if a.Proc != nil {
			if err := a.Proc.Close(); err != nil {
				h.logger.Warn("closing agent process", "agent", a.Key, "error", err)
			}
		}
		if a.Helper != nil {
			_ = a.Helper.Close()
		}
		h.record(ctx, "shutdown", a.Key, "")
	})
	h.logger.Info("hub stopped", "agents", h.agents.Len())
}

func (h *Hub) record(ctx context.Context, kind, agentKey, detail string) {
	if h.recorder == nil {
		return
	}
	if err := h.recorder.Record(ctx, kind, agentKey, detail); err != nil {
		h.logger.Warn("recording session event", "kind", kind, "agent", agentKey, "error", err)
	}
}
