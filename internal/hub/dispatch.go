// ABOUTME: Action dispatch: the closed union of state transitions the hub performs.
// ABOUTME: Validation failures return as error values; side effects run off-loop.

package hub

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Tonksthebear/trybotster-sub005/internal/action"
	"github.com/Tonksthebear/trybotster-sub005/internal/agent"
	"github.com/Tonksthebear/trybotster-sub005/internal/client"
	"github.com/Tonksthebear/trybotster-sub005/internal/protocol"
	"github.com/Tonksthebear/trybotster-sub005/internal/session"
)

func (h *Hub) dispatch(ctx context.Context, env envelope) error {
	act := env.act
	switch act.Kind {
	case action.KindSpawn:
		return h.dispatchSpawn(ctx, act, env.clientID)
	case action.KindClose:
		return h.dispatchClose(ctx, act)
	case action.KindSelect:
		return h.dispatchSelect(act.AgentKey, env.clientID)
	case action.KindSelectNext:
		return h.dispatchCursor(env.clientID, func() (*agent.Agent, bool) { return h.agents.SelectNext() })
	case action.KindSelectPrev:
		return h.dispatchCursor(env.clientID, func() (*agent.Agent, bool) { return h.agents.SelectPrev() })
	case action.KindSelectIndex:
		return h.dispatchSelectIndex(act.Index, env.clientID)
	case action.KindSendInput:
		return h.dispatchInput(act.Input, env.clientID)
	case action.KindResize:
		return h.dispatchResize(act.Rows, act.Cols, env.clientID)
	case action.KindConnect:
		return h.dispatchConnect(env.attach)
	case action.KindDisconnect:
		return h.dispatchDisconnect(env.clientID)
	case action.KindListAgents:
		return h.dispatchListAgents(env.clientID)
	case action.KindListWorkspaces:
		return h.dispatchListWorkspaces(ctx, env.clientID)
	case action.KindQuit:
		if h.cancel != nil {
			h.cancel()
		}
		return nil
	case action.KindTogglePolling:
		h.mu.Lock()
		h.polling = !h.polling
		h.mu.Unlock()
		return nil
	case action.KindRefreshWorkspaces:
		return h.dispatchRefreshWorkspaces(ctx)
	default:
		return fmt.Errorf("unhandled action %s", act.Kind)
	}
}

// dispatchSpawn validates the request and hands the blocking work to a
// goroutine. A spawn whose session key already exists, live or in
// flight, succeeds silently: duplicate mentions of the same issue must
// not produce duplicate sessions.
func (h *Hub) dispatchSpawn(ctx context.Context, act action.Action, clientID string) error {
	branch := act.Branch
	if branch == "" {
		if act.Issue <= 0 {
			return &action.MissingFieldError{Field: "branch"}
		}
		branch = agent.BranchForIssue(h.cfg.BranchPrefix, act.Issue)
	}
	key := agent.SessionKey(h.cfg.Repo, branch)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.agents.Has(key) {
		h.deliverLocked(clientID, protocol.New(protocol.TypeCreated, protocol.CreatedPayload{AgentKey: key}))
		return nil
	}
	if _, inflight := h.pending[key]; inflight {
		return nil
	}
	if h.agents.Len()+len(h.pending) >= h.cfg.MaxSessions {
		return action.ErrMaxSessions
	}

	h.pending[key] = struct{}{}
	h.logger.Info("spawning agent", "agent", key, "branch", branch, "issue", act.Issue)
	go h.spawn(ctx, key, branch, act, clientID)
	return nil
}

// spawn runs off-loop: workspace checkout then process start, completion
// posted back for registration.
func (h *Hub) spawn(ctx context.Context, key, branch string, act action.Action, clientID string) {
	res := spawnResult{key: key, clientID: clientID}

	path, err := h.wsman.Create(ctx, branch)
	if err != nil {
		res.err = fmt.Errorf("creating workspace for %s: %w", branch, err)
		h.postSpawn(res)
		return
	}

	proc, err := h.factory.Spawn(ctx, session.Spec{
		Command: h.cfg.Command,
		Args:    h.cfg.Args,
		Dir:     path,
		Env:     h.cfg.Env,
		Rows:    h.cfg.Rows,
		Cols:    h.cfg.Cols,
	})
	if err != nil {
		res.err = fmt.Errorf("starting agent process: %w", err)
		h.postSpawn(res)
		return
	}

	if act.Prompt != "" {
		if err := proc.WriteInput(append([]byte(act.Prompt), '\n')); err != nil {
			h.logger.Warn("writing initial prompt", "agent", key, "error", err)
		}
	}

	helper, port := h.spawnHelper(ctx, key, path)

	res.ag = &agent.Agent{
		Key:        key,
		Workspace:  path,
		Branch:     branch,
		Issue:      act.Issue,
		StartedAt:  time.Now(),
		Port:       port,
		Proc:       proc,
		Helper:     helper,
		Scrollback: agent.NewScrollback(h.cfg.ScrollbackSize),
		Rows:       h.cfg.Rows,
		Cols:       h.cfg.Cols,
	}
	if helper != nil {
		res.ag.HelperScrollback = agent.NewScrollback(h.cfg.ScrollbackSize)
	}
	h.postSpawn(res)
}

// spawnHelper starts the configured auxiliary process in the agent's
// workspace, handing it an allocated localhost port. The helper is best
// effort: a failure logs and the agent runs without one.
func (h *Hub) spawnHelper(ctx context.Context, key, dir string) (session.Session, int) {
	if h.cfg.HelperCommand == "" {
		return nil, 0
	}

	port, err := allocatePort()
	if err != nil {
		h.logger.Warn("allocating helper port", "agent", key, "error", err)
		return nil, 0
	}

	env := append(append([]string(nil), h.cfg.Env...), fmt.Sprintf("PORT=%d", port))
	helper, err := h.factory.Spawn(ctx, session.Spec{
		Command: h.cfg.HelperCommand,
		Args:    h.cfg.HelperArgs,
		Dir:     dir,
		Env:     env,
	})
	if err != nil {
		h.logger.Warn("starting helper process", "agent", key, "error", err)
		return nil, 0
	}
	return helper, port
}

// allocatePort reserves an ephemeral localhost port by binding and
// immediately releasing it.
func allocatePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	return port, nil
}

func (h *Hub) postSpawn(res spawnResult) {
	select {
	case h.spawnDone <- res:
	case <-h.done:
		if res.ag != nil && res.ag.Proc != nil {
			_ = res.ag.Proc.Close()
		}
	}
}

// finishSpawn registers a completed spawn on-loop and announces it.
func (h *Hub) finishSpawn(ctx context.Context, res spawnResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.pending, res.key)

	if res.err != nil {
		h.logger.Error("spawn failed", "agent", res.key, "error", res.err)
		h.deliverLocked(res.clientID, protocol.NewError(res.err.Error()))
		h.record(ctx, "spawn_failed", res.key, res.err.Error())
		return
	}

	if err := h.agents.Add(res.ag); err != nil {
		// Lost a race against an identical key registered while this
		// spawn was in flight. The pending guard makes this unreachable;
		// close the orphan if it ever happens.
		h.logger.Error("registering spawned agent", "agent", res.key, "error", err)
		_ = res.ag.Proc.Close()
		return
	}

	h.logger.Info("agent ready", "agent", res.key, "workspace", res.ag.Workspace)
	h.deliverLocked(res.clientID, protocol.New(protocol.TypeCreated, protocol.CreatedPayload{AgentKey: res.key}))
	h.broadcastAgentsLocked()
	h.record(ctx, "spawned", res.key, res.ag.Workspace)
}

// dispatchClose removes the agent, clearing every viewer's selection
// before the registry entry disappears so no client ever points at a
// missing key. Process and workspace teardown run off-loop.
func (h *Hub) dispatchClose(ctx context.Context, act action.Action) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ag, ok := h.agents.Get(act.AgentKey)
	if !ok {
		return action.ErrAgentNotFound
	}

	affected := h.clients.RemoveAgentViewers(act.AgentKey)
	deleted := protocol.New(protocol.TypeDeleted, protocol.DeletedPayload{AgentKey: act.AgentKey})
	for _, id := range affected {
		h.deliverLocked(id, deleted)
	}

	h.agents.Remove(act.AgentKey)
	delete(h.exited, act.AgentKey)

	go h.teardown(ctx, ag, act.DeleteWorkspace)

	h.logger.Info("agent closed", "agent", act.AgentKey, "delete_workspace", act.DeleteWorkspace)
	h.broadcastAgentsLocked()
	h.record(ctx, "closed", act.AgentKey, "")
	return nil
}

func (h *Hub) teardown(ctx context.Context, ag *agent.Agent, deleteWorkspace bool) {
	if ag.Proc != nil {
		if err := ag.Proc.Close(); err != nil {
			h.logger.Warn("closing agent process", "agent", ag.Key, "error", err)
		}
	}
	if ag.Helper != nil {
		_ = ag.Helper.Close()
	}
	if deleteWorkspace {
		if err := h.wsman.Delete(ctx, ag.Workspace, ag.Branch); err != nil {
			h.logger.Warn("deleting workspace", "agent", ag.Key, "error", err)
		}
	}
}

// dispatchSelect points a client at an agent by key.
func (h *Hub) dispatchSelect(key, clientID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ag, ok := h.agents.Get(key)
	if !ok {
		return action.ErrAgentNotFound
	}

	if clientID == client.LocalID {
		h.alignCursorLocked(key)
	}
	return h.selectForClientLocked(ag, clientID)
}

// dispatchCursor handles next/prev: the cursor moves first, then the
// issuing client's selection follows the newly current agent.
func (h *Hub) dispatchCursor(clientID string, move func() (*agent.Agent, bool)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ag, ok := move()
	if !ok {
		return nil
	}
	return h.selectForClientLocked(ag, clientID)
}

func (h *Hub) dispatchSelectIndex(index int, clientID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ag, err := h.agents.SelectIndex(index)
	if err != nil {
		return fmt.Errorf("%w: %v", action.ErrAgentNotFound, err)
	}
	return h.selectForClientLocked(ag, clientID)
}

// selectForClientLocked applies the selection ordering contract: the
// scrollback snapshot is delivered before the selection is recorded, so
// every output byte reaches the client exactly once, history first.
// Re-selecting the agent already viewed skips the snapshot; the client
// has those bytes.
func (h *Hub) selectForClientLocked(ag *agent.Agent, clientID string) error {
	if c, ok := h.clients.Get(clientID); !ok || c.Selected != ag.Key {
		h.deliverLocked(clientID, protocol.New(protocol.TypeScrollback, protocol.ScrollbackPayload{
			AgentKey: ag.Key,
			Bytes:    ag.Scrollback.Contents(),
		}))
	}
	if err := h.clients.UpdateSelection(clientID, ag.Key); err != nil {
		return err
	}
	h.deliverLocked(clientID, protocol.New(protocol.TypeSelected, protocol.SelectedPayload{AgentKey: ag.Key}))
	h.applyGeometryLocked(ag.Key)
	return nil
}

// alignCursorLocked moves the cursor to the given key so local key-based
// selection and cursor navigation stay consistent.
func (h *Hub) alignCursorLocked(key string) {
	for i, k := range h.agents.Keys() {
		if k == key {
			_, _ = h.agents.SelectIndex(i + 1)
			return
		}
	}
}

// dispatchInput forwards bytes to the issuing client's selected agent.
// No selection means the input is dropped silently; this is an expected
// state, not an error.
func (h *Hub) dispatchInput(input []byte, clientID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients.Get(clientID)
	if !ok || c.Selected == "" {
		return nil
	}
	ag, ok := h.agents.Get(c.Selected)
	if !ok {
		return nil
	}
	if err := ag.Proc.WriteInput(input); err != nil {
		return fmt.Errorf("writing input to %s: %w", ag.Key, err)
	}
	return nil
}

// dispatchResize records the client's dimensions and reapplies geometry
// to the agent it views. A resize from a client with no selection is
// recorded but touches no process.
func (h *Hub) dispatchResize(rows, cols uint16, clientID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.clients.SetDimensions(clientID, rows, cols, time.Now()); err != nil {
		return err
	}
	c, _ := h.clients.Get(clientID)
	if c.Selected != "" {
		h.applyGeometryLocked(c.Selected)
	}
	return nil
}

// applyGeometryLocked resolves the winning geometry for an agent's
// viewer set and applies it when it differs from what the process has.
func (h *Hub) applyGeometryLocked(key string) {
	rows, cols, ok := h.clients.GeometryFor(key)
	if !ok {
		return
	}
	ag, found := h.agents.Get(key)
	if !found || (ag.Rows == rows && ag.Cols == cols) {
		return
	}
	if err := ag.Proc.Resize(rows, cols); err != nil {
		h.logger.Warn("resizing agent", "agent", key, "rows", rows, "cols", cols, "error", err)
		return
	}
	ag.Rows, ag.Cols = rows, cols
}

func (h *Hub) dispatchConnect(c *client.Client) error {
	if c == nil {
		return &action.MissingFieldError{Field: "client"}
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.clients.Register(c); err != nil {
		return err
	}
	h.logger.Info("client attached", "client", c.ID, "device", c.DeviceName)
	h.deliverLocked(c.ID, h.agentsMessageLocked())
	return nil
}

func (h *Hub) dispatchDisconnect(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients.Unregister(id)
	h.logger.Info("client detached", "client", id)
	return nil
}

func (h *Hub) dispatchListAgents(clientID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliverLocked(clientID, h.agentsMessageLocked())
	return nil
}

// dispatchListWorkspaces enumerates off-loop; the sink contract makes
// delivery from the goroutine safe.
func (h *Hub) dispatchListWorkspaces(ctx context.Context, clientID string) error {
	h.mu.RLock()
	c, ok := h.clients.Get(clientID)
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	sink := c.Sink

	go func() {
		msg, err := h.workspacesMessage(ctx)
		if err != nil {
			h.logger.Error("listing workspaces", "error", err)
			sink.Deliver(protocol.NewError(err.Error()))
			return
		}
		sink.Deliver(msg)
	}()
	return nil
}

func (h *Hub) dispatchRefreshWorkspaces(ctx context.Context) error {
	go func() {
		msg, err := h.workspacesMessage(ctx)
		if err != nil {
			h.logger.Error("refreshing workspaces", "error", err)
			return
		}
		h.mu.RLock()
		defer h.mu.RUnlock()
		h.clients.Each(func(c *client.Client) {
			c.Sink.Deliver(msg)
		})
	}()
	return nil
}

// workspacesMessage lists the checkouts no live agent is bound to. The
// bound set is snapshotted before the enumeration, which may block.
func (h *Hub) workspacesMessage(ctx context.Context) (protocol.Message, error) {
	h.mu.RLock()
	bound := make(map[string]struct{})
	for _, key := range h.agents.Keys() {
		if ag, ok := h.agents.Get(key); ok {
			bound[ag.Workspace] = struct{}{}
		}
	}
	h.mu.RUnlock()

	all, err := h.wsman.ListAll(ctx)
	if err != nil {
		return protocol.Message{}, err
	}
	payload := protocol.WorkspacesPayload{Workspaces: make([]protocol.WorkspaceSummary, 0, len(all))}
	for _, w := range all {
		if _, taken := bound[w.Path]; taken {
			continue
		}
		payload.Workspaces = append(payload.Workspaces, protocol.WorkspaceSummary{Path: w.Path, Branch: w.Branch})
	}
	return protocol.New(protocol.TypeWorkspaces, payload), nil
}

// deliverLocked sends to one client's sink. Caller holds mu.
func (h *Hub) deliverLocked(clientID string, msg protocol.Message) {
	c, ok := h.clients.Get(clientID)
	if !ok {
		return
	}
	if !c.Sink.Deliver(msg) {
		h.logger.Debug("delivery refused", "client", clientID, "type", msg.Type)
	}
}

// agentsMessageLocked builds the full agents listing. Caller holds mu.
func (h *Hub) agentsMessageLocked() protocol.Message {
	payload := protocol.AgentsPayload{Agents: make([]protocol.AgentSummary, 0, h.agents.Len())}
	h.agents.Each(func(a *agent.Agent) {
		payload.Agents = append(payload.Agents, protocol.AgentSummary{
			Key:       a.Key,
			Branch:    a.Branch,
			Workspace: a.Workspace,
			Running:   a.Running(),
			StartedAt: a.StartedAt,
			Port:      a.Port,
		})
	})
	return protocol.New(protocol.TypeAgents, payload)
}

// broadcastAgentsLocked announces an agent-set change to every client.
func (h *Hub) broadcastAgentsLocked() {
	msg := h.agentsMessageLocked()
	h.clients.Each(func(c *client.Client) {
		c.Sink.Deliver(msg)
	})
}
