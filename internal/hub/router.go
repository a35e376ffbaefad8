// ABOUTME: Output routing tick: drain each agent once, fan out to its viewers.
// ABOUTME: Also watches process liveness and announces exits.

package hub

import (
	"context"

	"github.com/Tonksthebear/trybotster-sub005/internal/agent"
	"github.com/Tonksthebear/trybotster-sub005/internal/protocol"
)

// pumpOutput drains every agent exactly once per tick. Each chunk is
// appended to scrollback first, then fanned out to the agent's current
// viewers, so late selectors replay the same bytes from history that
// live viewers saw.
func (h *Hub) pumpOutput() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.agents.Each(func(a *agent.Agent) {
		if a.Proc != nil {
			h.routeLocked(a, a.Proc, a.Scrollback, true)
		}
		if a.Helper != nil && a.HelperScrollback != nil {
			h.routeLocked(a, a.Helper, a.HelperScrollback, false)
		}
	})
}

func (h *Hub) routeLocked(a *agent.Agent, proc interface{ DrainOutput() []byte }, sb *agent.Scrollback, fanOut bool) {
	out := proc.DrainOutput()
	if len(out) == 0 {
		return
	}
	sb.Write(out)
	if !fanOut {
		return
	}

	msg := protocol.New(protocol.TypeOutput, protocol.OutputPayload{AgentKey: a.Key, Bytes: out})
	for _, id := range h.clients.ViewersOf(a.Key) {
		h.deliverLocked(id, msg)
	}
}

// reapExited notices processes that died since the last tick. The agent
// stays registered with its scrollback intact until an explicit close;
// only the listing's running flag changes.
func (h *Hub) reapExited(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	changed := false
	h.agents.Each(func(a *agent.Agent) {
		if a.Running() {
			return
		}
		if _, seen := h.exited[a.Key]; seen {
			return
		}
		h.exited[a.Key] = struct{}{}
		changed = true
		h.logger.Info("agent process exited", "agent", a.Key)
		h.record(ctx, "exited", a.Key, "")
	})
	if changed {
		h.broadcastAgentsLocked()
	}
}
