// ABOUTME: Read-side views of hub state for renderers.
// ABOUTME: Snapshots copy under RLock and never expose registry internals.

package hub

import (
	"github.com/Tonksthebear/trybotster-sub005/internal/agent"
	"github.com/Tonksthebear/trybotster-sub005/internal/client"
	"github.com/Tonksthebear/trybotster-sub005/internal/protocol"
)

// Snapshot is a point-in-time copy of the state a renderer needs.
type Snapshot struct {
	Agents   []protocol.AgentSummary
	Cursor   int
	Selected string
	Clients  int
	Polling  bool
}

// Snapshot copies the current agent listing and local selection.
func (h *Hub) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Snapshot{
		Agents:  make([]protocol.AgentSummary, 0, h.agents.Len()),
		Cursor:  h.agents.Cursor(),
		Clients: h.clients.Len(),
		Polling: h.polling,
	}
	h.agents.Each(func(a *agent.Agent) {
		s.Agents = append(s.Agents, protocol.AgentSummary{
			Key:       a.Key,
			Branch:    a.Branch,
			Workspace: a.Workspace,
			Running:   a.Running(),
			StartedAt: a.StartedAt,
			Port:      a.Port,
		})
	})
	if c, ok := h.clients.Get(client.LocalID); ok {
		s.Selected = c.Selected
	}
	return s
}

// ScrollbackFor copies an agent's retained output for rendering.
func (h *Hub) ScrollbackFor(key string) ([]byte, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ag, ok := h.agents.Get(key)
	if !ok {
		return nil, false
	}
	return ag.Scrollback.Contents(), true
}
