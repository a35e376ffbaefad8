// ABOUTME: Registry of attached clients and the agent→viewers reverse index.
// ABOUTME: UpdateSelection is the only mutation path, so the index never drifts.

package client

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound indicates the client id is not registered.
var ErrNotFound = errors.New("client not registered")

// Registry tracks every attached client and a reverse index from agent
// key to the set of client ids currently viewing it. The index is
// derived data: every selection change routes through UpdateSelection
// so the index and the clients' stored selections can never disagree
// between two operations.
//
// Registry is not synchronized; all mutation happens on the hub's
// scheduling loop.
type Registry struct {
	clients map[string]*Client
	viewers map[string]map[string]struct{} // agent key -> client ids
}

// NewRegistry creates a registry containing no clients.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		viewers: make(map[string]map[string]struct{}),
	}
}

// Register adds a client. Registering an existing id is an error; the
// connection lifecycle guarantees ids are unregistered before reuse.
func (r *Registry) Register(c *Client) error {
	if _, exists := r.clients[c.ID]; exists {
		return fmt.Errorf("client %q already registered", c.ID)
	}
	r.clients[c.ID] = c
	if c.Selected != "" {
		r.indexAdd(c.Selected, c.ID)
	}
	return nil
}

// Unregister removes a client and its index entries. Unknown ids are a
// no-op so disconnect is idempotent.
func (r *Registry) Unregister(id string) {
	c, ok := r.clients[id]
	if !ok {
		return
	}
	if c.Selected != "" {
		r.indexRemove(c.Selected, id)
	}
	delete(r.clients, id)
}

// Get returns the client for id.
func (r *Registry) Get(id string) (*Client, bool) {
	c, ok := r.clients[id]
	return c, ok
}

// Len returns the number of attached clients.
func (r *Registry) Len() int {
	return len(r.clients)
}

// Each calls fn for every attached client.
func (r *Registry) Each(fn func(*Client)) {
	for _, c := range r.clients {
		fn(c)
	}
}

// UpdateSelection atomically moves a client's selection from its current
// agent to newKey (empty to clear), keeping the reverse index in step.
func (r *Registry) UpdateSelection(id, newKey string) error {
	c, ok := r.clients[id]
	if !ok {
		return ErrNotFound
	}
	if c.Selected == newKey {
		return nil
	}
	if c.Selected != "" {
		r.indexRemove(c.Selected, id)
	}
	if newKey != "" {
		r.indexAdd(newKey, id)
	}
	c.Selected = newKey
	return nil
}

// ViewersOf returns the ids of clients currently viewing the agent.
// The slice is a copy.
func (r *Registry) ViewersOf(agentKey string) []string {
	set, ok := r.viewers[agentKey]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// RemoveAgentViewers clears the selection of every client viewing the
// agent and drops the agent's index entry entirely. Returns the affected
// client ids. Called before the agent is removed from its registry so no
// client selection ever points at a dead key.
func (r *Registry) RemoveAgentViewers(agentKey string) []string {
	set, ok := r.viewers[agentKey]
	if !ok {
		return nil
	}
	affected := make([]string, 0, len(set))
	for id := range set {
		if c, ok := r.clients[id]; ok {
			c.Selected = ""
		}
		affected = append(affected, id)
	}
	delete(r.viewers, agentKey)
	return affected
}

// SetDimensions records a client's output geometry and stamps the change
// for the last-writer-wins resize policy.
func (r *Registry) SetDimensions(id string, rows, cols uint16, at time.Time) error {
	c, ok := r.clients[id]
	if !ok {
		return ErrNotFound
	}
	c.Rows, c.Cols, c.ResizedAt = rows, cols, at
	return nil
}

// GeometryFor resolves which viewer's dimensions drive an agent's
// process geometry: the local UI always wins if it is a viewer;
// otherwise the most recently resized remote viewer.
func (r *Registry) GeometryFor(agentKey string) (rows, cols uint16, ok bool) {
	set, present := r.viewers[agentKey]
	if !present {
		return 0, 0, false
	}
	var best *Client
	for id := range set {
		c, exists := r.clients[id]
		if !exists || c.Rows == 0 || c.Cols == 0 {
			continue
		}
		if !c.Remote {
			return c.Rows, c.Cols, true
		}
		if best == nil || c.ResizedAt.After(best.ResizedAt) {
			best = c
		}
	}
	if best == nil {
		return 0, 0, false
	}
	return best.Rows, best.Cols, true
}

func (r *Registry) indexAdd(agentKey, id string) {
	set, ok := r.viewers[agentKey]
	if !ok {
		set = make(map[string]struct{})
		r.viewers[agentKey] = set
	}
	set[id] = struct{}{}
}

func (r *Registry) indexRemove(agentKey, id string) {
	set, ok := r.viewers[agentKey]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(r.viewers, agentKey)
	}
}
