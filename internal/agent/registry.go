// ABOUTME: Ordered, keyed collection of agents plus the local UI's cursor.
// ABOUTME: Insertion order gives the UI a stable, navigable sequence.

package agent

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested agent key is not registered.
var ErrNotFound = errors.New("agent not registered")

// Registry owns every Agent. It maintains a key→Agent map together with
// an insertion-ordered key sequence so the local UI can navigate
// next/previous/by-index deterministically, and a single primary cursor
// belonging to the local UI only.
//
// Registry is not synchronized; all mutation happens on the hub's
// scheduling loop.
type Registry struct {
	byKey  map[string]*Agent
	order  []string
	cursor int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]*Agent)}
}

// Add registers a new agent. Returns an error if the key already exists;
// callers that want spawn idempotence check Has first.
func (r *Registry) Add(a *Agent) error {
	if _, exists := r.byKey[a.Key]; exists {
		return fmt.Errorf("agent %q already registered", a.Key)
	}
	r.byKey[a.Key] = a
	r.order = append(r.order, a.Key)
	return nil
}

// Remove unregisters an agent by key and clamps the cursor into range.
func (r *Registry) Remove(key string) bool {
	if _, exists := r.byKey[key]; !exists {
		return false
	}
	delete(r.byKey, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			if r.cursor > i || r.cursor >= len(r.order) {
				r.cursor--
			}
			break
		}
	}
	if r.cursor < 0 {
		r.cursor = 0
	}
	return true
}

// Get returns the agent for key.
func (r *Registry) Get(key string) (*Agent, bool) {
	a, ok := r.byKey[key]
	return a, ok
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	_, ok := r.byKey[key]
	return ok
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	return len(r.order)
}

// Keys returns the keys in insertion order. The slice is a copy.
func (r *Registry) Keys() []string {
	keys := make([]string, len(r.order))
	copy(keys, r.order)
	return keys
}

// Each calls fn for every agent in insertion order.
func (r *Registry) Each(fn func(*Agent)) {
	for _, key := range r.order {
		fn(r.byKey[key])
	}
}

// Cursor returns the primary cursor position (0-based). Meaningless when
// the registry is empty.
func (r *Registry) Cursor() int {
	return r.cursor
}

// Current returns the agent under the primary cursor.
func (r *Registry) Current() (*Agent, bool) {
	if len(r.order) == 0 {
		return nil, false
	}
	return r.byKey[r.order[r.cursor]], true
}

// SelectNext advances the cursor, wrapping past the end. Returns the
// newly current agent.
func (r *Registry) SelectNext() (*Agent, bool) {
	if len(r.order) == 0 {
		return nil, false
	}
	r.cursor = (r.cursor + 1) % len(r.order)
	return r.Current()
}

// SelectPrev retreats the cursor, wrapping past the start.
func (r *Registry) SelectPrev() (*Agent, bool) {
	if len(r.order) == 0 {
		return nil, false
	}
	r.cursor = (r.cursor - 1 + len(r.order)) % len(r.order)
	return r.Current()
}

// SelectIndex moves the cursor to a 1-based position. Out-of-range input
// is rejected without mutating the cursor.
func (r *Registry) SelectIndex(index int) (*Agent, error) {
	if index < 1 || index > len(r.order) {
		return nil, fmt.Errorf("index %d out of range [1,%d]", index, len(r.order))
	}
	r.cursor = index - 1
	a, _ := r.Current()
	return a, nil
}
