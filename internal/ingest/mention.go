// ABOUTME: Inbound queue messages and their mapping onto hub actions.
// ABOUTME: A mention spawns a session; a cleanup closes one, checkout kept.

package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/Tonksthebear/trybotster-sub005/internal/action"
	"github.com/Tonksthebear/trybotster-sub005/internal/agent"
)

// Message types accepted off the queue.
const (
	TypeNewMention = "new_mention"
	TypeCleanup    = "cleanup"
)

// Mention is one inbound queue message.
type Mention struct {
	// ID is the queue-assigned message id, used for dedup.
	ID string `json:"id"`

	// Type is one of the Type* constants.
	Type string `json:"type"`

	// Issue identifies the issue a mention refers to. Required for
	// new_mention; either Issue or Branch identifies a cleanup target.
	Issue int `json:"issue,omitempty"`

	// Branch overrides issue-derived branch naming.
	Branch string `json:"branch,omitempty"`

	// Prompt is optional initial input for the spawned agent.
	Prompt string `json:"prompt,omitempty"`
}

// Mapper turns queue messages into actions. It carries the repo identity
// so cleanup targets resolve to full session keys.
type Mapper struct {
	Repo         string
	BranchPrefix string
}

// Parse decodes a raw queue payload.
func Parse(data []byte) (Mention, error) {
	var m Mention
	if err := json.Unmarshal(data, &m); err != nil {
		return Mention{}, fmt.Errorf("decoding queue message: %w", err)
	}
	if m.Type == "" {
		return Mention{}, &action.MissingFieldError{Field: "type"}
	}
	return m, nil
}

// Map converts one message into the action it implies.
func (mp Mapper) Map(m Mention) (action.Action, error) {
	switch m.Type {
	case TypeNewMention:
		// Mentions always name an issue; branch-only spawns are an
		// interactive affordance, not a queue one.
		if m.Issue <= 0 {
			return action.Action{}, &action.MissingFieldError{Field: "issue"}
		}
		return action.Action{
			Kind:   action.KindSpawn,
			Issue:  m.Issue,
			Branch: m.Branch,
			Prompt: m.Prompt,
		}, nil

	case TypeCleanup:
		branch := m.Branch
		if branch == "" {
			if m.Issue <= 0 {
				return action.Action{}, &action.MissingFieldError{Field: "branch"}
			}
			branch = agent.BranchForIssue(mp.BranchPrefix, m.Issue)
		}
		// Cleanup ends the session but keeps the checkout; workspace
		// deletion stays an explicit interactive decision.
		return action.Action{
			Kind:     action.KindClose,
			AgentKey: agent.SessionKey(mp.Repo, branch),
		}, nil

	default:
		return action.Action{}, fmt.Errorf("unknown queue message type %q", m.Type)
	}
}
