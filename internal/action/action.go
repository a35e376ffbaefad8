// ABOUTME: Closed set of typed actions that all hub input converges into.
// ABOUTME: Keystrokes, queue messages, and remote client messages become Actions.

package action

import (
	"errors"
	"fmt"
)

// Validation errors returned as values from dispatch, never thrown
// across the dispatch boundary.
var (
	// ErrAgentNotFound indicates the target agent key does not exist.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrMaxSessions indicates the configured concurrent agent limit
	// was reached; the triggering action is not consumed as a spawn.
	ErrMaxSessions = errors.New("maximum concurrent sessions reached")
)

// MissingFieldError reports an action built from an external message
// that lacked a required field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// Kind discriminates the action union.
type Kind int

const (
	// KindSpawn creates a new agent (idempotent by session key).
	KindSpawn Kind = iota
	// KindClose closes an agent and optionally deletes its workspace.
	KindClose
	// KindSelect points the issuing client at an agent by key.
	KindSelect
	// KindSelectNext advances the local UI cursor (wraps).
	KindSelectNext
	// KindSelectPrev retreats the local UI cursor (wraps).
	KindSelectPrev
	// KindSelectIndex selects by 1-based position in the ordered list.
	KindSelectIndex
	// KindSendInput forwards bytes to the issuing client's selected agent.
	KindSendInput
	// KindResize records the issuing client's output dimensions.
	KindResize
	// KindConnect registers a remote client.
	KindConnect
	// KindDisconnect unregisters a remote client.
	KindDisconnect
	// KindListAgents requests the agent list.
	KindListAgents
	// KindListWorkspaces requests the available-workspace list.
	KindListWorkspaces

	// Global actions carry no client context.

	// KindQuit shuts the hub down.
	KindQuit
	// KindTogglePolling pauses or resumes the output scheduling tick.
	KindTogglePolling
	// KindRefreshWorkspaces re-enumerates workspaces from the manager.
	KindRefreshWorkspaces
)

var kindNames = map[Kind]string{
	KindSpawn:             "spawn",
	KindClose:             "close",
	KindSelect:            "select",
	KindSelectNext:        "select_next",
	KindSelectPrev:        "select_prev",
	KindSelectIndex:       "select_index",
	KindSendInput:         "send_input",
	KindResize:            "resize",
	KindConnect:           "connect",
	KindDisconnect:        "disconnect",
	KindListAgents:        "list_agents",
	KindListWorkspaces:    "list_workspaces",
	KindQuit:              "quit",
	KindTogglePolling:     "toggle_polling",
	KindRefreshWorkspaces: "refresh_workspaces",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Global reports whether the kind carries no client context.
func (k Kind) Global() bool {
	return k == KindQuit || k == KindTogglePolling || k == KindRefreshWorkspaces
}

// Action is one intent, carrying only the fields its kind needs.
type Action struct {
	Kind Kind

	// AgentKey targets Select and Close.
	AgentKey string

	// Issue and Branch identify the workspace for Spawn. Issue takes
	// precedence; when zero, Branch must be set.
	Issue  int
	Branch string

	// Prompt is optional initial input for a spawned agent.
	Prompt string

	// Input carries bytes for SendInput.
	Input []byte

	// Rows and Cols carry dimensions for Resize.
	Rows uint16
	Cols uint16

	// Index is the 1-based position for SelectIndex.
	Index int

	// DeleteWorkspace asks Close to tear down the workspace too.
	DeleteWorkspace bool
}
