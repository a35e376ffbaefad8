// ABOUTME: Message-level contract between the hub and attached remote clients.
// ABOUTME: JSON envelopes carried over an encrypted channel, transport-agnostic.

package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message type identifiers. Client→hub requests, hub→client responses,
// and the handshake/liveness messages share one envelope namespace.
const (
	// Client → hub.
	TypeSelect         = "select"
	TypeInput          = "input"
	TypeResize         = "resize"
	TypeCreateAgent    = "create_agent"
	TypeCloseAgent     = "close_agent"
	TypeListAgents     = "list_agents"
	TypeListWorkspaces = "list_workspaces"

	// Hub → client.
	TypeAgents     = "agents"
	TypeWorkspaces = "workspaces"
	TypeSelected   = "selected"
	TypeCreated    = "created"
	TypeDeleted    = "deleted"
	TypeOutput     = "output"
	TypeScrollback = "scrollback"
	TypeError      = "error"

	// Handshake and liveness, both directions.
	TypeConnected = "connected"
	TypeAck       = "ack"
	TypeHealth    = "health"
)

// Health status values reported by the liveness signal.
const (
	HealthOffline      = "offline"
	HealthOnline       = "online"
	HealthNotified     = "notified"
	HealthConnecting   = "connecting"
	HealthConnected    = "connected"
	HealthDisconnected = "disconnected"
)

// Message is the envelope for everything that crosses the channel.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SelectPayload asks the hub to point this client at an agent.
type SelectPayload struct {
	AgentKey string `json:"agent_key"`
}

// InputPayload carries raw bytes for the selected agent's process.
type InputPayload struct {
	Bytes []byte `json:"bytes"`
}

// ResizePayload reports the client's output dimensions.
type ResizePayload struct {
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

// CreateAgentPayload asks the hub to spawn a new agent. Exactly one of
// Issue or Branch identifies the workspace; Prompt is optional initial
// input for the spawned process.
type CreateAgentPayload struct {
	Issue  int    `json:"issue,omitempty"`
	Branch string `json:"branch,omitempty"`
	Prompt string `json:"prompt,omitempty"`
}

// CloseAgentPayload asks the hub to close an agent, optionally tearing
// down its workspace.
type CloseAgentPayload struct {
	AgentKey        string `json:"agent_key"`
	DeleteWorkspace bool   `json:"delete_workspace"`
}

// AgentSummary is one entry in an agents listing.
type AgentSummary struct {
	Key       string    `json:"key"`
	Branch    string    `json:"branch"`
	Workspace string    `json:"workspace"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at"`
	Port      int       `json:"port,omitempty"`
}

// AgentsPayload is the hub's response to list_agents, and the broadcast
// sent to every client when the agent set changes.
type AgentsPayload struct {
	Agents []AgentSummary `json:"agents"`
}

// WorkspaceSummary is one entry in a workspaces listing.
type WorkspaceSummary struct {
	Path   string `json:"path"`
	Branch string `json:"branch"`
}

// WorkspacesPayload is the hub's response to list_workspaces.
type WorkspacesPayload struct {
	Workspaces []WorkspaceSummary `json:"workspaces"`
}

// SelectedPayload confirms a selection took effect.
type SelectedPayload struct {
	AgentKey string `json:"agent_key"`
}

// CreatedPayload confirms an agent was spawned (or already existed).
type CreatedPayload struct {
	AgentKey string `json:"agent_key"`
}

// DeletedPayload confirms an agent was closed.
type DeletedPayload struct {
	AgentKey string `json:"agent_key"`
}

// OutputPayload carries live process output for the agent the client is
// viewing. Bytes are verbatim terminal output, escape sequences included.
type OutputPayload struct {
	AgentKey string `json:"agent_key"`
	Bytes    []byte `json:"bytes"`
}

// ScrollbackPayload carries buffered history, delivered once on selection
// before any live output produced after the selection took effect.
type ScrollbackPayload struct {
	AgentKey string `json:"agent_key"`
	Bytes    []byte `json:"bytes"`
}

// ErrorPayload reports a validation or collaborator failure to the
// issuing client only.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ConnectedPayload opens the application handshake. Sent by whichever
// side observes the peer become reachable while already subscribed.
type ConnectedPayload struct {
	DeviceName string    `json:"device_name"`
	Timestamp  time.Time `json:"timestamp"`
}

// AckPayload answers a connected message and completes the handshake.
type AckPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

// HealthPayload is the out-of-band liveness signal. Values come from the
// Health* constants.
type HealthPayload struct {
	CLI     string `json:"cli,omitempty"`
	Browser string `json:"browser,omitempty"`
}

// New builds an envelope around any payload. Marshal failures are
// impossible for the payload types in this package, so New panics on
// them rather than returning an error nobody checks.
func New(msgType string, payload any) Message {
	if payload == nil {
		return Message{Type: msgType}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("protocol: marshal %s payload: %v", msgType, err))
	}
	return Message{Type: msgType, Payload: raw}
}

// Decode unmarshals the envelope payload into dst.
func (m Message) Decode(dst any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, dst); err != nil {
		return fmt.Errorf("decoding %s payload: %w", m.Type, err)
	}
	return nil
}

// Encode marshals the envelope for the wire.
func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s message: %w", m.Type, err)
	}
	return data, nil
}

// Parse reads an envelope off the wire.
func Parse(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("parsing message: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("message missing type")
	}
	return m, nil
}

// NewError is a shorthand for the most common hub→client response.
func NewError(message string) Message {
	return New(TypeError, ErrorPayload{Message: message})
}
