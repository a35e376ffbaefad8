// ABOUTME: Attached-viewer model: the always-present local UI and remote viewers.
// ABOUTME: Both variants share state shape and differ only in output delivery.

package client

import (
	"time"

	"github.com/Tonksthebear/trybotster-sub005/internal/protocol"
)

// LocalID is the fixed client id of the local terminal UI, created at
// startup and never removed. Remote ids are transport-derived (public
// key plus a per-tab suffix), so one remote identity can hold several
// independent viewer slots.
const LocalID = "local"

// Sink delivers hub→client messages. The local UI renders in place from
// shared state; remote sinks batch and flush over the channel. Deliver
// must not block the caller: it reports false when the message could not
// be accepted (slow or gone peer), and the hub degrades gracefully;
// missed output waits in scrollback.
type Sink interface {
	Deliver(msg protocol.Message) bool
}

// Client is one attached viewer.
type Client struct {
	ID     string
	Remote bool

	// Selected is the viewed agent key, empty when nothing is selected.
	// Invariant: empty or present in the agent registry; the registry
	// clears it synchronously when the agent is removed.
	Selected string

	// Rows and Cols are the last-known output dimensions.
	Rows uint16
	Cols uint16

	// ResizedAt orders competing geometries: when no local UI views an
	// agent, the most-recently-resized remote viewer's geometry wins.
	ResizedAt time.Time

	// DeviceName is the human-readable peer name from the handshake.
	DeviceName string

	Sink Sink
}

// NopSink discards everything, for clients without a delivery path yet.
type NopSink struct{}

// Deliver drops the message and reports success.
func (NopSink) Deliver(protocol.Message) bool { return true }
