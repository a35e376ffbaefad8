// ABOUTME: Connection lifecycle states for a remote client, mirrored on both sides.
// ABOUTME: Application handshake and liveness are independent of transport crypto.

package lifecycle

import "fmt"

// State is one position in the attach/handshake/health/detach machine.
type State int

const (
	// Disconnected is the initial state and the result of explicit detach.
	Disconnected State = iota
	// Connecting means the transport-level channel is being established.
	Connecting
	// Subscribing means the channel is up and registration is in flight.
	Subscribing
	// Subscribed means registered, application handshake not yet complete.
	Subscribed
	// Connected means the handshake completed; the peer is interactive.
	Connected
	// PeerOffline means liveness reports the remote side gone; transport
	// registration is preserved so a future signal re-enters Subscribing
	// without starting over.
	PeerOffline
	// Failed is the absorbing error state, reachable from any other.
	Failed
)

var stateNames = map[State]string{
	Disconnected: "disconnected",
	Connecting:   "connecting",
	Subscribing:  "subscribing",
	Subscribed:   "subscribed",
	Connected:    "connected",
	PeerOffline:  "peer_offline",
	Failed:       "error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrorReason classifies entries into the Failed state.
type ErrorReason int

const (
	// ReasonNone means the machine is not in Failed.
	ReasonNone ErrorReason = iota
	// ReasonUnpaired means no secure session exists. Terminal: requires
	// out-of-band re-pairing, never auto-retried.
	ReasonUnpaired
	// ReasonHandshakeTimeout means the connected/ack exchange timed out.
	ReasonHandshakeTimeout
	// ReasonTransport means the underlying channel failed.
	ReasonTransport
)

var reasonNames = map[ErrorReason]string{
	ReasonNone:             "none",
	ReasonUnpaired:         "unpaired",
	ReasonHandshakeTimeout: "handshake_timeout",
	ReasonTransport:        "transport",
}

func (r ErrorReason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason(%d)", int(r))
}
