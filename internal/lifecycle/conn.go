// ABOUTME: Per-remote-client lifecycle machine: subscribe, handshake, liveness.
// ABOUTME: Runs identically on the hub side and the client side of a channel.

package lifecycle

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Tonksthebear/trybotster-sub005/internal/protocol"
)

// HandshakeTimeout bounds the connected/ack exchange. Tunable, not
// semantic.
const HandshakeTimeout = 8 * time.Second

// SendFunc transmits a handshake or liveness message to the peer. It
// must not block; a false return means the transport rejected the send.
type SendFunc func(protocol.Message) bool

// Callbacks notify the owner of lifecycle edges. Callbacks fire with the
// Conn's lock released.
type Callbacks struct {
	// OnConnected fires when the handshake completes.
	OnConnected func(peerDevice string)
	// OnState fires on every state change.
	OnState func(State)
	// OnError fires on entry to Failed.
	OnError func(ErrorReason)
}

// Conn is one side of a remote connection's lifecycle. The same machine
// runs on the hub (per attached client) and inside a client (against the
// hub): each side, upon observing the other newly reachable while itself
// already subscribed, opens the handshake; the side that receives
// `connected` answers `ack` and completes; the side that receives `ack`
// completes without re-sending. Ties are impossible because only an
// already-subscribed side sends first.
type Conn struct {
	deviceName string
	send       SendFunc
	callbacks  Callbacks
	logger     *slog.Logger

	mu         sync.Mutex
	state      State
	reason     ErrorReason
	peerDevice string
	cliStatus  string
	timer      *time.Timer
}

// New creates a lifecycle machine in Disconnected.
func New(deviceName string, send SendFunc, callbacks Callbacks, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		deviceName: deviceName,
		send:       send,
		callbacks:  callbacks,
		logger:     logger.With("component", "lifecycle"),
	}
}

// State returns the current state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reason returns the error reason, ReasonNone outside Failed.
func (c *Conn) Reason() ErrorReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// PeerDevice returns the device name the peer reported in its handshake.
func (c *Conn) PeerDevice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerDevice
}

// BeginConnecting moves Disconnected→Connecting. paired reports whether
// a secure session exists; without one the machine lands in
// Failed(unpaired), a terminal state requiring out-of-band re-pairing.
func (c *Conn) BeginConnecting(paired bool) {
	if !paired {
		c.Fail(ReasonUnpaired)
		return
	}
	c.transition(func() (State, bool) {
		if c.state != Disconnected {
			return 0, false
		}
		return Connecting, true
	})
}

// ChannelEstablished moves Connecting→Subscribing once the transport
// channel is up.
func (c *Conn) ChannelEstablished() {
	c.transition(func() (State, bool) {
		if c.state != Connecting {
			return 0, false
		}
		return Subscribing, true
	})
}

// Subscribed records registration with the peer. The handshake is still
// pending; PeerReachable opens it.
func (c *Conn) Subscribed() {
	c.transition(func() (State, bool) {
		if c.state != Subscribing {
			return 0, false
		}
		return Subscribed, true
	})
}

// PeerReachable is the liveness edge: this side, already subscribed,
// observed the peer become reachable, so it opens the handshake and
// starts the bounded timer. A peer coming back after PeerOffline
// resumes the surviving subscription first, so the handshake reruns
// without transport re-establishment.
func (c *Conn) PeerReachable() {
	c.Resubscribe()

	c.mu.Lock()
	if c.state != Subscribed {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.timer = time.AfterFunc(HandshakeTimeout, c.onHandshakeTimeout)
	c.mu.Unlock()

	c.send(protocol.New(protocol.TypeConnected, protocol.ConnectedPayload{
		DeviceName: c.deviceName,
		Timestamp:  time.Now().UTC(),
	}))
}

// HandleMessage feeds an inbound handshake message through the machine.
// Returns true when the message was consumed.
func (c *Conn) HandleMessage(msg protocol.Message) bool {
	switch msg.Type {
	case protocol.TypeConnected:
		c.onPeerConnected(msg)
		return true
	case protocol.TypeAck:
		c.onPeerAck()
		return true
	case protocol.TypeHealth:
		c.onHealth(msg)
		return true
	default:
		return false
	}
}

// onHealth folds a liveness report into the machine. The cli status
// rising from offline is the same edge as observing the peer directly:
// an already-subscribed side opens the handshake. A drop back to
// offline tears session state down while the subscription survives.
func (c *Conn) onHealth(msg protocol.Message) {
	var p protocol.HealthPayload
	if err := msg.Decode(&p); err != nil {
		c.logger.Warn("malformed health message", "error", err)
		return
	}
	if p.CLI == "" {
		return
	}

	c.mu.Lock()
	prev := c.cliStatus
	c.cliStatus = p.CLI
	c.mu.Unlock()

	switch {
	case peerUp(p.CLI) && !peerUp(prev):
		c.PeerReachable()
	case !peerUp(p.CLI) && peerUp(prev):
		c.PeerGone()
	}
}

// peerUp reports whether a health status means the peer is reachable.
// The zero value counts as down so the first positive report fires the
// reachable edge.
func peerUp(status string) bool {
	switch status {
	case protocol.HealthOnline, protocol.HealthConnected, protocol.HealthNotified:
		return true
	}
	return false
}

// onPeerConnected answers the peer's handshake opener with ack and
// completes this side immediately.
func (c *Conn) onPeerConnected(msg protocol.Message) {
	var payload protocol.ConnectedPayload
	if err := msg.Decode(&payload); err != nil {
		c.logger.Warn("malformed connected message", "error", err)
		return
	}

	c.mu.Lock()
	if c.state != Subscribed && c.state != Connected {
		c.mu.Unlock()
		return
	}
	completed := c.state == Subscribed
	c.peerDevice = payload.DeviceName
	c.stopTimerLocked()
	c.state = Connected
	c.mu.Unlock()

	c.send(protocol.New(protocol.TypeAck, protocol.AckPayload{Timestamp: time.Now().UTC()}))
	if completed {
		c.announceConnected(payload.DeviceName)
	}
}

// onPeerAck completes the handshake this side opened, without re-sending.
func (c *Conn) onPeerAck() {
	c.mu.Lock()
	if c.state != Subscribed {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.state = Connected
	device := c.peerDevice
	c.mu.Unlock()

	c.announceConnected(device)
}

// PeerGone is the liveness edge reporting the remote side unreachable.
// Session-level state is torn down but the subscription survives, so a
// later Resubscribe resumes without a full restart.
func (c *Conn) PeerGone() {
	c.transition(func() (State, bool) {
		if c.state != Connected && c.state != Subscribed {
			return 0, false
		}
		c.stopTimerLocked()
		c.peerDevice = ""
		return PeerOffline, true
	})
}

// Resubscribe re-enters Subscribed after PeerOffline, skipping the
// transport re-establishment a cold start would need.
func (c *Conn) Resubscribe() {
	c.transition(func() (State, bool) {
		if c.state != PeerOffline {
			return 0, false
		}
		return Subscribed, true
	})
}

// Disconnect is the explicit, user-initiated detach. Idempotent: calling
// it on an already-disconnected machine is a no-op.
func (c *Conn) Disconnect() {
	c.transition(func() (State, bool) {
		if c.state == Disconnected {
			return 0, false
		}
		c.stopTimerLocked()
		c.peerDevice = ""
		c.reason = ReasonNone
		return Disconnected, true
	})
}

// Fail moves to the absorbing error state from anywhere.
func (c *Conn) Fail(reason ErrorReason) {
	var fired bool
	c.transition(func() (State, bool) {
		if c.state == Failed {
			return 0, false
		}
		c.stopTimerLocked()
		c.reason = reason
		fired = true
		return Failed, true
	})
	if fired {
		c.logger.Warn("connection failed", "reason", reason.String())
		if c.callbacks.OnError != nil {
			c.callbacks.OnError(reason)
		}
	}
}

// transition applies fn under the lock; when fn approves, the state
// changes and OnState fires after unlock.
func (c *Conn) transition(fn func() (State, bool)) {
	c.mu.Lock()
	next, ok := fn()
	if !ok {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = next
	c.mu.Unlock()

	c.logger.Debug("state change", "from", prev.String(), "to", next.String())
	if c.callbacks.OnState != nil {
		c.callbacks.OnState(next)
	}
}

func (c *Conn) announceConnected(device string) {
	c.logger.Info("handshake complete", "peer_device", device)
	if c.callbacks.OnState != nil {
		c.callbacks.OnState(Connected)
	}
	if c.callbacks.OnConnected != nil {
		c.callbacks.OnConnected(device)
	}
}

// stopTimerLocked cancels the handshake timer. Caller holds mu.
func (c *Conn) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Conn) onHandshakeTimeout() {
	c.mu.Lock()
	pending := c.state == Subscribed
	c.mu.Unlock()
	if pending {
		c.Fail(ReasonHandshakeTimeout)
	}
}
