// Package lifecycle tracks the handshake state of one attach connection.
//
// # States
//
// A connection moves Disconnected → Connecting → Subscribing →
// Subscribed → Connected. The side that finishes subscribing first
// announces itself with a connected message; the peer answers with an
// ack, and both sides consider the session up. A handshake that stalls
// past HandshakeTimeout fails the connection rather than hanging.
//
// # Usage
//
// Conn is transport-agnostic: the owner feeds it events
// (ChannelEstablished, Subscribed, PeerGone) and inbound handshake
// messages via HandleMessage, and it emits outbound messages through
// the SendFunc it was built with. Callbacks fire on the transitions the
// owner cares about. Backoff supplies the redial schedule for dialing
// clients: exponential from two seconds, capped, with a bounded attempt
// count.
package lifecycle
