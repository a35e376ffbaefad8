// Package transport carries the remote attach protocol over websockets.
//
// # Overview
//
// A remote client attaches by dialing the hub's /attach endpoint with a
// bearer pairing token. After the HTTP upgrade, each side sends one
// plaintext Hello frame carrying its public key and device name; from
// then on every frame is sealed with a NaCl box shared key derived
// from the two keypairs. The accepting side reads the hello first, the
// dialing side writes first.
//
// # Server
//
// Server is an http.Handler. It verifies the pairing token before the
// upgrade, runs the channel handshake, registers the peer with the hub
// as a remote client, and then pumps: inbound frames become hub
// actions, hub deliveries become outbound frames. Outbound delivery is
// a bounded queue; a peer that stops draining loses messages rather
// than stalling the hub, and scrollback replay covers the gap on the
// next selection.
//
// # Client
//
// Dial performs the same handshake from the other side and returns a
// Channel. Reconnection policy lives with the caller; see the lifecycle
// package for the handshake state machine and backoff.
package transport
