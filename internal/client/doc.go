// Package client models attached viewers and routes hub output to them.
//
// # Overview
//
// A Client is one attached viewer of the hub: the always-present local
// terminal UI (id "local") or a remote device that paired over the
// encrypted attach channel. Both share the same state shape (current
// selection, last-known terminal geometry, a delivery Sink) and differ
// only in how output reaches them.
//
// # Selection Index
//
// The Registry keeps every client plus a reverse index from agent key
// to the set of client ids viewing it. The index is derived data:
// UpdateSelection is the single mutation path, so the index and the
// stored selections can never disagree between two operations. ViewersOf
// answers "who sees this agent's output" in one lookup, and
// RemoveAgentViewers clears every dangling selection when an agent
// dies.
//
// # Geometry
//
// Each client carries its own rows and columns plus the time of its
// last resize. When the local UI views an agent its geometry wins;
// otherwise the most-recently-resized remote viewer decides the
// pseudo-terminal size.
//
// # Delivery
//
// Sink.Deliver must never block the hub's scheduling loop. A false
// return means the peer was slow or gone; the hub drops the message and
// relies on scrollback replay to catch the viewer up.
//
// The Registry is not synchronized; all mutation happens on the hub's
// scheduling loop.
package client
