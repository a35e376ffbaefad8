// ABOUTME: Local delivery sink bridging hub messages into the bubbletea loop.
// ABOUTME: Non-blocking by contract; a full channel drops and the hub carries on.

package tui

import "github.com/Tonksthebear/trybotster-sub005/internal/protocol"

const sinkDepth = 256

// Sink is the local client's delivery path. The hub calls Deliver from
// its loop goroutine; the model drains Messages through a bubbletea
// command. Dropped messages are harmless: the model re-reads hub state
// on every message, so the next delivery repairs the view.
type Sink struct {
	ch chan protocol.Message
}

// NewSink creates a sink with a bounded buffer.
func NewSink() *Sink {
	return &Sink{ch: make(chan protocol.Message, sinkDepth)}
}

// Deliver queues a message for the UI without blocking the hub loop.
func (s *Sink) Deliver(msg protocol.Message) bool {
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

// Messages exposes the delivery stream for the model's listen command.
func (s *Sink) Messages() <-chan protocol.Message {
	return s.ch
}
