// ABOUTME: Bounded scrollback buffer retaining recent agent output for late viewers.
// ABOUTME: Circular storage with a monotonic byte offset for catch-up reads.

package agent

import "sync"

// DefaultScrollbackSize is the default retained history per agent in
// bytes. Escape sequences are preserved so a late viewer replays the
// terminal state faithfully.
const DefaultScrollbackSize = 256 * 1024

// Scrollback is a fixed-capacity circular byte buffer. Writes past
// capacity overwrite the oldest data. A monotonically increasing offset
// counts every byte ever written, so a viewer can record where it left
// off and ask for everything since.
//
// Safe for concurrent use.
type Scrollback struct {
	mu    sync.Mutex
	buf   []byte
	head  int    // next write position in buf
	count int    // bytes currently stored, <= cap(buf)
	total uint64 // bytes ever written
}

// NewScrollback creates a buffer retaining up to capacity bytes.
func NewScrollback(capacity int) *Scrollback {
	if capacity <= 0 {
		capacity = DefaultScrollbackSize
	}
	return &Scrollback{buf: make([]byte, capacity)}
}

// Write appends output bytes, discarding the oldest history when full.
func (s *Scrollback) Write(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	capacity := len(s.buf)
	if len(data) >= capacity {
		// The write alone fills the buffer; keep only its tail.
		copy(s.buf, data[len(data)-capacity:])
		s.head = 0
		s.count = capacity
		s.total += uint64(len(data))
		return
	}

	for off := 0; off < len(data); {
		n := copy(s.buf[s.head:], data[off:])
		s.head = (s.head + n) % capacity
		off += n
	}
	s.count += len(data)
	if s.count > capacity {
		s.count = capacity
	}
	s.total += uint64(len(data))
}

// Contents returns everything currently retained, oldest first.
func (s *Scrollback) Contents() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(s.total - uint64(s.count))
}

// Since returns all bytes written after the given offset. If the offset
// predates the retained window, everything retained is returned (the
// caller missed some output). Returns nil when nothing is newer.
func (s *Scrollback) Since(offset uint64) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if offset >= s.total {
		return nil
	}
	oldest := s.total - uint64(s.count)
	if offset < oldest {
		offset = oldest
	}
	return s.readLocked(offset)
}

// Offset returns the total number of bytes ever written. A viewer stores
// this and passes it to Since after reconnecting.
func (s *Scrollback) Offset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// readLocked copies out bytes from absolute offset to the write head.
// Caller holds mu; offset is within the retained window.
func (s *Scrollback) readLocked(offset uint64) []byte {
	n := int(s.total - offset)
	if n == 0 {
		return nil
	}
	capacity := len(s.buf)
	out := make([]byte, n)

	start := (s.head - n) % capacity
	if start < 0 {
		start += capacity
	}
	for copied := 0; copied < n; {
		c := copy(out[copied:], s.buf[start:])
		start = (start + c) % capacity
		copied += c
	}
	return out
}
