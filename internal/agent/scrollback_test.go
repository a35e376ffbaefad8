// ABOUTME: Tests for the scrollback ring buffer semantics.
// ABOUTME: Covers wraparound, oversized writes, and offset-based catch-up.

package agent

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrollback_Basic(t *testing.T) {
	s := NewScrollback(16)
	s.Write([]byte("hello"))
	assert.Equal(t, []byte("hello"), s.Contents())
	assert.Equal(t, uint64(5), s.Offset())
}

func TestScrollback_WrapDiscardsOldest(t *testing.T) {
	s := NewScrollback(8)
	s.Write([]byte("abcd"))
	s.Write([]byte("efgh"))
	s.Write([]byte("ij"))

	assert.Equal(t, []byte("cdefghij"), s.Contents())
	assert.Equal(t, uint64(10), s.Offset())
}

func TestScrollback_OversizedWriteKeepsTail(t *testing.T) {
	s := NewScrollback(4)
	s.Write([]byte("0123456789"))
	assert.Equal(t, []byte("6789"), s.Contents())
	assert.Equal(t, uint64(10), s.Offset())
}

func TestScrollback_Since(t *testing.T) {
	s := NewScrollback(32)
	s.Write([]byte("first"))
	mark := s.Offset()
	s.Write([]byte("second"))

	assert.Equal(t, []byte("second"), s.Since(mark))
	assert.Nil(t, s.Since(s.Offset()))
}

func TestScrollback_SinceBeforeRetainedWindow(t *testing.T) {
	s := NewScrollback(4)
	s.Write([]byte("aaaa"))
	s.Write([]byte("bbbb"))

	// Offset 0 predates what's retained; the viewer gets everything left.
	assert.Equal(t, []byte("bbbb"), s.Since(0))
}

func TestScrollback_ManyWrites(t *testing.T) {
	s := NewScrollback(100)
	var all bytes.Buffer
	for i := 0; i < 50; i++ {
		chunk := bytes.Repeat([]byte{byte('a' + i%26)}, 7)
		s.Write(chunk)
		all.Write(chunk)
	}
	want := all.Bytes()
	require.Greater(t, len(want), 100)
	assert.Equal(t, want[len(want)-100:], s.Contents())
}
