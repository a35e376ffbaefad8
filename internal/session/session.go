// ABOUTME: ProcessSession collaborator interface consumed by the hub.
// ABOUTME: One Session is one supervised interactive process on a PTY.

package session

import "context"

// Session is one running interactive process. The hub never spawns OS
// processes itself; it drives a Session and drains its output.
type Session interface {
	// Resize sets the process terminal geometry.
	Resize(rows, cols uint16) error

	// WriteInput forwards bytes to the process verbatim.
	WriteInput(data []byte) error

	// DrainOutput returns output produced since the last drain, possibly
	// empty. It never blocks.
	DrainOutput() []byte

	// Running reports whether the process is still alive.
	Running() bool

	// Close terminates the process and releases the PTY.
	Close() error
}

// Spec describes the process a Factory should start.
type Spec struct {
	Command string
	Args    []string
	Dir     string
	Env     []string
	Rows    uint16
	Cols    uint16
}

// Factory spawns Sessions. The context bounds the spawn itself, not the
// lifetime of the resulting process.
type Factory interface {
	Spawn(ctx context.Context, spec Spec) (Session, error)
}
