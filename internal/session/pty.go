// ABOUTME: PTY-backed Session implementation using the Linux devpts interface.
// ABOUTME: Output is read continuously into a bounded buffer drained by the hub.

package session

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// maxPendingOutput caps the undrained output buffer. If the hub stops
// draining (paused polling), older bytes are discarded first so the
// reader goroutine never blocks the process.
const maxPendingOutput = 256 * 1024

// PTYFactory spawns real processes on pseudo-terminals.
type PTYFactory struct{}

// Spawn starts the process described by spec with a fresh PTY as its
// controlling terminal.
func (PTYFactory) Spawn(ctx context.Context, spec Spec) (Session, error) {
	if spec.Command == "" {
		return nil, fmt.Errorf("spawn: command is required")
	}

	master, slavePath, err := openPTY()
	if err != nil {
		return nil, fmt.Errorf("allocating PTY: %w", err)
	}

	if spec.Rows > 0 && spec.Cols > 0 {
		if err := setWindowSize(int(master.Fd()), spec.Rows, spec.Cols); err != nil {
			master.Close()
			return nil, fmt.Errorf("setting initial PTY size: %w", err)
		}
	}

	slave, err := os.OpenFile(slavePath, os.O_RDWR, 0)
	if err != nil {
		master.Close()
		return nil, fmt.Errorf("opening PTY slave %s: %w", slavePath, err)
	}

	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
		Ctty:    0, // fd 0 in the child is the slave PTY
	}

	if err := cmd.Start(); err != nil {
		slave.Close()
		master.Close()
		return nil, fmt.Errorf("starting %s: %w", spec.Command, err)
	}
	// The child holds its own copy of the slave via fd 0/1/2.
	slave.Close()

	s := &ptySession{
		master: master,
		cmd:    cmd,
	}
	go s.readLoop()
	go s.waitLoop()
	return s, nil
}

type ptySession struct {
	master *os.File
	cmd    *exec.Cmd

	mu      sync.Mutex
	pending []byte
	exited  bool
	closed  bool
}

func (s *ptySession) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := s.master.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.pending = append(s.pending, buf[:n]...)
			if over := len(s.pending) - maxPendingOutput; over > 0 {
				s.pending = s.pending[over:]
			}
			s.mu.Unlock()
		}
		if err != nil {
			// EIO is the normal signal that the slave side closed.
			return
		}
	}
}

func (s *ptySession) waitLoop() {
	_ = s.cmd.Wait()
	s.mu.Lock()
	s.exited = true
	s.mu.Unlock()
}

func (s *ptySession) Resize(rows, cols uint16) error {
	return setWindowSize(int(s.master.Fd()), rows, cols)
}

func (s *ptySession) WriteInput(data []byte) error {
	if _, err := s.master.Write(data); err != nil {
		return fmt.Errorf("writing to PTY: %w", err)
	}
	return nil
}

func (s *ptySession) DrainOutput() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	out := s.pending
	s.pending = nil
	return out
}

func (s *ptySession) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.exited
}

func (s *ptySession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.cmd.Process != nil {
		_ = s.cmd.Process.Signal(syscall.SIGTERM)
	}
	return s.master.Close()
}

// openPTY allocates a PTY master/slave pair via /dev/ptmx and returns
// the master plus the filesystem path to the slave.
func openPTY() (master *os.File, slavePath string, err error) {
	master, err = os.OpenFile("/dev/ptmx", os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return nil, "", fmt.Errorf("open /dev/ptmx: %w", err)
	}

	fd := int(master.Fd())

	ptyNumber, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		master.Close()
		return nil, "", fmt.Errorf("get PTY number (TIOCGPTN): %w", err)
	}
	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
		master.Close()
		return nil, "", fmt.Errorf("unlock PTY slave (TIOCSPTLCK): %w", err)
	}

	return master, fmt.Sprintf("/dev/pts/%d", ptyNumber), nil
}

// setWindowSize applies TIOCSWINSZ on a PTY master fd, propagating
// SIGWINCH to the foreground process group on the slave side.
func setWindowSize(fd int, rows, cols uint16) error {
	return unix.IoctlSetWinsize(fd, unix.TIOCSWINSZ, &unix.Winsize{
		Row: rows,
		Col: cols,
	})
}
