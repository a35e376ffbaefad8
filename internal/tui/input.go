// ABOUTME: Keystroke-to-terminal-byte encoding for attached mode.
// ABOUTME: Reconstructs the byte sequences bubbletea parsed out of stdin.

package tui

import tea "github.com/charmbracelet/bubbletea"

// specialKeys maps bubbletea's named keys back to the ANSI sequences an
// interactive process expects on its pty.
var specialKeys = map[tea.KeyType][]byte{
	tea.KeyUp:       []byte("\x1b[A"),
	tea.KeyDown:     []byte("\x1b[B"),
	tea.KeyRight:    []byte("\x1b[C"),
	tea.KeyLeft:     []byte("\x1b[D"),
	tea.KeyHome:     []byte("\x1b[H"),
	tea.KeyEnd:      []byte("\x1b[F"),
	tea.KeyPgUp:     []byte("\x1b[5~"),
	tea.KeyPgDown:   []byte("\x1b[6~"),
	tea.KeyDelete:   []byte("\x1b[3~"),
	tea.KeyInsert:   []byte("\x1b[2~"),
	tea.KeyShiftTab: []byte("\x1b[Z"),
}

// keyBytes encodes a key message as the bytes to write to the selected
// agent's process. Returns nil for keys with no terminal encoding.
func keyBytes(msg tea.KeyMsg) []byte {
	if msg.Type == tea.KeyRunes {
		encoded := []byte(string(msg.Runes))
		if msg.Alt {
			return append([]byte{0x1b}, encoded...)
		}
		return encoded
	}
	if seq, ok := specialKeys[msg.Type]; ok {
		return seq
	}
	// Control keys, tab, enter, escape, space, and backspace all carry
	// their byte value as the key type.
	if msg.Type >= 0 && msg.Type <= 0x7f {
		b := []byte{byte(msg.Type)}
		if msg.Alt {
			return append([]byte{0x1b}, b...)
		}
		return b
	}
	return nil
}
