// ABOUTME: Key bindings for the local terminal UI.
// ABOUTME: List-mode bindings only; attached mode forwards raw keys to the agent.

package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the list-mode key bindings. While a client is attached
// to an agent's terminal, every key except Detach is forwarded verbatim.
type KeyMap struct {
	Up   key.Binding
	Down key.Binding

	// Attach hands keyboard focus to the selected agent's terminal.
	Attach key.Binding
	// Detach returns focus to the agent list. Bound to a chord that no
	// interactive agent plausibly needs.
	Detach key.Binding

	NewAgent    key.Binding
	CloseAgent  key.Binding
	CloseDelete key.Binding

	Workspaces    key.Binding
	Refresh       key.Binding
	TogglePolling key.Binding

	Quit key.Binding
}

// DefaultKeyMap is the built-in binding set, vim keys alongside arrows.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "previous agent"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "next agent"),
	),
	Attach: key.NewBinding(
		key.WithKeys("enter", "i"),
		key.WithHelp("enter", "attach"),
	),
	Detach: key.NewBinding(
		key.WithKeys("ctrl+]"),
		key.WithHelp("C-]", "detach"),
	),
	NewAgent: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "new agent"),
	),
	CloseAgent: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "close agent"),
	),
	CloseDelete: key.NewBinding(
		key.WithKeys("X"),
		key.WithHelp("X", "close + delete workspace"),
	),
	Workspaces: key.NewBinding(
		key.WithKeys("w"),
		key.WithHelp("w", "workspaces"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	TogglePolling: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "pause output"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
