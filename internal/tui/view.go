// ABOUTME: Rendering for the local terminal UI.
// ABOUTME: Fixed-width agent list beside the selected agent's terminal pane.

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
	runningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	exitedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	borderStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "starting..."
	}

	header := m.renderHeader()
	left := m.renderListPane()
	divider := borderStyle.Render(strings.Repeat("│\n", m.terminal.Height))
	divider = strings.TrimSuffix(divider, "\n")
	right := m.terminal.View()

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(listPaneWidth).Height(m.terminal.Height).Render(left),
		divider,
		right,
	)

	return strings.Join([]string{header, body, m.renderStatusBar()}, "\n")
}

func (m Model) renderHeader() string {
	running := 0
	for _, a := range m.snap.Agents {
		if a.Running {
			running++
		}
	}
	parts := []string{
		headerStyle.Render("botster"),
		fmt.Sprintf("%d agents (%d running)", len(m.snap.Agents), running),
		fmt.Sprintf("%d clients", m.snap.Clients),
	}
	if !m.snap.Polling {
		parts = append(parts, noticeStyle.Render("output paused"))
	}
	return dimStyle.Render(strings.Join(parts, "  ·  "))
}

func (m Model) renderListPane() string {
	if m.showWorkspaces {
		return m.renderWorkspaces()
	}
	if len(m.snap.Agents) == 0 {
		return dimStyle.Render("no agents\n\npress n to spawn one")
	}

	lines := make([]string, 0, len(m.snap.Agents))
	for i, a := range m.snap.Agents {
		marker := "  "
		if i == m.snap.Cursor {
			marker = cursorStyle.Render("> ")
		}
		// Truncate before styling so the cut cannot land inside an
		// escape sequence.
		label := truncate(fmt.Sprintf("%d · %s", i+1, a.Branch), listPaneWidth-4)
		if a.Key == m.snap.Selected {
			label = selectedStyle.Render(label)
		}
		status := runningStyle.Render("●")
		if !a.Running {
			status = exitedStyle.Render("○")
		}
		lines = append(lines, marker+status+" "+label)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderWorkspaces() string {
	lines := []string{headerStyle.Render("workspaces"), ""}
	if len(m.workspaces) == 0 {
		lines = append(lines, dimStyle.Render("none available"))
	}
	for _, ws := range m.workspaces {
		lines = append(lines, truncate(ws.Branch, listPaneWidth-2))
		lines = append(lines, dimStyle.Render(truncate(ws.Path, listPaneWidth-2)))
	}
	lines = append(lines, "", dimStyle.Render("w to close"))
	return strings.Join(lines, "\n")
}

func (m Model) renderStatusBar() string {
	switch m.focus {
	case FocusSpawn:
		return m.spawnInput.View()
	case FocusConfirm:
		verb := "close"
		if m.pendingClose.DeleteWorkspace {
			verb = "close and delete workspace of"
		}
		return noticeStyle.Render(fmt.Sprintf("%s %s? (y/n)", verb, m.pendingClose.AgentKey))
	case FocusTerminal:
		return dimStyle.Render(fmt.Sprintf("attached to %s  ·  C-] to detach", m.snap.Selected))
	}
	if m.notice != "" {
		return noticeStyle.Render(m.notice)
	}
	return dimStyle.Render("j/k select · enter attach · n new · x close · w workspaces · p pause · q quit")
}

// truncate clips plain text to width.
func truncate(s string, width int) string {
	runes := []rune(s)
	if width <= 1 || len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
