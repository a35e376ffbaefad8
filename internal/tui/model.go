// ABOUTME: Top-level bubbletea model for the local terminal UI.
// ABOUTME: Renders hub snapshots and translates keystrokes into actions.

package tui

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Tonksthebear/trybotster-sub005/internal/action"
	"github.com/Tonksthebear/trybotster-sub005/internal/client"
	"github.com/Tonksthebear/trybotster-sub005/internal/hub"
	"github.com/Tonksthebear/trybotster-sub005/internal/protocol"
)

// Controller is the slice of the hub the UI drives. Satisfied by
// *hub.Hub; tests substitute a recording fake.
type Controller interface {
	Do(ctx context.Context, act action.Action, clientID string) error
	Submit(act action.Action, clientID string)
	Snapshot() hub.Snapshot
	ScrollbackFor(key string) ([]byte, bool)
	Done() <-chan struct{}
}

// FocusRegion identifies where keyboard input routes.
type FocusRegion int

const (
	// FocusList means keys navigate the agent list.
	FocusList FocusRegion = iota
	// FocusTerminal means keys forward to the selected agent's process.
	FocusTerminal
	// FocusSpawn means keystrokes go to the new-agent input.
	FocusSpawn
	// FocusConfirm means a close confirmation is pending (y/n).
	FocusConfirm
)

// listPaneWidth is the fixed width of the agent list column.
const listPaneWidth = 34

// noticeFadeDelay is how long an error notice stays in the status bar.
const noticeFadeDelay = 4 * time.Second

// hubMsg wraps one hub→local-client message for the bubbletea loop.
type hubMsg struct {
	msg protocol.Message
}

// hubClosedMsg is sent when the hub loop exits, however triggered.
type hubClosedMsg struct{}

// noticeFadeMsg clears the status bar notice after a delay.
type noticeFadeMsg struct{}

// Model is the bubbletea model for the hub's local UI.
type Model struct {
	ctrl Controller
	keys KeyMap

	width  int
	height int
	ready  bool

	focus FocusRegion
	snap  hub.Snapshot

	terminal   viewport.Model
	follow     bool
	viewedKey  string
	spawnInput textinput.Model

	// pendingClose holds the close action awaiting y/n confirmation.
	pendingClose action.Action

	workspaces     []protocol.WorkspaceSummary
	showWorkspaces bool

	notice string

	messages <-chan protocol.Message
}

// NewModel creates the UI model reading from ctrl and fed by sink.
func NewModel(ctrl Controller, sink *Sink) Model {
	input := textinput.New()
	input.Placeholder = "issue number or branch, then optional prompt"
	input.Prompt = "spawn> "

	return Model{
		ctrl:       ctrl,
		keys:       DefaultKeyMap,
		snap:       ctrl.Snapshot(),
		terminal:   viewport.New(0, 0),
		follow:     true,
		spawnInput: input,
		messages:   sink.Messages(),
	}
}

// Init implements tea.Model. Starts the hub message listener and the
// shutdown watcher.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		listenForHubMessage(m.messages),
		watchHubDone(m.ctrl.Done()),
	)
}

// listenForHubMessage blocks until the sink delivers a message, then
// hands it to the update loop.
func listenForHubMessage(ch <-chan protocol.Message) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return hubMsg{msg: msg}
	}
}

// watchHubDone turns hub shutdown into a quit, so a remotely issued
// quit action also tears the UI down.
func watchHubDone(done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-done
		return hubClosedMsg{}
	}
}

func noticeFade() tea.Cmd {
	return tea.Tick(noticeFadeDelay, func(time.Time) tea.Msg {
		return noticeFadeMsg{}
	})
}

// Update implements tea.Model.
func (m Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		m.width = message.Width
		m.height = message.Height
		m.ready = true
		m.applyLayout()
		m.ctrl.Submit(action.Action{
			Kind: action.KindResize,
			Rows: uint16(m.terminal.Height),
			Cols: uint16(m.terminal.Width),
		}, client.LocalID)
		m.refreshTerminal()
		return m, nil

	case hubMsg:
		cmd := m.applyHubMessage(message.msg)
		return m, tea.Batch(listenForHubMessage(m.messages), cmd)

	case hubClosedMsg:
		return m, tea.Quit

	case noticeFadeMsg:
		m.notice = ""
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(message)
	}
	return m, nil
}

// applyHubMessage folds one hub delivery into the view state. Most
// message types only signal that hub state moved; the model re-reads
// the snapshot rather than patching its copy.
func (m *Model) applyHubMessage(msg protocol.Message) tea.Cmd {
	switch msg.Type {
	case protocol.TypeOutput, protocol.TypeScrollback:
		var ref struct {
			AgentKey string `json:"agent_key"`
		}
		if err := msg.Decode(&ref); err == nil && ref.AgentKey == m.snap.Selected {
			m.refreshTerminal()
		}

	case protocol.TypeWorkspaces:
		var payload protocol.WorkspacesPayload
		if err := msg.Decode(&payload); err == nil {
			m.workspaces = payload.Workspaces
			m.showWorkspaces = true
		}

	case protocol.TypeError:
		var payload protocol.ErrorPayload
		if err := msg.Decode(&payload); err == nil {
			m.notice = payload.Message
			return noticeFade()
		}

	default:
		// agents, selected, created, deleted: registry state moved.
		m.snap = m.ctrl.Snapshot()
		m.refreshTerminal()
		if m.snap.Selected == "" && m.focus == FocusTerminal {
			m.focus = FocusList
		}
	}
	return nil
}

func (m Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.focus {
	case FocusTerminal:
		return m.handleTerminalKey(message)
	case FocusSpawn:
		return m.handleSpawnKey(message)
	case FocusConfirm:
		return m.handleConfirmKey(message)
	}
	return m.handleListKey(message)
}

func (m Model) handleListKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, m.keys.Quit):
		m.ctrl.Submit(action.Action{Kind: action.KindQuit}, client.LocalID)
		return m, nil

	case key.Matches(message, m.keys.Up):
		m.do(action.Action{Kind: action.KindSelectPrev})

	case key.Matches(message, m.keys.Down):
		m.do(action.Action{Kind: action.KindSelectNext})

	case key.Matches(message, m.keys.Attach):
		if m.snap.Selected != "" {
			m.focus = FocusTerminal
			m.follow = true
			m.terminal.GotoBottom()
		}

	case key.Matches(message, m.keys.NewAgent):
		m.focus = FocusSpawn
		m.spawnInput.SetValue("")
		m.spawnInput.Focus()
		return m, textinput.Blink

	case key.Matches(message, m.keys.CloseDelete):
		if m.snap.Selected != "" {
			m.pendingClose = action.Action{
				Kind:            action.KindClose,
				AgentKey:        m.snap.Selected,
				DeleteWorkspace: true,
			}
			m.focus = FocusConfirm
		}

	case key.Matches(message, m.keys.CloseAgent):
		if m.snap.Selected != "" {
			m.pendingClose = action.Action{
				Kind:     action.KindClose,
				AgentKey: m.snap.Selected,
			}
			m.focus = FocusConfirm
		}

	case key.Matches(message, m.keys.Workspaces):
		if m.showWorkspaces {
			m.showWorkspaces = false
		} else {
			m.ctrl.Submit(action.Action{Kind: action.KindListWorkspaces}, client.LocalID)
		}

	case key.Matches(message, m.keys.Refresh):
		m.ctrl.Submit(action.Action{Kind: action.KindRefreshWorkspaces}, client.LocalID)
		m.ctrl.Submit(action.Action{Kind: action.KindListAgents}, client.LocalID)

	case key.Matches(message, m.keys.TogglePolling):
		m.do(action.Action{Kind: action.KindTogglePolling})

	default:
		if index, ok := digitKey(message); ok {
			m.do(action.Action{Kind: action.KindSelectIndex, Index: index})
		}
	}
	return m, nil
}

// handleTerminalKey forwards keystrokes to the selected agent, keeping
// only the detach chord for itself.
func (m Model) handleTerminalKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(message, m.keys.Detach) {
		m.focus = FocusList
		return m, nil
	}
	if input := keyBytes(message); len(input) > 0 {
		m.ctrl.Submit(action.Action{Kind: action.KindSendInput, Input: input}, client.LocalID)
	}
	return m, nil
}

func (m Model) handleSpawnKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch message.String() {
	case "esc":
		m.focus = FocusList
		m.spawnInput.Blur()
		return m, nil
	case "enter":
		value := strings.TrimSpace(m.spawnInput.Value())
		m.focus = FocusList
		m.spawnInput.Blur()
		if value == "" {
			return m, nil
		}
		m.do(spawnAction(value))
		return m, nil
	}
	var cmd tea.Cmd
	m.spawnInput, cmd = m.spawnInput.Update(message)
	return m, cmd
}

func (m Model) handleConfirmKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch message.String() {
	case "y", "enter":
		m.do(m.pendingClose)
	}
	m.pendingClose = action.Action{}
	m.focus = FocusList
	return m, nil
}

// do runs a synchronous action for the local client and surfaces any
// validation error in the status bar.
func (m *Model) do(act action.Action) {
	if err := m.ctrl.Do(context.Background(), act, client.LocalID); err != nil {
		m.notice = err.Error()
	}
	m.snap = m.ctrl.Snapshot()
	m.refreshTerminal()
}

// refreshTerminal reloads the selected agent's scrollback into the
// viewport. Follows the tail unless the user scrolled away.
func (m *Model) refreshTerminal() {
	selected := m.snap.Selected
	if selected == "" {
		m.viewedKey = ""
		m.terminal.SetContent("")
		return
	}
	contents, ok := m.ctrl.ScrollbackFor(selected)
	if !ok {
		m.viewedKey = ""
		m.terminal.SetContent("")
		return
	}
	switched := selected != m.viewedKey
	m.viewedKey = selected
	m.terminal.SetContent(string(contents))
	if switched || m.follow {
		m.terminal.GotoBottom()
	}
}

// spawnAction parses the spawn input: first token is an issue number or
// a branch name, the remainder becomes the initial prompt.
func spawnAction(value string) action.Action {
	fields := strings.Fields(value)
	act := action.Action{Kind: action.KindSpawn}
	if issue, err := strconv.Atoi(fields[0]); err == nil && issue > 0 {
		act.Issue = issue
	} else {
		act.Branch = fields[0]
	}
	if len(fields) > 1 {
		act.Prompt = strings.Join(fields[1:], " ")
	}
	return act
}

// digitKey maps keys 1-9 to a 1-based list index.
func digitKey(message tea.KeyMsg) (int, bool) {
	s := message.String()
	if len(s) != 1 || s[0] < '1' || s[0] > '9' {
		return 0, false
	}
	return int(s[0] - '0'), true
}

// applyLayout sizes the terminal viewport from the window dimensions,
// leaving the header, status bar, and list pane their fixed space.
func (m *Model) applyLayout() {
	width := m.width - listPaneWidth - 1
	if width < 20 {
		width = 20
	}
	height := m.height - 3
	if height < 5 {
		height = 5
	}
	m.terminal.Width = width
	m.terminal.Height = height
}
