// ABOUTME: Tests for the local UI model: key routing, action emission,
// ABOUTME: and view state derived from hub snapshots and deliveries.

package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tonksthebear/trybotster-sub005/internal/action"
	"github.com/Tonksthebear/trybotster-sub005/internal/client"
	"github.com/Tonksthebear/trybotster-sub005/internal/hub"
	"github.com/Tonksthebear/trybotster-sub005/internal/protocol"
)

// fakeController records every action the model emits and serves a
// scripted snapshot and scrollback.
type fakeController struct {
	snap       hub.Snapshot
	scrollback map[string][]byte
	doErr      error

	did       []action.Action
	submitted []action.Action
	done      chan struct{}
}

func newFakeController() *fakeController {
	return &fakeController{
		scrollback: make(map[string][]byte),
		done:       make(chan struct{}),
	}
}

func (f *fakeController) Do(_ context.Context, act action.Action, clientID string) error {
	if clientID != client.LocalID {
		panic("local UI must act as the local client")
	}
	f.did = append(f.did, act)
	return f.doErr
}

func (f *fakeController) Submit(act action.Action, clientID string) {
	if clientID != client.LocalID {
		panic("local UI must act as the local client")
	}
	f.submitted = append(f.submitted, act)
}

func (f *fakeController) Snapshot() hub.Snapshot { return f.snap }

func (f *fakeController) ScrollbackFor(key string) ([]byte, bool) {
	b, ok := f.scrollback[key]
	return b, ok
}

func (f *fakeController) Done() <-chan struct{} { return f.done }

func newTestModel(t *testing.T, ctrl *fakeController) Model {
	t.Helper()
	m := NewModel(ctrl, NewSink())
	return resize(m, 100, 30)
}

func resize(m Model, width, height int) Model {
	updated, _ := m.Update(tea.WindowSizeMsg{Width: width, Height: height})
	return updated.(Model)
}

func press(m Model, keys ...string) Model {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "ctrl+]":
			msg = tea.KeyMsg{Type: tea.KeyCtrlCloseBracket}
		case "up":
			msg = tea.KeyMsg{Type: tea.KeyUp}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		updated, _ := m.Update(msg)
		m = updated.(Model)
	}
	return m
}

func deliver(m Model, msg protocol.Message) Model {
	updated, _ := m.Update(hubMsg{msg: msg})
	return updated.(Model)
}

func twoAgentSnapshot() hub.Snapshot {
	return hub.Snapshot{
		Agents: []protocol.AgentSummary{
			{Key: "octo/widgets#issue-1", Branch: "issue-1", Running: true},
			{Key: "octo/widgets#issue-2", Branch: "issue-2", Running: false},
		},
		Cursor:   0,
		Selected: "octo/widgets#issue-1",
		Clients:  1,
		Polling:  true,
	}
}

func TestWindowSizeSubmitsLocalGeometry(t *testing.T) {
	ctrl := newFakeController()
	newTestModel(t, ctrl)

	require.Len(t, ctrl.submitted, 1)
	act := ctrl.submitted[0]
	assert.Equal(t, action.KindResize, act.Kind)
	// Header and status bar take two rows, the layout floor takes one;
	// the list pane and divider take their fixed columns.
	assert.Equal(t, uint16(27), act.Rows)
	assert.Equal(t, uint16(65), act.Cols)
}

func TestCursorKeysEmitSelectActions(t *testing.T) {
	ctrl := newFakeController()
	m := newTestModel(t, ctrl)

	m = press(m, "j", "k")
	press(m, "3")

	require.Len(t, ctrl.did, 3)
	assert.Equal(t, action.KindSelectNext, ctrl.did[0].Kind)
	assert.Equal(t, action.KindSelectPrev, ctrl.did[1].Kind)
	assert.Equal(t, action.KindSelectIndex, ctrl.did[2].Kind)
	assert.Equal(t, 3, ctrl.did[2].Index)
}

func TestQuitSubmitsQuitAction(t *testing.T) {
	ctrl := newFakeController()
	m := newTestModel(t, ctrl)
	ctrl.submitted = nil

	press(m, "q")

	require.Len(t, ctrl.submitted, 1)
	assert.Equal(t, action.KindQuit, ctrl.submitted[0].Kind)
}

func TestHubShutdownQuitsProgram(t *testing.T) {
	ctrl := newFakeController()
	m := newTestModel(t, ctrl)

	_, cmd := m.Update(hubClosedMsg{})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestAttachForwardsKeysUntilDetach(t *testing.T) {
	ctrl := newFakeController()
	ctrl.snap = twoAgentSnapshot()
	m := newTestModel(t, ctrl)
	m = deliver(m, protocol.New(protocol.TypeAgents, protocol.AgentsPayload{}))
	ctrl.submitted = nil

	m = press(m, "enter") // Attach.
	m = press(m, "ls", "enter")

	require.Len(t, ctrl.submitted, 2)
	assert.Equal(t, action.KindSendInput, ctrl.submitted[0].Kind)
	assert.Equal(t, []byte("ls"), ctrl.submitted[0].Input)
	assert.Equal(t, []byte("\r"), ctrl.submitted[1].Input)

	// Detach: the next j moves the cursor instead of typing.
	m = press(m, "ctrl+]")
	press(m, "j")
	require.Len(t, ctrl.submitted, 2)
	require.Len(t, ctrl.did, 1)
	assert.Equal(t, action.KindSelectNext, ctrl.did[0].Kind)
}

func TestAttachWithoutSelectionIsNoop(t *testing.T) {
	ctrl := newFakeController()
	m := newTestModel(t, ctrl)

	m = press(m, "enter")
	assert.Equal(t, FocusList, m.focus)
}

func TestDeselectedAgentDropsTerminalFocus(t *testing.T) {
	ctrl := newFakeController()
	ctrl.snap = twoAgentSnapshot()
	m := newTestModel(t, ctrl)
	m = deliver(m, protocol.New(protocol.TypeAgents, protocol.AgentsPayload{}))
	m = press(m, "enter")
	require.Equal(t, FocusTerminal, m.focus)

	// The viewed agent gets closed out from under the attachment.
	ctrl.snap = hub.Snapshot{Polling: true}
	m = deliver(m, protocol.New(protocol.TypeDeleted, protocol.DeletedPayload{AgentKey: "octo/widgets#issue-1"}))

	assert.Equal(t, FocusList, m.focus)
}

func TestSpawnInputParsesIssueAndPrompt(t *testing.T) {
	ctrl := newFakeController()
	m := newTestModel(t, ctrl)

	m = press(m, "n")
	require.Equal(t, FocusSpawn, m.focus)
	m = press(m, "42 fix the flaky test", "enter")

	require.Len(t, ctrl.did, 1)
	act := ctrl.did[0]
	assert.Equal(t, action.KindSpawn, act.Kind)
	assert.Equal(t, 42, act.Issue)
	assert.Empty(t, act.Branch)
	assert.Equal(t, "fix the flaky test", act.Prompt)
	assert.Equal(t, FocusList, m.focus)
}

func TestSpawnInputBranchName(t *testing.T) {
	act := spawnAction("hotfix-login")
	assert.Equal(t, "hotfix-login", act.Branch)
	assert.Zero(t, act.Issue)

	act = spawnAction("hotfix-login retry the deploy")
	assert.Equal(t, "hotfix-login", act.Branch)
	assert.Equal(t, "retry the deploy", act.Prompt)
}

func TestSpawnEscapeCancels(t *testing.T) {
	ctrl := newFakeController()
	m := newTestModel(t, ctrl)

	m = press(m, "n", "42", "esc")
	assert.Equal(t, FocusList, m.focus)
	assert.Empty(t, ctrl.did)
}

func TestCloseRequiresConfirmation(t *testing.T) {
	ctrl := newFakeController()
	ctrl.snap = twoAgentSnapshot()
	m := newTestModel(t, ctrl)
	m = deliver(m, protocol.New(protocol.TypeAgents, protocol.AgentsPayload{}))

	// Declined: nothing happens.
	m = press(m, "x", "n")
	assert.Empty(t, ctrl.did)
	assert.Equal(t, FocusList, m.focus)

	// Confirmed: close without workspace deletion.
	m = press(m, "x", "y")
	require.Len(t, ctrl.did, 1)
	assert.Equal(t, action.KindClose, ctrl.did[0].Kind)
	assert.Equal(t, "octo/widgets#issue-1", ctrl.did[0].AgentKey)
	assert.False(t, ctrl.did[0].DeleteWorkspace)

	// Shifted variant deletes the workspace too.
	press(m, "X", "y")
	require.Len(t, ctrl.did, 2)
	assert.True(t, ctrl.did[1].DeleteWorkspace)
}

func TestErrorDeliveryShowsNotice(t *testing.T) {
	ctrl := newFakeController()
	m := newTestModel(t, ctrl)

	m = deliver(m, protocol.NewError("maximum concurrent sessions reached"))

	assert.Contains(t, m.View(), "maximum concurrent sessions reached")

	updated, _ := m.Update(noticeFadeMsg{})
	m = updated.(Model)
	assert.NotContains(t, m.View(), "maximum concurrent sessions reached")
}

func TestScrollbackRendersForSelectedAgent(t *testing.T) {
	ctrl := newFakeController()
	ctrl.snap = twoAgentSnapshot()
	ctrl.scrollback["octo/widgets#issue-1"] = []byte("$ go test ./...\nok\n")
	m := newTestModel(t, ctrl)

	m = deliver(m, protocol.New(protocol.TypeAgents, protocol.AgentsPayload{}))

	view := m.View()
	assert.Contains(t, view, "go test ./...")
	assert.Contains(t, view, "issue-1")
	assert.Contains(t, view, "issue-2")
}

func TestOutputForOtherAgentDoesNotTouchTerminal(t *testing.T) {
	ctrl := newFakeController()
	ctrl.snap = twoAgentSnapshot()
	ctrl.scrollback["octo/widgets#issue-1"] = []byte("selected output")
	m := newTestModel(t, ctrl)
	m = deliver(m, protocol.New(protocol.TypeAgents, protocol.AgentsPayload{}))

	ctrl.scrollback["octo/widgets#issue-2"] = []byte("other output")
	m = deliver(m, protocol.New(protocol.TypeOutput, protocol.OutputPayload{
		AgentKey: "octo/widgets#issue-2",
		Bytes:    []byte("other output"),
	}))

	view := m.View()
	assert.Contains(t, view, "selected output")
	assert.NotContains(t, view, "other output")
}

func TestWorkspacesToggle(t *testing.T) {
	ctrl := newFakeController()
	m := newTestModel(t, ctrl)
	ctrl.submitted = nil

	m = press(m, "w")
	require.Len(t, ctrl.submitted, 1)
	assert.Equal(t, action.KindListWorkspaces, ctrl.submitted[0].Kind)

	m = deliver(m, protocol.New(protocol.TypeWorkspaces, protocol.WorkspacesPayload{
		Workspaces: []protocol.WorkspaceSummary{{Path: "/tmp/wt/issue-9", Branch: "issue-9"}},
	}))
	assert.Contains(t, m.View(), "issue-9")

	// Second press closes the panel without another request.
	m = press(m, "w")
	assert.NotContains(t, m.View(), "issue-9")
	assert.Len(t, ctrl.submitted, 1)
}

func TestSinkDeliverNeverBlocks(t *testing.T) {
	sink := NewSink()
	for i := 0; i < sinkDepth; i++ {
		require.True(t, sink.Deliver(protocol.New(protocol.TypeAck, nil)))
	}

	done := make(chan bool, 1)
	go func() {
		done <- sink.Deliver(protocol.New(protocol.TypeAck, nil))
	}()
	select {
	case accepted := <-done:
		assert.False(t, accepted)
	case <-time.After(time.Second):
		t.Fatal("Deliver blocked on a full sink")
	}
}

func TestKeyBytes(t *testing.T) {
	tests := []struct {
		name string
		msg  tea.KeyMsg
		want []byte
	}{
		{"runes", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("abc")}, []byte("abc")},
		{"alt rune", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("f"), Alt: true}, []byte{0x1b, 'f'}},
		{"enter", tea.KeyMsg{Type: tea.KeyEnter}, []byte{'\r'}},
		{"tab", tea.KeyMsg{Type: tea.KeyTab}, []byte{'\t'}},
		{"backspace", tea.KeyMsg{Type: tea.KeyBackspace}, []byte{0x7f}},
		{"escape", tea.KeyMsg{Type: tea.KeyEsc}, []byte{0x1b}},
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}, []byte{0x03}},
		{"up arrow", tea.KeyMsg{Type: tea.KeyUp}, []byte("\x1b[A")},
		{"page down", tea.KeyMsg{Type: tea.KeyPgDown}, []byte("\x1b[6~")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, keyBytes(tt.msg))
		})
	}
}

func TestViewBeforeFirstResize(t *testing.T) {
	ctrl := newFakeController()
	m := NewModel(ctrl, NewSink())
	assert.NotPanics(t, func() { _ = m.View() })
	// No geometry report until the terminal size is known.
	assert.False(t, strings.Contains(m.View(), "agents"))
}
