// ABOUTME: Loop-level tests for dispatch, routing, and geometry policy.
// ABOUTME: Collaborators are in-memory fakes; assertions poll snapshots.

package hub

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tonksthebear/trybotster-sub005/internal/action"
	"github.com/Tonksthebear/trybotster-sub005/internal/client"
	"github.com/Tonksthebear/trybotster-sub005/internal/protocol"
	"github.com/Tonksthebear/trybotster-sub005/internal/session"
	"github.com/Tonksthebear/trybotster-sub005/internal/workspace"
)

const (
	waitFor = 2 * time.Second
	tick    = 2 * time.Millisecond
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSession struct {
	mu      sync.Mutex
	pending []byte
	inputs  []byte
	resizes [][2]uint16
	rows    uint16
	cols    uint16
	exited  bool
	closed  bool
}

func (s *fakeSession) feed(data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, data...)
}

func (s *fakeSession) Resize(rows, cols uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resizes = append(s.resizes, [2]uint16{rows, cols})
	s.rows, s.cols = rows, cols
	return nil
}

func (s *fakeSession) WriteInput(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, data...)
	return nil
}

func (s *fakeSession) DrainOutput() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

func (s *fakeSession) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.exited && !s.closed
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) inputString() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.inputs)
}

func (s *fakeSession) geometry() (uint16, uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows, s.cols
}

type fakeFactory struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession // keyed by workspace dir, primary only
	all      []*fakeSession
	specs    []session.Spec
	spawns   int
	fail     error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{sessions: make(map[string]*fakeSession)}
}

func (f *fakeFactory) Spawn(_ context.Context, spec session.Spec) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	f.spawns++
	s := &fakeSession{rows: spec.Rows, cols: spec.Cols}
	if _, ok := f.sessions[spec.Dir]; !ok {
		f.sessions[spec.Dir] = s
	}
	f.all = append(f.all, s)
	f.specs = append(f.specs, spec)
	return s, nil
}

func (f *fakeFactory) allSpecs() []session.Spec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]session.Spec(nil), f.specs...)
}

func (f *fakeFactory) sessionAt(i int) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.all[i]
}

func (f *fakeFactory) session(dir string) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[dir]
}

func (f *fakeFactory) spawnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spawns
}

type fakeManager struct {
	mu      sync.Mutex
	created []string
	deleted []string
	listing []workspace.Workspace
}

func (m *fakeManager) Create(_ context.Context, branch string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, branch)
	return "/ws/" + branch, nil
}

func (m *fakeManager) Delete(_ context.Context, path, branch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, branch)
	return nil
}

func (m *fakeManager) ListAll(context.Context) ([]workspace.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listing, nil
}

func (m *fakeManager) deletedBranches() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

type recordingSink struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (s *recordingSink) Deliver(msg protocol.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return true
}

func (s *recordingSink) messages() []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Message(nil), s.msgs...)
}

func (s *recordingSink) typed(msgType string) []protocol.Message {
	var out []protocol.Message
	for _, m := range s.messages() {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

type testHub struct {
	hub     *Hub
	factory *fakeFactory
	wsman   *fakeManager
	local   *recordingSink
	ctx     context.Context
}

func newTestHub(t *testing.T, mutate func(*Config)) *testHub {
	t.Helper()
	cfg := Config{
		Repo:         "octo/widgets",
		BranchPrefix: "issue",
		Command:      "agent",
		MaxSessions:  5,
		PollInterval: 5 * time.Millisecond,
		Rows:         24,
		Cols:         80,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	th := &testHub{
		factory: newFakeFactory(),
		wsman:   &fakeManager{},
		local:   &recordingSink{},
	}
	th.hub = New(cfg, th.factory, th.wsman, th.local, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	th.ctx = ctx
	go th.hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-th.hub.Done()
	})
	return th
}

// spawnAndWait spawns by branch and blocks until the agent is registered.
func (th *testHub) spawnAndWait(t *testing.T, branch string) string {
	t.Helper()
	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindSpawn, Branch: branch}, client.LocalID))
	key := "octo/widgets#" + branch
	require.Eventually(t, func() bool {
		_, ok := th.hub.ScrollbackFor(key)
		return ok
	}, waitFor, tick)
	return key
}

func (th *testHub) attachRemote(t *testing.T, id string) *recordingSink {
	t.Helper()
	sink := &recordingSink{}
	require.NoError(t, th.hub.AttachClient(th.ctx, &client.Client{ID: id, Remote: true, Sink: sink}))
	return sink
}

func TestSpawn_RegistersAgent(t *testing.T) {
	th := newTestHub(t, nil)

	key := th.spawnAndWait(t, "feature-x")

	snap := th.hub.Snapshot()
	require.Len(t, snap.Agents, 1)
	assert.Equal(t, key, snap.Agents[0].Key)
	assert.Equal(t, "feature-x", snap.Agents[0].Branch)
	assert.True(t, snap.Agents[0].Running)

	created := th.local.typed(protocol.TypeCreated)
	require.NotEmpty(t, created)
	var payload protocol.CreatedPayload
	require.NoError(t, created[0].Decode(&payload))
	assert.Equal(t, key, payload.AgentKey)
}

func TestSpawn_ByIssueDerivesBranch(t *testing.T) {
	th := newTestHub(t, nil)

	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindSpawn, Issue: 42}, client.LocalID))
	require.Eventually(t, func() bool {
		_, ok := th.hub.ScrollbackFor("octo/widgets#issue-42")
		return ok
	}, waitFor, tick)
}

func TestSpawn_DuplicateKeyIsSilentNoop(t *testing.T) {
	th := newTestHub(t, nil)

	th.spawnAndWait(t, "feature-x")
	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindSpawn, Branch: "feature-x"}, client.LocalID))

	// The second request consumed no spawn slot and started no process.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, th.factory.spawnCount())
	assert.Len(t, th.hub.Snapshot().Agents, 1)
}

func TestSpawn_MaxSessions(t *testing.T) {
	th := newTestHub(t, func(c *Config) { c.MaxSessions = 1 })

	th.spawnAndWait(t, "first")
	err := th.hub.Do(th.ctx, action.Action{Kind: action.KindSpawn, Branch: "second"}, client.LocalID)
	assert.ErrorIs(t, err, action.ErrMaxSessions)
}

func TestSpawn_MissingBranchAndIssue(t *testing.T) {
	th := newTestHub(t, nil)

	err := th.hub.Do(th.ctx, action.Action{Kind: action.KindSpawn}, client.LocalID)
	var missing *action.MissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "branch", missing.Field)
}

func TestSpawn_PromptWrittenToProcess(t *testing.T) {
	th := newTestHub(t, nil)

	require.NoError(t, th.hub.Do(th.ctx, action.Action{
		Kind: action.KindSpawn, Branch: "prompted", Prompt: "fix the tests",
	}, client.LocalID))
	require.Eventually(t, func() bool {
		s := th.factory.session("/ws/prompted")
		return s != nil && s.inputString() == "fix the tests\n"
	}, waitFor, tick)
}

func TestSpawn_HelperStartsWithAllocatedPort(t *testing.T) {
	th := newTestHub(t, func(c *Config) {
		c.HelperCommand = "helper-bin"
		c.HelperArgs = []string{"--serve"}
	})
	th.spawnAndWait(t, "assisted")

	snap := th.hub.Snapshot()
	require.Len(t, snap.Agents, 1)
	assert.NotZero(t, snap.Agents[0].Port)

	specs := th.factory.allSpecs()
	require.Len(t, specs, 2)
	assert.Equal(t, "helper-bin", specs[1].Command)
	assert.Equal(t, []string{"--serve"}, specs[1].Args)
	assert.Equal(t, "/ws/assisted", specs[1].Dir)
	assert.Contains(t, specs[1].Env, fmt.Sprintf("PORT=%d", snap.Agents[0].Port))
}

func TestHelperOutput_NotFannedOutToViewers(t *testing.T) {
	th := newTestHub(t, func(c *Config) { c.HelperCommand = "helper-bin" })
	key := th.spawnAndWait(t, "assisted")
	require.Len(t, th.factory.allSpecs(), 2)

	remote := th.attachRemote(t, "remote-1")
	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindSelect, AgentKey: key}, "remote-1"))

	// Helper output is buffered for inspection, never streamed. Feed
	// the primary afterwards and wait for its chunk as the fence.
	th.factory.sessionAt(1).feed("helper noise")
	th.factory.sessionAt(0).feed("primary")
	require.Eventually(t, func() bool {
		return len(remote.typed(protocol.TypeOutput)) > 0
	}, waitFor, tick)

	for _, m := range remote.typed(protocol.TypeOutput) {
		var p protocol.OutputPayload
		require.NoError(t, m.Decode(&p))
		assert.NotContains(t, string(p.Bytes), "helper noise")
	}
	sb, _ := th.hub.ScrollbackFor(key)
	assert.NotContains(t, string(sb), "helper noise")
}

func TestClose_UnknownAgent(t *testing.T) {
	th := newTestHub(t, nil)

	err := th.hub.Do(th.ctx, action.Action{Kind: action.KindClose, AgentKey: "nope"}, client.LocalID)
	assert.ErrorIs(t, err, action.ErrAgentNotFound)
}

func TestClose_ClearsViewersAndStopsInput(t *testing.T) {
	th := newTestHub(t, nil)
	key := th.spawnAndWait(t, "doomed")
	remote := th.attachRemote(t, "remote-1")

	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindSelect, AgentKey: key}, "remote-1"))
	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindClose, AgentKey: key}, client.LocalID))

	deleted := remote.typed(protocol.TypeDeleted)
	require.Len(t, deleted, 1)
	var payload protocol.DeletedPayload
	require.NoError(t, deleted[0].Decode(&payload))
	assert.Equal(t, key, payload.AgentKey)

	// The viewer's selection was cleared with the agent, so input is now
	// a silent no-op.
	sess := th.factory.session("/ws/doomed")
	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindSendInput, Input: []byte("x")}, "remote-1"))
	assert.Empty(t, sess.inputString())
	assert.Empty(t, th.hub.Snapshot().Agents)
}

func TestClose_DeleteWorkspace(t *testing.T) {
	th := newTestHub(t, nil)
	key := th.spawnAndWait(t, "cleanup-me")

	require.NoError(t, th.hub.Do(th.ctx, action.Action{
		Kind: action.KindClose, AgentKey: key, DeleteWorkspace: true,
	}, client.LocalID))

	require.Eventually(t, func() bool {
		return len(th.wsman.deletedBranches()) == 1
	}, waitFor, tick)
	assert.Equal(t, []string{"cleanup-me"}, th.wsman.deletedBranches())
}

func TestSelect_ScrollbackBeforeLiveOutput(t *testing.T) {
	th := newTestHub(t, nil)
	key := th.spawnAndWait(t, "chatty")
	sess := th.factory.session("/ws/chatty")

	// Output produced before anyone watches lands in scrollback.
	sess.feed("early ")
	require.Eventually(t, func() bool {
		sb, _ := th.hub.ScrollbackFor(key)
		return string(sb) == "early "
	}, waitFor, tick)

	remote := th.attachRemote(t, "remote-1")
	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindSelect, AgentKey: key}, "remote-1"))

	sess.feed("late")
	require.Eventually(t, func() bool {
		return len(remote.typed(protocol.TypeOutput)) > 0
	}, waitFor, tick)

	// History arrives once, before any live chunk, and no byte repeats.
	var stream []string
	for _, m := range remote.messages() {
		switch m.Type {
		case protocol.TypeScrollback:
			var p protocol.ScrollbackPayload
			require.NoError(t, m.Decode(&p))
			stream = append(stream, "sb:"+string(p.Bytes))
		case protocol.TypeOutput:
			var p protocol.OutputPayload
			require.NoError(t, m.Decode(&p))
			stream = append(stream, "out:"+string(p.Bytes))
		}
	}
	require.Equal(t, []string{"sb:early ", "out:late"}, stream)
}

func TestSelect_RepeatDeliversScrollbackOnce(t *testing.T) {
	th := newTestHub(t, nil)
	key := th.spawnAndWait(t, "chatty")
	th.factory.session("/ws/chatty").feed("early ")
	require.Eventually(t, func() bool {
		sb, _ := th.hub.ScrollbackFor(key)
		return string(sb) == "early "
	}, waitFor, tick)

	remote := th.attachRemote(t, "remote-1")
	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindSelect, AgentKey: key}, "remote-1"))
	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindSelect, AgentKey: key}, "remote-1"))

	// The client already holds the history; only the first selection
	// replays it. Both selections still confirm.
	assert.Len(t, remote.typed(protocol.TypeScrollback), 1)
	assert.Len(t, remote.typed(protocol.TypeSelected), 2)
}

func TestSelect_SwitchingAgentsReplaysScrollback(t *testing.T) {
	th := newTestHub(t, nil)
	keyA := th.spawnAndWait(t, "a")
	keyB := th.spawnAndWait(t, "b")

	remote := th.attachRemote(t, "remote-1")
	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindSelect, AgentKey: keyA}, "remote-1"))
	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindSelect, AgentKey: keyB}, "remote-1"))
	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindSelect, AgentKey: keyA}, "remote-1"))

	// Every selection change lands on a different agent, so each one
	// replays that agent's history.
	assert.Len(t, remote.typed(protocol.TypeScrollback), 3)
}

func TestInput_NoSelectionIsSilentDrop(t *testing.T) {
	th := newTestHub(t, nil)
	th.spawnAndWait(t, "quiet")
	th.attachRemote(t, "remote-1")

	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindSendInput, Input: []byte("hello")}, "remote-1"))
	assert.Empty(t, th.factory.session("/ws/quiet").inputString())
}

func TestInput_RoutedToSelectedAgent(t *testing.T) {
	th := newTestHub(t, nil)
	a := th.spawnAndWait(t, "one")
	th.spawnAndWait(t, "two")

	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindSelect, AgentKey: a}, client.LocalID))
	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindSendInput, Input: []byte("ls\n")}, client.LocalID))

	assert.Equal(t, "ls\n", th.factory.session("/ws/one").inputString())
	assert.Empty(t, th.factory.session("/ws/two").inputString())
}

func TestResize_NoSelectionTouchesNoProcess(t *testing.T) {
	th := newTestHub(t, nil)
	th.spawnAndWait(t, "fixed")
	th.attachRemote(t, "remote-1")

	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindResize, Rows: 50, Cols: 120}, "remote-1"))

	rows, cols := th.factory.session("/ws/fixed").geometry()
	assert.Equal(t, uint16(24), rows)
	assert.Equal(t, uint16(80), cols)
}

func TestResize_LocalGeometryWins(t *testing.T) {
	th := newTestHub(t, nil)
	key := th.spawnAndWait(t, "shared")
	th.attachRemote(t, "remote-1")
	sess := th.factory.session("/ws/shared")

	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindSelect, AgentKey: key}, client.LocalID))
	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindResize, Rows: 30, Cols: 100}, client.LocalID))

	rows, cols := sess.geometry()
	require.Equal(t, uint16(30), rows)
	require.Equal(t, uint16(100), cols)

	// A remote viewer of the same agent cannot override the local UI.
	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindSelect, AgentKey: key}, "remote-1"))
	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindResize, Rows: 60, Cols: 200}, "remote-1"))

	rows, cols = sess.geometry()
	assert.Equal(t, uint16(30), rows)
	assert.Equal(t, uint16(100), cols)
}

func TestResize_LastRemoteWriterWins(t *testing.T) {
	th := newTestHub(t, nil)
	key := th.spawnAndWait(t, "remote-only")
	th.attachRemote(t, "remote-1")
	th.attachRemote(t, "remote-2")
	sess := th.factory.session("/ws/remote-only")

	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindSelect, AgentKey: key}, "remote-1"))
	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindSelect, AgentKey: key}, "remote-2"))

	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindResize, Rows: 40, Cols: 130}, "remote-1"))
	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindResize, Rows: 50, Cols: 150}, "remote-2"))

	rows, cols := sess.geometry()
	assert.Equal(t, uint16(50), rows)
	assert.Equal(t, uint16(150), cols)
}

func TestSelectIndex_OutOfRange(t *testing.T) {
	th := newTestHub(t, nil)
	th.spawnAndWait(t, "only")

	err := th.hub.Do(th.ctx, action.Action{Kind: action.KindSelectIndex, Index: 2}, client.LocalID)
	assert.ErrorIs(t, err, action.ErrAgentNotFound)

	// The rejection left the cursor alone.
	assert.Equal(t, 0, th.hub.Snapshot().Cursor)
}

func TestSelectNext_WrapsAndFollowsCursor(t *testing.T) {
	th := newTestHub(t, nil)
	a := th.spawnAndWait(t, "a")
	b := th.spawnAndWait(t, "b")

	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindSelectNext}, client.LocalID))
	assert.Equal(t, b, th.hub.Snapshot().Selected)

	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindSelectNext}, client.LocalID))
	snap := th.hub.Snapshot()
	assert.Equal(t, a, snap.Selected)
	assert.Equal(t, 0, snap.Cursor)
}

func TestSelectNext_EmptyRegistryIsNoop(t *testing.T) {
	th := newTestHub(t, nil)
	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindSelectNext}, client.LocalID))
	assert.Empty(t, th.hub.Snapshot().Selected)
}

func TestAttach_DeliversAgentListing(t *testing.T) {
	th := newTestHub(t, nil)
	th.spawnAndWait(t, "existing")

	remote := th.attachRemote(t, "remote-1")
	agents := remote.typed(protocol.TypeAgents)
	require.Len(t, agents, 1)
	var payload protocol.AgentsPayload
	require.NoError(t, agents[0].Decode(&payload))
	require.Len(t, payload.Agents, 1)
	assert.Equal(t, "octo/widgets#existing", payload.Agents[0].Key)
}

func TestListWorkspaces_DeliversListing(t *testing.T) {
	th := newTestHub(t, nil)
	th.wsman.listing = []workspace.Workspace{{Path: "/ws/a", Branch: "a"}}
	remote := th.attachRemote(t, "remote-1")

	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindListWorkspaces}, "remote-1"))
	require.Eventually(t, func() bool {
		return len(remote.typed(protocol.TypeWorkspaces)) == 1
	}, waitFor, tick)
}

func TestListWorkspaces_ExcludesAgentBound(t *testing.T) {
	th := newTestHub(t, nil)
	th.spawnAndWait(t, "busy")
	th.wsman.mu.Lock()
	th.wsman.listing = []workspace.Workspace{
		{Path: "/ws/busy", Branch: "busy"},
		{Path: "/ws/free", Branch: "free"},
	}
	th.wsman.mu.Unlock()
	remote := th.attachRemote(t, "remote-1")

	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindListWorkspaces}, "remote-1"))
	require.Eventually(t, func() bool {
		return len(remote.typed(protocol.TypeWorkspaces)) == 1
	}, waitFor, tick)

	var p protocol.WorkspacesPayload
	require.NoError(t, remote.typed(protocol.TypeWorkspaces)[0].Decode(&p))
	require.Len(t, p.Workspaces, 1)
	assert.Equal(t, "/ws/free", p.Workspaces[0].Path)
}

func TestDetach_Idempotent(t *testing.T) {
	th := newTestHub(t, nil)
	th.attachRemote(t, "remote-1")

	require.NoError(t, th.hub.DetachClient(th.ctx, "remote-1"))
	require.NoError(t, th.hub.DetachClient(th.ctx, "remote-1"))
}

func TestExitedAgent_AnnouncedOnce(t *testing.T) {
	th := newTestHub(t, nil)
	key := th.spawnAndWait(t, "mortal")
	sess := th.factory.session("/ws/mortal")

	sess.mu.Lock()
	sess.exited = true
	sess.mu.Unlock()

	require.Eventually(t, func() bool {
		snap := th.hub.Snapshot()
		return len(snap.Agents) == 1 && !snap.Agents[0].Running
	}, waitFor, tick)

	// The agent stays listed until explicitly closed.
	assert.Equal(t, key, th.hub.Snapshot().Agents[0].Key)
}

func TestSpawnFailure_ReportedToRequester(t *testing.T) {
	th := newTestHub(t, nil)
	th.factory.mu.Lock()
	th.factory.fail = fmt.Errorf("no pty")
	th.factory.mu.Unlock()

	require.NoError(t, th.hub.Do(th.ctx, action.Action{Kind: action.KindSpawn, Branch: "broken"}, client.LocalID))
	require.Eventually(t, func() bool {
		return len(th.local.typed(protocol.TypeError)) == 1
	}, waitFor, tick)
	assert.Empty(t, th.hub.Snapshot().Agents)

	// The failed slot was released.
	th.factory.mu.Lock()
	th.factory.fail = nil
	th.factory.mu.Unlock()
	th.spawnAndWait(t, "broken")
}
