package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"orctorrent/internal/core"
	"orctorrent/internal/engine"
	"orctorrent/internal/event"
	"orctorrent/internal/model"
	"orctorrent/internal/store"
	"orctorrent/internal/vpn"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockTransferEngine records adds and actions. Add errors are consumed in
// order, one per call.
type MockTransferEngine struct {
	mu        sync.Mutex
	adds      []addCall
	actions   []actionCall
	addErrs   []error
	actionErr error
	files     []engine.FileInfo
	seq       int
	// When set, Add signals entered and then blocks until gate is closed.
	entered chan struct{}
	gate    chan struct{}
}

type addCall struct {
	src  engine.Source
	opts engine.AddOptions
}

type actionCall struct {
	engineID  string
	kind      engine.ActionKind
	onlyFiles []int
}

func NewMockTransferEngine() *MockTransferEngine {
	return &MockTransferEngine{
		files: []engine.FileInfo{
			{Path: "show/ep1.mkv", Length: 1 << 20},
			{Path: "show/ep2.mkv", Length: 2 << 20},
		},
	}
}

func (m *MockTransferEngine) Start(ctx context.Context) error { return nil }
func (m *MockTransferEngine) Stop() error                     { return nil }

func (m *MockTransferEngine) Add(ctx context.Context, src engine.Source, opts engine.AddOptions) (*engine.AddResult, error) {
	m.mu.Lock()
	entered, gate := m.entered, m.gate
	m.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.adds = append(m.adds, addCall{src: src, opts: opts})
	if len(m.addErrs) > 0 {
		err := m.addErrs[0]
		m.addErrs = m.addErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	m.seq++
	return &engine.AddResult{
		EngineID:     fmt.Sprintf("eng-%d", m.seq),
		Name:         "show",
		OutputFolder: opts.OutputFolder,
		Files:        append([]engine.FileInfo(nil), m.files...),
	}, nil
}

func (m *MockTransferEngine) Stats(ctx context.Context, id string) (*engine.Stats, error) {
	return &engine.Stats{State: engine.StateLive, TotalBytes: 3 << 20}, nil
}

func (m *MockTransferEngine) PeerStats(ctx context.Context, id string, filter engine.PeerFilter) (map[string]any, error) {
	return map[string]any{}, nil
}

func (m *MockTransferEngine) Action(ctx context.Context, id string, action engine.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.actionErr != nil {
		return m.actionErr
	}
	m.actions = append(m.actions, actionCall{engineID: id, kind: action.Kind, onlyFiles: action.OnlyFiles})
	return nil
}

func (m *MockTransferEngine) Version(ctx context.Context) (string, error) {
	return "mock", nil
}

func (m *MockTransferEngine) Adds() []addCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]addCall(nil), m.adds...)
}

func (m *MockTransferEngine) Kinds() []engine.ActionKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]engine.ActionKind, 0, len(m.actions))
	for _, a := range m.actions {
		out = append(out, a.kind)
	}
	return out
}

func (m *MockTransferEngine) LastAction() actionCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.actions) == 0 {
		return actionCall{}
	}
	return m.actions[len(m.actions)-1]
}

func (m *MockTransferEngine) ActionsOf(kind engine.ActionKind) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, a := range m.actions {
		if a.kind == kind {
			ids = append(ids, a.engineID)
		}
	}
	return ids
}

func (m *MockTransferEngine) ResetActions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = nil
}

// fakeDetector reports a wg0 tunnel while connected.
type fakeDetector struct {
	mu        sync.Mutex
	connected bool
}

func (d *fakeDetector) set(connected bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = connected
}

func (d *fakeDetector) Detect(src model.VPNSource) model.VPNStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connected {
		return vpn.Connected("wg0", 0)
	}
	return vpn.Disconnected(0)
}

type testEnv struct {
	state    *core.State
	engine   *MockTransferEngine
	detector *fakeDetector
	db       *store.DB
	bus      *event.Bus
	events   <-chan event.Event
	torrents *TorrentService
	policy   *PolicyService
	dir      string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newTestEnvWithDB(t, db)
}

func newTestEnvWithDB(t *testing.T, db *store.DB) *testEnv {
	t.Helper()
	env := &testEnv{
		engine:   NewMockTransferEngine(),
		detector: &fakeDetector{},
		db:       db,
		bus:      event.NewBus(),
		dir:      t.TempDir(),
	}
	env.events = env.bus.Subscribe()
	env.state = core.New(core.Options{Engine: env.engine, Detector: env.detector})
	env.torrents = NewTorrentService(env.state, env.engine, db, env.bus, TorrentOptions{DownloadDir: env.dir}, zap.NewNop())
	env.policy = NewPolicyService(env.state, env.engine, env.detector, db, env.bus, zap.NewNop())
	return env
}

// drain returns the event types published so far.
func (e *testEnv) drain() []event.EventType {
	var out []event.EventType
	for {
		select {
		case ev := <-e.events:
			out = append(out, ev.Type)
		default:
			return out
		}
	}
}

func ptr[T any](v T) *T { return &v }
