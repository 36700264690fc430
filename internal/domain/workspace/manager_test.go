package workspace

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/vfs"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/id"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "alice"

type recorder struct {
	mu      sync.Mutex
	lines   []types.ConsoleLine
	cleared int
	runs    []types.RunState
}

func (r *recorder) ConsoleAppended(_ id.WorkspaceID, line types.ConsoleLine, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *recorder) ConsoleCleared(id.WorkspaceID, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared++
}

func (r *recorder) RunChanged(_ id.WorkspaceID, run types.Run, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run.State)
}

func starter() []*vfs.Node {
	return []*vfs.Node{
		{Name: "index.html", Type: vfs.TypeFile, Content: "<h1>hi</h1>"},
		{Name: "style.css", Type: vfs.TypeFile, Content: "h1{}"},
		{Name: "src", Type: vfs.TypeFolder, Children: []*vfs.Node{
			{Name: "app.js", Type: vfs.TypeFile, Content: "console.log(1)"},
		}},
	}
}

func newManager(t *testing.T) (*Manager, *MemoryStore, *recorder) {
	t.Helper()
	store := NewMemoryStore()
	rec := &recorder{}
	return NewManager(Options{Store: store, Listener: rec, ConsoleLimit: 3}), store, rec
}

func create(t *testing.T, m *Manager) *Workspace {
	t.Helper()
	ws, err := m.Create(context.Background(), CreateOptions{Owner: owner, Name: "demo", Files: starter(), AutoRun: true})
	require.NoError(t, err)
	return ws
}

func fileIDs(ws *Workspace) []string {
	var out []string
	for _, f := range vfs.FromNodes(ws.Root).Flatten() {
		out = append(out, f.ID)
	}
	return out
}

func TestCreateSelectsFirstFileAndPersists(t *testing.T) {
	m, store, _ := newManager(t)
	ws := create(t, m)

	require.NotNil(t, ws.ActiveFileID)
	assert.Equal(t, "index.html", *ws.ActiveFileID)
	assert.Equal(t, types.RunIdle, ws.Run.State)

	data, err := store.Load(context.Background(), ws.ID)
	require.NoError(t, err)
	restored, err := decode(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"index.html", "style.css", "src/app.js"}, fileIDs(restored))
}

func TestOwnerIsEnforced(t *testing.T) {
	m, _, _ := newManager(t)
	ws := create(t, m)
	ctx := context.Background()

	_, err := m.Get(ctx, "mallory", ws.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, m.Delete(ctx, "mallory", ws.ID), ErrForbidden)

	_, err = m.Get(ctx, owner, id.NewWorkspaceID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteActiveSelectsFirstRemaining(t *testing.T) {
	m, _, _ := newManager(t)
	ws := create(t, m)
	ctx := context.Background()

	ws, err := m.DeleteNode(ctx, owner, ws.ID, "index.html")
	require.NoError(t, err)
	require.NotNil(t, ws.ActiveFileID)
	assert.Equal(t, "style.css", *ws.ActiveFileID)
	assert.Equal(t, []string{"style.css", "src/app.js"}, fileIDs(ws))

	_, err = m.DeleteNode(ctx, owner, ws.ID, "style.css")
	require.NoError(t, err)
	ws, err = m.DeleteNode(ctx, owner, ws.ID, "src")
	require.NoError(t, err)
	assert.Nil(t, ws.ActiveFileID)
	assert.Empty(t, fileIDs(ws))
}

func TestDeleteInactiveKeepsSelection(t *testing.T) {
	m, _, _ := newManager(t)
	ws := create(t, m)

	ws, err := m.DeleteNode(context.Background(), owner, ws.ID, "style.css")
	require.NoError(t, err)
	assert.Equal(t, "index.html", *ws.ActiveFileID)
}

func TestRenameAndMoveFollowActiveAndExpanded(t *testing.T) {
	m, _, _ := newManager(t)
	ws := create(t, m)
	ctx := context.Background()

	active := "src/app.js"
	_, err := m.SetActive(ctx, owner, ws.ID, &active)
	require.NoError(t, err)
	_, err = m.SetExpanded(ctx, owner, ws.ID, "src", true)
	require.NoError(t, err)

	ws, err = m.RenameNode(ctx, owner, ws.ID, "src", "lib")
	require.NoError(t, err)
	assert.Equal(t, "lib/app.js", *ws.ActiveFileID)
	assert.Equal(t, []string{"lib"}, ws.Expanded)

	_, err = m.AddNode(ctx, owner, ws.ID, types.NodeRequest{Name: "pages", Folder: true})
	require.NoError(t, err)
	ws, err = m.MoveNode(ctx, owner, ws.ID, "lib", "pages")
	require.NoError(t, err)
	assert.Equal(t, "pages/lib/app.js", *ws.ActiveFileID)
	assert.Equal(t, []string{"pages/lib"}, ws.Expanded)
}

func TestAddNodeSuffixesAndActivates(t *testing.T) {
	m, _, _ := newManager(t)
	ws := create(t, m)

	n, err := m.AddNode(context.Background(), owner, ws.ID, types.NodeRequest{ParentID: "src", Name: "app.js", Content: "2"})
	require.NoError(t, err)
	assert.Equal(t, "src/app-1.js", n.ID)

	ws, err = m.Get(context.Background(), owner, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, "src/app-1.js", *ws.ActiveFileID)
	assert.Contains(t, ws.Expanded, "src")
}

func TestFailedMutationLeavesWorkspaceUntouched(t *testing.T) {
	m, _, _ := newManager(t)
	ws := create(t, m)
	ctx := context.Background()

	_, err := m.MoveNode(ctx, owner, ws.ID, "src", "src")
	assert.ErrorIs(t, err, vfs.ErrInvalidMove)

	_, err = m.UpdateContent(ctx, owner, ws.ID, "missing.js", "x")
	assert.ErrorIs(t, err, vfs.ErrNotFound)

	after, err := m.Get(ctx, owner, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, fileIDs(ws), fileIDs(after))
	assert.Equal(t, ws.UpdatedAt, after.UpdatedAt)
}

var errDiskFull = errors.New("disk full")

// flakyStore fails saves while failing is set
type flakyStore struct {
	*MemoryStore
	failing atomic.Bool
}

func (s *flakyStore) Save(ctx context.Context, wsID id.WorkspaceID, data []byte) error {
	if s.failing.Load() {
		return errDiskFull
	}
	return s.MemoryStore.Save(ctx, wsID, data)
}

func TestFailedSaveRollsBack(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore()}
	m := NewManager(Options{Store: store})
	ctx := context.Background()
	ws := create(t, m)

	_, err := m.SetExpanded(ctx, owner, ws.ID, "src", true)
	require.NoError(t, err)
	before, err := m.Get(ctx, owner, ws.ID)
	require.NoError(t, err)

	store.failing.Store(true)
	_, err = m.DeleteNode(ctx, owner, ws.ID, "index.html")
	require.ErrorIs(t, err, errDiskFull)
	_, err = m.RenameNode(ctx, owner, ws.ID, "src", "lib")
	require.ErrorIs(t, err, errDiskFull)

	after, err := m.Get(ctx, owner, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, fileIDs(before), fileIDs(after))
	assert.Equal(t, []string{"src"}, after.Expanded)
	require.NotNil(t, after.ActiveFileID)
	assert.Equal(t, "index.html", *after.ActiveFileID)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)

	// The next good save must not carry the rejected changes
	store.failing.Store(false)
	_, err = m.UpdateContent(ctx, owner, ws.ID, "style.css", "h1{color:red}")
	require.NoError(t, err)

	files, err := NewManager(Options{Store: store}).Files(ctx, owner, ws.ID)
	require.NoError(t, err)
	var ids []string
	for _, f := range files {
		ids = append(ids, f.ID)
	}
	assert.Equal(t, []string{"index.html", "style.css", "src/app.js"}, ids)
}

// gatedStore blocks loads of one workspace until gate is closed
type gatedStore struct {
	*MemoryStore
	blocked id.WorkspaceID
	started chan struct{}
	gate    chan struct{}
}

func (s *gatedStore) Load(ctx context.Context, wsID id.WorkspaceID) ([]byte, error) {
	if wsID == s.blocked {
		close(s.started)
		<-s.gate
	}
	return s.MemoryStore.Load(ctx, wsID)
}

func TestSlowLoadDoesNotBlockOtherWorkspaces(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()
	seed := NewManager(Options{Store: mem})
	slow := create(t, seed)
	fast := create(t, seed)

	store := &gatedStore{MemoryStore: mem, blocked: slow.ID, started: make(chan struct{}), gate: make(chan struct{})}
	m := NewManager(Options{Store: store})

	done := make(chan error, 1)
	go func() {
		_, err := m.Get(ctx, owner, slow.ID)
		done <- err
	}()
	<-store.started

	got := make(chan error, 1)
	go func() {
		_, err := m.Get(ctx, owner, fast.ID)
		got <- err
	}()
	select {
	case err := <-got:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("load of one workspace blocked another")
	}

	close(store.gate)
	require.NoError(t, <-done)
	assert.Equal(t, 2, m.Loaded())
}

func TestSnapshotsAreIsolated(t *testing.T) {
	m, _, _ := newManager(t)
	ws := create(t, m)

	ws.Root[0].Content = "mutated"
	ws.Expanded = append(ws.Expanded, "x")

	fresh, err := m.Get(context.Background(), owner, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, "<h1>hi</h1>", fresh.Root[0].Content)
	assert.Empty(t, fresh.Expanded)
}

func TestConsoleLifecycle(t *testing.T) {
	m, _, rec := newManager(t)
	ws := create(t, m)
	ctx := context.Background()

	run := types.Run{ID: "run_1", State: types.RunRunning}
	files, err := m.StartRun(ctx, ws.ID, func(prev types.Run) (types.Run, error) {
		assert.Equal(t, types.RunIdle, prev.State)
		return run, nil
	})
	require.NoError(t, err)
	assert.Len(t, files, 3)

	for _, text := range []string{"a", "b", "c", "d"} {
		_, err := m.AppendConsole(ctx, ws.ID, "run_1", types.ConsoleMessage{Method: types.MethodLog, Text: text})
		require.NoError(t, err)
	}
	_, err = m.AppendConsole(ctx, ws.ID, "run_0", types.ConsoleMessage{Method: types.MethodLog, Text: "old"})
	assert.ErrorIs(t, err, ErrStaleRun)

	got, err := m.Get(ctx, owner, ws.ID)
	require.NoError(t, err)
	require.Len(t, got.Console, 3, "panel keeps the newest lines")
	assert.Equal(t, "log: b", got.Console[0].Line)
	assert.Equal(t, 4, got.Console[2].Seq)

	run.State = types.RunFailed
	require.NoError(t, m.FinishRun(ctx, ws.ID, run, types.ConsoleMessage{Method: types.MethodError, Text: "boom"}))
	assert.ErrorIs(t, m.FinishRun(ctx, ws.ID, types.Run{ID: "run_0"}), ErrStaleRun)

	current, err := m.CurrentRun(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, current.State)

	require.NoError(t, m.ClearConsole(ctx, owner, ws.ID))
	got, _ = m.Get(ctx, owner, ws.ID)
	assert.Empty(t, got.Console)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 2, rec.cleared)
	assert.Equal(t, []types.RunState{types.RunRunning, types.RunFailed}, rec.runs)
	assert.Len(t, rec.lines, 5)
	assert.Equal(t, "error: boom", rec.lines[4].Line)
}

func TestReloadFromStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := NewManager(Options{Store: store})
	ws, err := first.Create(ctx, CreateOptions{Owner: owner, Name: "persisted", Files: starter()})
	require.NoError(t, err)
	_, err = first.UpdateContent(ctx, owner, ws.ID, "src/app.js", "console.log(2)")
	require.NoError(t, err)

	second := NewManager(Options{Store: store})
	files, err := second.Files(ctx, owner, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, "console.log(2)", files[2].Content)
	assert.Equal(t, 1, second.Loaded())

	list, err := second.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "persisted", list[0].Name)
	assert.Equal(t, 3, list[0].Files)

	others, err := second.List(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, others)

	require.NoError(t, second.Delete(ctx, owner, ws.ID))
	_, err = store.Load(ctx, ws.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, second.Loaded())
}

func TestReplaceTree(t *testing.T) {
	m, _, _ := newManager(t)
	ws := create(t, m)

	ws, err := m.ReplaceTree(context.Background(), owner, ws.ID, []*vfs.Node{
		{Name: "main.jsx", Type: vfs.TypeFile, Content: "<p/>"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"main.jsx"}, fileIDs(ws))
	assert.Equal(t, "main.jsx", *ws.ActiveFileID)
}

func TestConcurrentEdits(t *testing.T) {
	m, _, _ := newManager(t)
	ws := create(t, m)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.AddNode(ctx, owner, ws.ID, types.NodeRequest{Name: "f.js"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	files, err := m.Files(ctx, owner, ws.ID)
	require.NoError(t, err)
	assert.Len(t, files, 23)
}

func TestPutFilesCreatesFoldersAndActivates(t *testing.T) {
	m, _, _ := newManager(t)
	ws := create(t, m)

	ws, err := m.PutFiles(context.Background(), owner, ws.ID, []FileWrite{
		{Path: "components/card/card.html", Content: "<div></div>"},
		{Path: "components/card/card.css", Content: ".c{}"},
		{Path: "style.css", Content: "replaced"},
	})
	require.NoError(t, err)

	assert.Equal(t, "components/card/card.html", *ws.ActiveFileID)
	assert.ElementsMatch(t, []string{"components", "components/card"}, ws.Expanded)
	assert.Equal(t, []string{"index.html", "style.css", "src/app.js", "components/card/card.html", "components/card/card.css"}, fileIDs(ws))

	files, err := m.Files(context.Background(), owner, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, "replaced", files[1].Content)
}
