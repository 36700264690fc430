package workspace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/vfs"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/id"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/types"
	"go.uber.org/zap"
)

// DefaultConsoleLimit caps the lines kept per console panel
const DefaultConsoleLimit = 1000

// ErrStaleRun is returned when a message belongs to a run that is no longer
// the workspace's latest
var ErrStaleRun = errors.New("run is no longer current")

type entry struct {
	mu      sync.Mutex
	ws      *Workspace
	tree    *vfs.Tree
	nextSeq int
	// version counts listener events; snapshots carry it so subscribers
	// can skip events a snapshot already reflects
	version int
}

func (e *entry) bump() int {
	e.version++
	return e.version
}

// Options configures a Manager
type Options struct {
	Store        Store
	Listener     Listener
	ConsoleLimit int
	Logger       *logging.Logger
	Metrics      *monitoring.Metrics
	Now          func() time.Time
}

// Manager owns loaded workspaces
type Manager struct {
	store        Store
	listener     Listener
	consoleLimit int
	logger       *logging.Logger
	metrics      *monitoring.Metrics
	now          func() time.Time

	mu      sync.Mutex
	entries map[id.WorkspaceID]*entry
}

// NewManager creates a workspace manager
func NewManager(opts Options) *Manager {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Listener == nil {
		opts.Listener = nopListener{}
	}
	if opts.ConsoleLimit <= 0 {
		opts.ConsoleLimit = DefaultConsoleLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:        opts.Store,
		listener:     opts.Listener,
		consoleLimit: opts.ConsoleLimit,
		logger:       logging.OrNop(opts.Logger).Named("workspace"),
		metrics:      opts.Metrics,
		now:          opts.Now,
		entries:      make(map[id.WorkspaceID]*entry),
	}
}

// SetListener replaces the change listener. Call before serving requests.
func (m *Manager) SetListener(l Listener) {
	if l == nil {
		l = nopListener{}
	}
	m.listener = l
}

// Create builds a workspace from files and persists it. The first file in
// tree order becomes active.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*Workspace, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = "Untitled"
	}
	now := m.now()
	tree := vfs.FromNodes(opts.Files)

	e := &entry{
		tree: tree,
		ws: &Workspace{
			ID:        id.NewWorkspaceID(),
			Owner:     opts.Owner,
			Name:      name,
			Template:  opts.Template,
			ProjectID: opts.ProjectID,
			Expanded:  []string{},
			AutoRun:   opts.AutoRun,
			Console:   []types.ConsoleLine{},
			Run:       types.Run{State: types.RunIdle},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	if files := tree.Flatten(); len(files) > 0 {
		first := files[0].ID
		e.ws.ActiveFileID = &first
	}

	e.mu.Lock()
	err := m.persist(ctx, e)
	snap := m.snapshot(e)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.entries[e.ws.ID] = e
	active := len(m.entries)
	m.mu.Unlock()
	m.metrics.SetWorkspacesActive(active)

	m.logger.Info("Workspace created",
		zap.String("workspace", e.ws.ID.String()),
		zap.String("owner", opts.Owner),
		zap.String("template", opts.Template),
		zap.Int("files", tree.Len()))
	return snap, nil
}

// Get returns a snapshot of a workspace the owner may access
func (m *Manager) Get(ctx context.Context, owner string, wsID id.WorkspaceID) (*Workspace, error) {
	e, err := m.access(ctx, owner, wsID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return m.snapshot(e), nil
}

// List returns the owner's workspaces, most recently updated first
func (m *Manager) List(ctx context.Context, owner string) ([]Summary, error) {
	ids, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(ids))
	for _, wsID := range ids {
		var ws *Workspace
		if e := m.loaded(wsID); e != nil {
			e.mu.Lock()
			ws = m.snapshot(e)
			e.mu.Unlock()
		} else {
			data, err := m.store.Load(ctx, wsID)
			if err != nil {
				m.logger.Warn("Skipping unreadable workspace", zap.String("workspace", wsID.String()), zap.Error(err))
				continue
			}
			if ws, err = decode(data); err != nil {
				m.logger.Warn("Skipping corrupt workspace", zap.String("workspace", wsID.String()), zap.Error(err))
				continue
			}
		}
		if ws.Owner != owner {
			continue
		}
		out = append(out, Summary{
			ID:        ws.ID,
			Name:      ws.Name,
			Owner:     ws.Owner,
			Template:  ws.Template,
			ProjectID: ws.ProjectID,
			Files:     vfs.FromNodes(ws.Root).Len(),
			AutoRun:   ws.AutoRun,
			UpdatedAt: ws.UpdatedAt,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Delete removes a workspace from memory and storage
func (m *Manager) Delete(ctx context.Context, owner string, wsID id.WorkspaceID) error {
	if _, err := m.access(ctx, owner, wsID); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, wsID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	m.mu.Lock()
	delete(m.entries, wsID)
	active := len(m.entries)
	m.mu.Unlock()
	m.metrics.SetWorkspacesActive(active)

	m.logger.Info("Workspace deleted", zap.String("workspace", wsID.String()))
	return nil
}

// Rename changes the workspace's display name
func (m *Manager) Rename(ctx context.Context, owner string, wsID id.WorkspaceID, name string) (*Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty workspace name", vfs.ErrInvalidName)
	}
	return m.mutate(ctx, owner, wsID, func(e *entry) error {
		e.ws.Name = name
		return nil
	})
}

// AddNode creates a file or folder and makes a new file active
func (m *Manager) AddNode(ctx context.Context, owner string, wsID id.WorkspaceID, req types.NodeRequest) (*vfs.Node, error) {
	var created *vfs.Node
	_, err := m.mutate(ctx, owner, wsID, func(e *entry) error {
		var err error
		if req.Folder {
			created, err = e.tree.AddFolder(req.ParentID, req.Name)
		} else {
			created, err = e.tree.AddFile(req.ParentID, req.Name, req.Content)
		}
		if err != nil {
			return err
		}
		if !created.IsFolder() {
			active := created.ID
			e.ws.ActiveFileID = &active
		}
		if req.ParentID != "" {
			e.ws.Expanded = addUnique(e.ws.Expanded, req.ParentID)
		}
		created = created.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateContent replaces a file's content
func (m *Manager) UpdateContent(ctx context.Context, owner string, wsID id.WorkspaceID, fileID, content string) (*Workspace, error) {
	return m.mutate(ctx, owner, wsID, func(e *entry) error {
		_, err := e.tree.UpdateContent(fileID, content)
		return err
	})
}

// RenameNode renames a node. Active file and expanded folders follow the
// node to its new ID.
func (m *Manager) RenameNode(ctx context.Context, owner string, wsID id.WorkspaceID, nodeID, name string) (*Workspace, error) {
	return m.mutate(ctx, owner, wsID, func(e *entry) error {
		n, err := e.tree.Rename(nodeID, name)
		if err != nil {
			return err
		}
		remap(e.ws, nodeID, n.ID)
		return nil
	})
}

// MoveNode re-parents a node
func (m *Manager) MoveNode(ctx context.Context, owner string, wsID id.WorkspaceID, nodeID, parentID string) (*Workspace, error) {
	return m.mutate(ctx, owner, wsID, func(e *entry) error {
		n, err := e.tree.Move(nodeID, parentID)
		if err != nil {
			return err
		}
		remap(e.ws, nodeID, n.ID)
		return nil
	})
}

// DeleteNode removes a node. When the active file disappears the first
// remaining file becomes active, or none when the tree has no files left.
func (m *Manager) DeleteNode(ctx context.Context, owner string, wsID id.WorkspaceID, nodeID string) (*Workspace, error) {
	return m.mutate(ctx, owner, wsID, func(e *entry) error {
		if _, err := e.tree.Delete(nodeID); err != nil {
			return err
		}
		e.ws.Expanded = dropUnder(e.ws.Expanded, nodeID)
		if e.ws.ActiveFileID != nil && under(*e.ws.ActiveFileID, nodeID) {
			e.ws.ActiveFileID = nil
			if files := e.tree.Flatten(); len(files) > 0 {
				first := files[0].ID
				e.ws.ActiveFileID = &first
			}
		}
		return nil
	})
}

// SetActive selects the active file, or clears it with nil
func (m *Manager) SetActive(ctx context.Context, owner string, wsID id.WorkspaceID, fileID *string) (*Workspace, error) {
	return m.mutate(ctx, owner, wsID, func(e *entry) error {
		if fileID == nil {
			e.ws.ActiveFileID = nil
			return nil
		}
		n, err := e.tree.Get(*fileID)
		if err != nil {
			return err
		}
		if n.IsFolder() {
			return fmt.Errorf("%w: %s is a folder", vfs.ErrInvalidName, n.ID)
		}
		active := n.ID
		e.ws.ActiveFileID = &active
		return nil
	})
}

// SetExpanded opens or closes a folder in the tree view
func (m *Manager) SetExpanded(ctx context.Context, owner string, wsID id.WorkspaceID, folderID string, expanded bool) (*Workspace, error) {
	return m.mutate(ctx, owner, wsID, func(e *entry) error {
		n, err := e.tree.Get(folderID)
		if err != nil {
			return err
		}
		if !n.IsFolder() {
			return fmt.Errorf("%w: %s", vfs.ErrNotFolder, folderID)
		}
		if expanded {
			e.ws.Expanded = addUnique(e.ws.Expanded, folderID)
		} else {
			e.ws.Expanded = dropUnder(e.ws.Expanded, folderID)
		}
		return nil
	})
}

// SetAutoRun toggles running on every edit
func (m *Manager) SetAutoRun(ctx context.Context, owner string, wsID id.WorkspaceID, autoRun bool) (*Workspace, error) {
	return m.mutate(ctx, owner, wsID, func(e *entry) error {
		e.ws.AutoRun = autoRun
		return nil
	})
}

// ReplaceTree swaps the whole file tree, used by archive import and project
// sync. Active file and expanded folders are reset.
func (m *Manager) ReplaceTree(ctx context.Context, owner string, wsID id.WorkspaceID, nodes []*vfs.Node) (*Workspace, error) {
	return m.mutate(ctx, owner, wsID, func(e *entry) error {
		e.tree = vfs.FromNodes(nodes)
		e.ws.Expanded = []string{}
		e.ws.ActiveFileID = nil
		if files := e.tree.Flatten(); len(files) > 0 {
			first := files[0].ID
			e.ws.ActiveFileID = &first
		}
		return nil
	})
}

// LinkProject records the project a workspace was opened from or saved to
func (m *Manager) LinkProject(ctx context.Context, owner string, wsID id.WorkspaceID, projectID string) (*Workspace, error) {
	return m.mutate(ctx, owner, wsID, func(e *entry) error {
		e.ws.ProjectID = projectID
		return nil
	})
}

// PutFiles writes files by path, creating folders and replacing existing
// content. The first written file becomes active and its folders expand.
func (m *Manager) PutFiles(ctx context.Context, owner string, wsID id.WorkspaceID, files []FileWrite) (*Workspace, error) {
	return m.mutate(ctx, owner, wsID, func(e *entry) error {
		for i, f := range files {
			n, err := e.tree.Put(f.Path, f.Content)
			if err != nil {
				return fmt.Errorf("write %s: %w", f.Path, err)
			}
			if i > 0 {
				continue
			}
			active := n.ID
			e.ws.ActiveFileID = &active
			for parent := n.ParentID(); parent != ""; parent = parentOf(parent) {
				e.ws.Expanded = addUnique(e.ws.Expanded, parent)
			}
		}
		return nil
	})
}

// Files returns a deep copy of the workspace's files in tree order
func (m *Manager) Files(ctx context.Context, owner string, wsID id.WorkspaceID) ([]*vfs.Node, error) {
	e, err := m.access(ctx, owner, wsID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tree.Clone().Flatten(), nil
}

// StartRun resets the console and records the run returned by next, which
// sees the previous run. It returns a copy of the files to render.
func (m *Manager) StartRun(ctx context.Context, wsID id.WorkspaceID, next func(prev types.Run) (types.Run, error)) ([]*vfs.Node, error) {
	e, err := m.entry(ctx, wsID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	run, err := next(e.ws.Run)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.ws.Run = run
	e.ws.Console = []types.ConsoleLine{}
	files := e.tree.Clone().Flatten()
	cleared, changed := e.bump(), e.bump()
	e.mu.Unlock()

	m.listener.ConsoleCleared(wsID, cleared)
	m.listener.RunChanged(wsID, run, changed)
	return files, nil
}

// FinishRun records the outcome of the current run and appends msgs to its
// console. A run that has since been replaced is ignored.
func (m *Manager) FinishRun(ctx context.Context, wsID id.WorkspaceID, run types.Run, msgs ...types.ConsoleMessage) error {
	e, err := m.entry(ctx, wsID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.ws.Run.ID != run.ID {
		e.mu.Unlock()
		return ErrStaleRun
	}
	e.ws.Run = run
	lines := make([]types.ConsoleLine, 0, len(msgs))
	versions := make([]int, 0, len(msgs))
	for _, msg := range msgs {
		lines = append(lines, m.appendLine(e, run.ID, msg))
		versions = append(versions, e.bump())
	}
	changed := e.bump()
	e.mu.Unlock()

	for i, line := range lines {
		m.listener.ConsoleAppended(wsID, line, versions[i])
	}
	m.listener.RunChanged(wsID, run, changed)
	return nil
}

// CurrentRun returns the latest run of a workspace
func (m *Manager) CurrentRun(ctx context.Context, wsID id.WorkspaceID) (types.Run, error) {
	e, err := m.entry(ctx, wsID)
	if err != nil {
		return types.Run{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ws.Run, nil
}

// AppendConsole adds a line to the panel. Lines for a run other than the
// current one are dropped with ErrStaleRun; an empty runID always appends.
func (m *Manager) AppendConsole(ctx context.Context, wsID id.WorkspaceID, runID string, msg types.ConsoleMessage) (types.ConsoleLine, error) {
	e, err := m.entry(ctx, wsID)
	if err != nil {
		return types.ConsoleLine{}, err
	}

	e.mu.Lock()
	if runID != "" && e.ws.Run.ID != runID {
		e.mu.Unlock()
		return types.ConsoleLine{}, ErrStaleRun
	}
	line := m.appendLine(e, runID, msg)
	version := e.bump()
	e.mu.Unlock()

	m.listener.ConsoleAppended(wsID, line, version)
	return line, nil
}

// ClearConsole empties the panel
func (m *Manager) ClearConsole(ctx context.Context, owner string, wsID id.WorkspaceID) error {
	e, err := m.access(ctx, owner, wsID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.ws.Console = []types.ConsoleLine{}
	version := e.bump()
	e.mu.Unlock()

	m.listener.ConsoleCleared(wsID, version)
	return nil
}

// Owner reports who owns a workspace
func (m *Manager) Owner(ctx context.Context, wsID id.WorkspaceID) (string, error) {
	e, err := m.entry(ctx, wsID)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ws.Owner, nil
}

// Loaded returns the number of workspaces held in memory
func (m *Manager) Loaded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) appendLine(e *entry, runID string, msg types.ConsoleMessage) types.ConsoleLine {
	e.nextSeq++
	line := types.NewConsoleLine(runID, msg)
	line.Seq = e.nextSeq
	line.Created = m.now()

	e.ws.Console = append(e.ws.Console, line)
	if over := len(e.ws.Console) - m.consoleLimit; over > 0 {
		e.ws.Console = append([]types.ConsoleLine(nil), e.ws.Console[over:]...)
	}
	m.metrics.RecordConsoleLine(string(msg.Method))
	return line
}

// mutate runs fn under the workspace lock, bumps UpdatedAt and persists.
// If fn or the save fails the workspace is left as it was.
func (m *Manager) mutate(ctx context.Context, owner string, wsID id.WorkspaceID, fn func(e *entry) error) (*Workspace, error) {
	e, err := m.access(ctx, owner, wsID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	backupTree := e.tree.Clone()
	backupWS := *e.ws
	backupWS.Expanded = append([]string{}, e.ws.Expanded...)
	if err := fn(e); err != nil {
		e.tree, *e.ws = backupTree, backupWS
		return nil, err
	}
	e.ws.UpdatedAt = m.now()
	if err := m.persist(ctx, e); err != nil {
		e.tree, *e.ws = backupTree, backupWS
		m.logger.Warn("Workspace change rolled back",
			zap.String("workspace", wsID.String()), zap.Error(err))
		return nil, err
	}
	return m.snapshot(e), nil
}

func (m *Manager) persist(ctx context.Context, e *entry) error {
	e.ws.Root = e.tree.Nodes()
	data, err := encode(e.ws)
	if err != nil {
		return err
	}
	if err := m.store.Save(ctx, e.ws.ID, data); err != nil {
		return fmt.Errorf("save workspace %s: %w", e.ws.ID, err)
	}
	m.metrics.IncWorkspacesSaved()
	return nil
}

// snapshot copies the entry so callers can read it without the lock
func (m *Manager) snapshot(e *entry) *Workspace {
	ws := *e.ws
	ws.Version = e.version
	ws.Root = e.tree.Clone().Nodes()
	ws.Expanded = append([]string{}, e.ws.Expanded...)
	ws.Console = append([]types.ConsoleLine{}, e.ws.Console...)
	if e.ws.ActiveFileID != nil {
		active := *e.ws.ActiveFileID
		ws.ActiveFileID = &active
	}
	return &ws
}

func (m *Manager) access(ctx context.Context, owner string, wsID id.WorkspaceID) (*entry, error) {
	e, err := m.entry(ctx, wsID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	wsOwner := e.ws.Owner
	e.mu.Unlock()
	if wsOwner != owner {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, wsID)
	}
	return e, nil
}

func (m *Manager) loaded(wsID id.WorkspaceID) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[wsID]
}

// entry returns a loaded workspace, reading it from the store on first use.
// The store is read without holding m.mu; concurrent first loads of the
// same workspace keep whichever entry is inserted first.
func (m *Manager) entry(ctx context.Context, wsID id.WorkspaceID) (*entry, error) {
	if e := m.loaded(wsID); e != nil {
		return e, nil
	}

	data, err := m.store.Load(ctx, wsID)
	if err != nil {
		return nil, err
	}
	ws, err := decode(data)
	if err != nil {
		return nil, err
	}
	ws.Console = []types.ConsoleLine{}
	ws.Run = types.Run{State: types.RunIdle}
	if ws.Expanded == nil {
		ws.Expanded = []string{}
	}

	e := &entry{ws: ws, tree: vfs.FromNodes(ws.Root)}
	if ws.ActiveFileID != nil {
		if n, err := e.tree.Get(*ws.ActiveFileID); err != nil || n.IsFolder() {
			ws.ActiveFileID = nil
		}
	}

	m.mu.Lock()
	if existing, ok := m.entries[wsID]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.entries[wsID] = e
	active := len(m.entries)
	m.mu.Unlock()

	m.metrics.IncWorkspacesLoaded()
	m.metrics.SetWorkspacesActive(active)
	return e, nil
}

// under reports whether nodeID is root or lies below it
func under(nodeID, root string) bool {
	return nodeID == root || strings.HasPrefix(nodeID, root+"/")
}

func remap(ws *Workspace, oldID, newID string) {
	if oldID == newID {
		return
	}
	rewrite := func(s string) string {
		if under(s, oldID) {
			return newID + strings.TrimPrefix(s, oldID)
		}
		return s
	}
	if ws.ActiveFileID != nil {
		active := rewrite(*ws.ActiveFileID)
		ws.ActiveFileID = &active
	}
	for i, folder := range ws.Expanded {
		ws.Expanded[i] = rewrite(folder)
	}
}

func parentOf(nodeID string) string {
	if i := strings.LastIndexByte(nodeID, '/'); i >= 0 {
		return nodeID[:i]
	}
	return ""
}

func addUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func dropUnder(list []string, prefix string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if !under(v, prefix) {
			out = append(out, v)
		}
	}
	return out
}
