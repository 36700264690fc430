package project

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/vfs"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/workspace"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/monitoring"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(context.Background(), filepath.Join(t.TempDir(), "projects.db"), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return repo
}

func files(t *testing.T, entries ...string) []*vfs.Node {
	t.Helper()
	tree := vfs.New()
	for i := 0; i+1 < len(entries); i += 2 {
		_, err := tree.Put(entries[i], entries[i+1])
		require.NoError(t, err)
	}
	return tree.Nodes()
}

func flat(nodes []*vfs.Node) map[string]string {
	out := map[string]string{}
	for _, f := range vfs.FromNodes(nodes).Flatten() {
		out[f.ID] = f.Content
	}
	return out
}

func TestParseDSN(t *testing.T) {
	tests := []struct {
		dsn     string
		dialect Dialect
		source  string
	}{
		{"postgres://u:p@db/vibe?sslmode=disable", DialectPostgres, "postgres://u:p@db/vibe?sslmode=disable"},
		{"postgresql://db/vibe", DialectPostgres, "postgresql://db/vibe"},
		{"host=db dbname=vibe", DialectPostgres, "host=db dbname=vibe"},
		{"sqlite://data/projects.db", DialectSQLite, "data/projects.db"},
		{"file:projects.db?_busy_timeout=5000", DialectSQLite, "file:projects.db?_busy_timeout=5000"},
		{":memory:", DialectSQLite, ":memory:"},
	}
	for _, tt := range tests {
		dialect, source := ParseDSN(tt.dsn)
		assert.Equal(t, tt.dialect, dialect, tt.dsn)
		assert.Equal(t, tt.source, source, tt.dsn)
	}
}

func TestRebind(t *testing.T) {
	pg := &Repository{dialect: DialectPostgres}
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b = $2", pg.rebind("SELECT 1 WHERE a = ? AND b = ?"))

	lite := &Repository{dialect: DialectSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestStatementsDropComments(t *testing.T) {
	got := statements("-- heading\nCREATE TABLE a (x INT); -- trailing\n\n;CREATE INDEX i ON a(x);")
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a(x)"}, got)
}

func TestCreateAndGet(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	p, err := repo.Create(ctx, CreateInput{
		Owner: "alice",
		Name:  "  Landing  ",
		Files: files(t, "index.html", "<h1>hi</h1>", "src/app.js", "1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Landing", p.Name)
	assert.Len(t, p.ID, 36)

	got, err := repo.Get(ctx, "alice", p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.True(t, p.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, map[string]string{"index.html": "<h1>hi</h1>", "src/app.js": "1"}, flat(got.Files))
	assert.Empty(t, got.Members)

	_, err = repo.Get(ctx, "bob", p.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = repo.Get(ctx, "alice", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Create(ctx, CreateInput{Owner: "alice", Name: " "})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCollaboratorAccess(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	p, err := repo.Create(ctx, CreateInput{Owner: "alice", Name: "Shared"})
	require.NoError(t, err)

	_, err = repo.AddCollaborator(ctx, "bob", p.ID, "carol", RoleEditor)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = repo.AddCollaborator(ctx, "alice", p.ID, "bob", Role("admin"))
	assert.ErrorIs(t, err, ErrInvalidRole)
	_, err = repo.AddCollaborator(ctx, "alice", p.ID, "alice", RoleEditor)
	assert.ErrorIs(t, err, ErrInvalid)

	p, err = repo.AddCollaborator(ctx, "alice", p.ID, "bob", RoleEditor)
	require.NoError(t, err)
	p, err = repo.AddCollaborator(ctx, "alice", p.ID, "carol", RoleViewer)
	require.NoError(t, err)
	require.Len(t, p.Members, 2)
	assert.Equal(t, RoleEditor, p.RoleOf("bob"))
	assert.Equal(t, RoleViewer, p.RoleOf("carol"))

	name := "Renamed by bob"
	_, err = repo.Update(ctx, "bob", p.ID, Patch{Name: &name})
	require.NoError(t, err)

	_, err = repo.Update(ctx, "carol", p.ID, Patch{Name: &name})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = repo.Get(ctx, "carol", p.ID)
	assert.NoError(t, err)

	assert.ErrorIs(t, repo.Delete(ctx, "bob", p.ID), ErrForbidden)

	// Regrant replaces the previous role
	p, err = repo.AddCollaborator(ctx, "alice", p.ID, "carol", RoleEditor)
	require.NoError(t, err)
	assert.Len(t, p.Members, 2)
	assert.Equal(t, RoleEditor, p.RoleOf("carol"))

	require.NoError(t, repo.RemoveCollaborator(ctx, "carol", p.ID, "carol"))
	assert.ErrorIs(t, repo.RemoveCollaborator(ctx, "carol", p.ID, "bob"), ErrForbidden)
	assert.ErrorIs(t, repo.RemoveCollaborator(ctx, "alice", p.ID, "carol"), ErrNotFound)

	_, err = repo.Get(ctx, "carol", p.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestListOwnedAndShared(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	older, err := repo.Create(ctx, CreateInput{Owner: "alice", Name: "Older"})
	require.NoError(t, err)
	shared, err := repo.Create(ctx, CreateInput{Owner: "bob", Name: "Bob's"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, CreateInput{Owner: "bob", Name: "Private"})
	require.NoError(t, err)
	newer, err := repo.Create(ctx, CreateInput{Owner: "alice", Name: "Newer"})
	require.NoError(t, err)

	_, err = repo.AddCollaborator(ctx, "bob", shared.ID, "alice", RoleViewer)
	require.NoError(t, err)

	list, err := repo.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, RoleOwner, list[0].Role)
	assert.Equal(t, shared.ID, list[1].ID)
	assert.Equal(t, RoleViewer, list[1].Role)
	assert.Equal(t, older.ID, list[2].ID)

	list, err = repo.List(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpdateFilesAndDelete(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	p, err := repo.Create(ctx, CreateInput{Owner: "alice", Name: "App", Files: files(t, "a.js", "1")})
	require.NoError(t, err)

	desc := "now with styles"
	updated, err := repo.Update(ctx, "alice", p.ID, Patch{
		Description: &desc,
		Files:       files(t, "a.js", "2", "style.css", "p{}"),
	})
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(p.UpdatedAt))

	got, err := repo.Get(ctx, "alice", p.ID)
	require.NoError(t, err)
	assert.Equal(t, desc, got.Description)
	assert.Equal(t, "App", got.Name)
	assert.Equal(t, map[string]string{"a.js": "2", "style.css": "p{}"}, flat(got.Files))

	_, err = repo.AddCollaborator(ctx, "alice", p.ID, "bob", RoleEditor)
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, "alice", p.ID))

	_, err = repo.Get(ctx, "alice", p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	list, err := repo.List(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestWorkspaceRoundTrip(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	mgr := workspace.NewManager(workspace.Options{Store: workspace.NewMemoryStore()})

	p, err := repo.Create(ctx, CreateInput{
		Owner:    "alice",
		Name:     "Counter",
		Template: "react",
		Files:    files(t, "index.html", "<div id=root></div>", "App.jsx", "<h1/>"),
	})
	require.NoError(t, err)
	_, err = repo.AddCollaborator(ctx, "alice", p.ID, "bob", RoleEditor)
	require.NoError(t, err)

	// bob opens the project, edits it and syncs back
	ws, err := mgr.Create(ctx, p.WorkspaceOptions("bob"))
	require.NoError(t, err)
	assert.Equal(t, p.ID, ws.ProjectID)
	assert.Equal(t, "bob", ws.Owner)

	ws, err = mgr.UpdateContent(ctx, "bob", ws.ID, "App.jsx", "<h2/>")
	require.NoError(t, err)

	synced, err := repo.Sync(ctx, ws)
	require.NoError(t, err)
	assert.Equal(t, "<h2/>", flat(synced.Files)["App.jsx"])

	// An unlinked workspace becomes a new project
	scratch, err := mgr.Create(ctx, workspace.CreateOptions{Owner: "carol", Name: "Scratch", Files: files(t, "a.js", "1")})
	require.NoError(t, err)
	_, err = repo.Sync(ctx, scratch)
	assert.ErrorIs(t, err, ErrNotLinked)

	saved, err := repo.FromWorkspace(ctx, scratch, "from the sandbox")
	require.NoError(t, err)
	assert.Equal(t, "carol", saved.Owner)
	assert.Equal(t, map[string]string{"a.js": "1"}, flat(saved.Files))
}

func TestMigrateIsIdempotentAndReversible(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Migrate(ctx))
	require.NoError(t, repo.Rollback(ctx))

	_, err := repo.Create(ctx, CreateInput{Owner: "alice", Name: "x"})
	assert.Error(t, err)

	require.NoError(t, repo.Migrate(ctx))
	_, err = repo.Create(ctx, CreateInput{Owner: "alice", Name: "x"})
	assert.NoError(t, err)
}

func TestQueriesAreMeasured(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetricsWith(reg)
	repo, err := Open(context.Background(), filepath.Join(t.TempDir(), "m.db"), nil, metrics)
	require.NoError(t, err)
	defer repo.Close()

	_, err = repo.Get(context.Background(), "alice", "missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = repo.Create(context.Background(), CreateInput{Owner: "alice", Name: "x"})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DBQueries.WithLabelValues("get", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DBQueries.WithLabelValues("create", "ok")))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("")
	require.NoError(t, err)
	assert.Equal(t, RoleEditor, r)

	r, err = ParseRole("viewer")
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, r)

	_, err = ParseRole("owner")
	assert.ErrorIs(t, err, ErrInvalidRole)
}
