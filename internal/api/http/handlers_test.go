package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/api/middleware"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/archive"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/catalog"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/project"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/templates"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/vfs"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/workspace"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/blob"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/relay"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/renderer"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/runner"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/vendor"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/id"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/types"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	router     *gin.Engine
	workspaces *workspace.Manager
	blobs      *blob.Store
}

type envOption func(*Deps)

func withProjects(t *testing.T) envOption {
	return func(d *Deps) {
		repo, err := project.Open(context.Background(), filepath.Join(t.TempDir(), "projects.db"), nil, d.Metrics)
		require.NoError(t, err)
		t.Cleanup(func() { _ = repo.Close() })
		d.Projects = repo
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	metrics := monitoring.NewMetricsWith(prometheus.NewRegistry())
	workspaces := workspace.NewManager(workspace.Options{
		Store:   workspace.NewMemoryStore(),
		Metrics: metrics,
	})
	blobs := blob.NewStore(blob.Options{TTL: time.Minute, MaxBytes: 4 << 20, Metrics: metrics})
	tokens := relay.NewTokens(time.Hour)
	run := runner.New(runner.Options{
		Workspaces: workspaces,
		Renderer:   renderer.New(blobs, tokens, nil, "", nil),
		Metrics:    metrics,
	})
	components, err := catalog.Builtin()
	require.NoError(t, err)

	deps := Deps{
		Workspaces: workspaces,
		Runner:     run,
		Templates:  templates.NewLibrary(),
		Catalog:    components,
		Blobs:      blobs,
		Relay:      relay.New(tokens, relay.NewOrigins([]string{"http://localhost:5173"}), run, nil, metrics),
		Metrics:    metrics,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h := NewHandlers(deps)

	r := gin.New()
	r.Use(middleware.RequestID())
	r.GET("/health", h.Health)
	r.GET("/stats", h.Stats)
	r.GET("/sandbox/blobs/:blob", h.ServeBlob)
	r.POST("/sandbox/relay/:run", h.Relay)
	r.GET("/sandbox/vendor/:name", h.ServeVendor)

	v := r.Group("/api", middleware.Auth(middleware.AuthConfig{DevOwner: "dev"}))
	v.GET("/workspaces", h.ListWorkspaces)
	v.POST("/workspaces", h.CreateWorkspace)
	v.POST("/workspaces/import", h.ImportWorkspace)
	v.GET("/workspaces/:id", h.GetWorkspace)
	v.PATCH("/workspaces/:id", h.RenameWorkspace)
	v.DELETE("/workspaces/:id", h.DeleteWorkspace)
	v.PUT("/workspaces/:id/autorun", h.SetAutoRun)
	v.POST("/workspaces/:id/run", h.RunWorkspace)
	v.POST("/workspaces/:id/check", h.CheckWorkspace)
	v.GET("/workspaces/:id/export", h.ExportWorkspace)
	v.PUT("/workspaces/:id/tree", h.ReplaceTree)
	v.POST("/workspaces/:id/components/:component", h.InsertComponent)
	v.POST("/workspaces/:id/save", h.SaveWorkspace)
	v.POST("/workspaces/:id/nodes", h.AddNode)
	v.DELETE("/workspaces/:id/nodes/*node", h.DeleteNode)
	v.PUT("/workspaces/:id/content/*node", h.UpdateContent)
	v.GET("/projects", h.ListProjects)
	v.POST("/projects", h.CreateProject)
	v.POST("/projects/:project/open", h.OpenProject)
	v.GET("/templates", h.ListTemplates)
	v.GET("/components", h.ListComponents)
	v.POST("/logs", h.StreamLogs)

	return &testEnv{router: r, workspaces: workspaces, blobs: blobs}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doJSON(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return e.do(t, method, path, bytes.NewReader(data))
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *testEnv) create(t *testing.T, template string) workspace.Workspace {
	t.Helper()
	w := e.doJSON(t, http.MethodPost, "/api/workspaces", gin.H{"template": template, "name": "Demo"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[workspace.Workspace](t, w)
}

var relayPattern = regexp.MustCompile(`/sandbox/relay/(run_[0-9A-Z]+)\?token=([0-9a-f-]+)`)

// relayTarget reads the relay URL out of a run's preview document
func (e *testEnv) relayTarget(t *testing.T, ws workspace.Workspace) (string, string) {
	t.Helper()
	w := e.do(t, http.MethodGet, ws.Run.PreviewURL, nil)
	require.Equal(t, http.StatusOK, w.Code)
	m := relayPattern.FindStringSubmatch(w.Body.String())
	require.Len(t, m, 3, "relay URL missing from document")
	return m[1], m[2]
}

func TestCreateWorkspaceRunsOnOpen(t *testing.T) {
	env := newTestEnv(t)
	ws := env.create(t, templates.Vanilla)

	assert.Equal(t, "Demo", ws.Name)
	assert.Equal(t, "dev", ws.Owner)
	assert.True(t, ws.AutoRun)
	assert.Equal(t, types.RunSuccess, ws.Run.State)
	assert.Equal(t, types.TriggerOpen, ws.Run.Trigger)
	assert.True(t, strings.HasPrefix(ws.Run.PreviewURL, blob.URLPrefix))

	w := env.do(t, http.MethodGet, "/api/workspaces", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Count int `json:"count"`
	}](t, w)
	assert.Equal(t, 1, list.Count)
}

func TestCreateWorkspaceUnknownTemplate(t *testing.T) {
	env := newTestEnv(t)
	w := env.doJSON(t, http.MethodPost, "/api/workspaces", gin.H{"template": "nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestServeBlobSetsSandboxPolicy(t *testing.T) {
	env := newTestEnv(t)
	ws := env.create(t, templates.Vanilla)

	w := env.do(t, http.MethodGet, ws.Run.PreviewURL, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, renderer.SandboxPolicy, w.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Hello, VibeCoder!")

	w = env.do(t, http.MethodGet, blob.URLPrefix+"blob_missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateContentHonoursAutoRun(t *testing.T) {
	env := newTestEnv(t)
	ws := env.create(t, templates.Vanilla)
	base := "/api/workspaces/" + ws.ID.String()

	w := env.doJSON(t, http.MethodPut, base+"/content/index.html", types.ContentRequest{Content: "<p>one</p>"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	edited := decode[workspace.Workspace](t, w)
	assert.NotEqual(t, ws.Run.ID, edited.Run.ID)
	assert.Equal(t, types.TriggerEdit, edited.Run.Trigger)

	w = env.doJSON(t, http.MethodPut, base+"/autorun", gin.H{"auto_run": false})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.doJSON(t, http.MethodPut, base+"/content/index.html", types.ContentRequest{Content: "<p>two</p>"})
	require.Equal(t, http.StatusOK, w.Code)
	quiet := decode[workspace.Workspace](t, w)
	assert.Equal(t, edited.Run.ID, quiet.Run.ID)

	w = env.do(t, http.MethodPost, base+"/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	run := decode[types.Run](t, w)
	assert.Equal(t, types.TriggerManual, run.Trigger)
	assert.NotEqual(t, quiet.Run.ID, run.ID)
}

func TestNodeRoutesAcceptNestedIDs(t *testing.T) {
	env := newTestEnv(t)
	ws := env.create(t, templates.Vanilla)
	base := "/api/workspaces/" + ws.ID.String()

	w := env.doJSON(t, http.MethodPost, base+"/nodes", types.NodeRequest{Name: "lib", Folder: true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = env.doJSON(t, http.MethodPost, base+"/nodes", types.NodeRequest{ParentID: "lib", Name: "util.js", Content: "1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	node := decode[vfs.Node](t, w)
	assert.Equal(t, "lib/util.js", node.ID)

	w = env.doJSON(t, http.MethodPut, base+"/content/lib/util.js", types.ContentRequest{Content: "2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodDelete, base+"/nodes/lib", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.doJSON(t, http.MethodPut, base+"/content/lib/util.js", types.ContentRequest{Content: "3"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWorkspaceErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"malformed id", http.MethodGet, "/api/workspaces/bad", nil, http.StatusBadRequest},
		{"missing workspace", http.MethodGet, "/api/workspaces/" + id.NewWorkspaceID().String(), nil, http.StatusNotFound},
		{"empty rename", http.MethodPatch, "/api/workspaces/" + id.NewWorkspaceID().String(), gin.H{"name": ""}, http.StatusBadRequest},
		{"unknown component", http.MethodPost, "/api/workspaces/" + id.NewWorkspaceID().String() + "/components/nope", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w *httptest.ResponseRecorder
			if tt.body != nil {
				w = env.doJSON(t, tt.method, tt.path, tt.body)
			} else {
				w = env.do(t, tt.method, tt.path, nil)
			}
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestDeleteWorkspaceRevokesPreview(t *testing.T) {
	env := newTestEnv(t)
	ws := env.create(t, templates.Vanilla)
	require.Positive(t, env.blobs.Len())

	w := env.do(t, http.MethodDelete, "/api/workspaces/"+ws.ID.String(), nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, env.blobs.Len())

	w = env.do(t, http.MethodGet, ws.Run.PreviewURL, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRelayDeliversConsoleMessages(t *testing.T) {
	env := newTestEnv(t)
	ws := env.create(t, templates.Vanilla)
	run, token := env.relayTarget(t, ws)
	target := "/sandbox/relay/" + run + "?token=" + token

	body := `{"type":"console","method":"warn","args":["careful",2],"file":"script.js"}`
	w := env.do(t, http.MethodPost, target, strings.NewReader(body), "Content-Type", "text/plain;charset=UTF-8")
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	got, err := env.workspaces.Get(context.Background(), "dev", ws.ID)
	require.NoError(t, err)
	require.NotEmpty(t, got.Console)
	last := got.Console[len(got.Console)-1]
	assert.Equal(t, types.MethodWarn, last.Method)
	assert.Equal(t, "careful 2", last.Text)
	assert.Equal(t, "script.js", last.File)

	tests := []struct {
		name   string
		path   string
		body   string
		origin string
		status int
	}{
		{"wrong token", "/sandbox/relay/" + run + "?token=nope", body, "", http.StatusForbidden},
		{"unknown run", "/sandbox/relay/" + id.NewRunID().String() + "?token=" + token, body, "", http.StatusNotFound},
		{"foreign origin", target, body, "https://evil.example", http.StatusForbidden},
		{"listed origin", target, body, "http://localhost:5173", http.StatusNoContent},
		{"bad type", target, `{"type":"shout"}`, "", http.StatusBadRequest},
		{"bad json", target, `{`, "", http.StatusBadRequest},
		{"bad run id", "/sandbox/relay/x?token=" + token, body, "", http.StatusBadRequest},
		{"oversized", target, `{"type":"console","args":["` + strings.Repeat("a", MaxRelayBody) + `"]}`, "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := []string{"Content-Type", "text/plain"}
			if tt.origin != "" {
				headers = append(headers, "Origin", tt.origin)
			}
			w := env.do(t, http.MethodPost, tt.path, strings.NewReader(tt.body), headers...)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestRelayLoadedRevokesBlobs(t *testing.T) {
	env := newTestEnv(t)
	ws := env.create(t, templates.Vanilla)
	run, token := env.relayTarget(t, ws)

	w := env.do(t, http.MethodPost, "/sandbox/relay/"+run+"?token="+token, strings.NewReader(`{"type":"loaded"}`))
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, env.blobs.Len())

	// Runtime output keeps flowing after the document has loaded
	w = env.do(t, http.MethodPost, "/sandbox/relay/"+run+"?token="+token,
		strings.NewReader(`{"type":"console","method":"log","args":["later"]}`))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestExportImportRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ws := env.create(t, templates.Vanilla)

	w := env.do(t, http.MethodGet, "/api/workspaces/"+ws.ID.String()+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, `attachment; filename="Demo.tar.gz"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, archive.FormatTarGzip.ContentType(), w.Header().Get("Content-Type"))
	data := w.Body.Bytes()

	w = env.do(t, http.MethodPost, "/api/workspaces/import?name=Copy", bytes.NewReader(data), "Content-Type", "application/gzip")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	imported := decode[workspace.Workspace](t, w)
	assert.Equal(t, "Copy", imported.Name)
	assert.Equal(t, types.RunSuccess, imported.Run.State)
	assert.Equal(t, names(ws.Root), names(imported.Root))

	w = env.do(t, http.MethodPut, "/api/workspaces/"+imported.ID.String()+"/tree", bytes.NewReader(data), "Content-Type", "application/octet-stream")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "3", w.Header().Get("X-Import-Files"))
	assert.Equal(t, "0", w.Header().Get("X-Import-Skipped"))

	w = env.do(t, http.MethodGet, "/api/workspaces/"+ws.ID.String()+"/export?format=zip", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/workspaces/import", strings.NewReader("not an archive at all"), "Content-Type", "application/gzip")
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func names(nodes []*vfs.Node) []string {
	var out []string
	for _, n := range nodes {
		out = append(out, n.ID)
		out = append(out, names(n.Children)...)
	}
	return out
}

func TestCheckWithoutHeadless(t *testing.T) {
	env := newTestEnv(t)
	ws := env.create(t, templates.Vanilla)

	w := env.do(t, http.MethodPost, "/api/workspaces/"+ws.ID.String()+"/check", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLibraries(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/templates", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), templates.React)

	w = env.do(t, http.MethodGet, "/api/components", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Count      int      `json:"count"`
		Categories []string `json:"categories"`
	}](t, w)
	assert.Positive(t, list.Count)
	assert.NotEmpty(t, list.Categories)
}

func TestProjectsDisabled(t *testing.T) {
	env := newTestEnv(t)
	ws := env.create(t, templates.Vanilla)

	w := env.do(t, http.MethodGet, "/api/projects", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	w = env.doJSON(t, http.MethodPost, "/api/workspaces/"+ws.ID.String()+"/save", gin.H{})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"enabled":false`)
}

func TestProjectLifecycle(t *testing.T) {
	env := newTestEnv(t, withProjects(t))

	w := env.doJSON(t, http.MethodPost, "/api/projects", gin.H{"name": "Site", "template": templates.Vanilla})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	p := decode[project.Project](t, w)
	assert.Equal(t, "dev", p.Owner)
	assert.Len(t, p.Files, 3)

	w = env.do(t, http.MethodPost, "/api/projects/"+p.ID+"/open", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	opened := decode[workspace.Workspace](t, w)
	assert.Equal(t, p.ID, opened.ProjectID)

	w = env.doJSON(t, http.MethodPost, "/api/workspaces/"+opened.ID.String()+"/save", gin.H{"description": "copy"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Count int `json:"count"`
	}](t, w)
	assert.Equal(t, 2, list.Count)

	w = env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy"`)
}

func TestVendorRoutes(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/sandbox/vendor/react", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	mirror, err := vendor.New(vendor.Config{Mode: vendor.ModeCDN}, nil, nil)
	require.NoError(t, err)
	env = newTestEnv(t, func(d *Deps) { d.Vendor = mirror })
	w = env.do(t, http.MethodGet, "/sandbox/vendor/react", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamLogs(t *testing.T) {
	env := newTestEnv(t)

	w := env.doJSON(t, http.MethodPost, "/api/logs", UILogStreamRequest{
		Source:  "ui",
		Entries: []UILogEntry{{Level: "warn", Message: "slow render", Context: map[string]interface{}{"ms": 120}}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"entries_received":1`)

	w = env.doJSON(t, http.MethodPost, "/api/logs", UILogStreamRequest{Source: "server", Entries: []UILogEntry{{Message: "x"}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.doJSON(t, http.MethodPost, "/api/logs", UILogStreamRequest{Source: "ui"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("load: %w", workspace.ErrNotFound), http.StatusNotFound},
		{workspace.ErrForbidden, http.StatusForbidden},
		{runner.ErrInvalidTransition, http.StatusConflict},
		{archive.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{badRequest(errors.New("x")), http.StatusBadRequest},
		{errProjectsDisabled, http.StatusServiceUnavailable},
		{vendor.ErrStatus, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, statusOf(tt.err), tt.err.Error())
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "My-Site_2", fileName("My Site_2"))
	assert.Equal(t, "workspace", fileName("/<>"))
}
