package runner

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/vfs"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/workspace"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/assembler"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/blob"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/headless"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/relay"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/renderer"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/id"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "alice"

type fixture struct {
	runner     *Runner
	workspaces *workspace.Manager
	blobs      *blob.Store
	relay      *relay.Relay
	ws         *workspace.Workspace
}

func newFixture(t *testing.T, maxBytes int64, files ...*vfs.Node) *fixture {
	t.Helper()
	blobs := blob.NewStore(blob.Options{TTL: time.Minute, MaxBytes: maxBytes})
	tokens := relay.NewTokens(time.Hour)
	rend := renderer.New(blobs, tokens, renderer.StaticDeps(assembler.Deps{
		React:    "https://cdn.test/react.js",
		ReactDOM: "https://cdn.test/react-dom.js",
		Babel:    "https://cdn.test/babel.js",
	}), "", nil)
	workspaces := workspace.NewManager(workspace.Options{})

	r := New(Options{
		Workspaces: workspaces,
		Renderer:   rend,
		Headless:   headless.NewPool(headless.DefaultConfig(), nil, nil),
	})

	ws, err := workspaces.Create(context.Background(), workspace.CreateOptions{Owner: owner, Name: "t", Files: files, AutoRun: true})
	require.NoError(t, err)

	return &fixture{
		runner:     r,
		workspaces: workspaces,
		blobs:      blobs,
		relay:      relay.New(tokens, relay.NewOrigins(nil), r, nil, nil),
		ws:         ws,
	}
}

func basicFiles() []*vfs.Node {
	return []*vfs.Node{
		{Name: "index.html", Type: vfs.TypeFile, Content: "<h1>hi</h1>"},
		{Name: "style.css", Type: vfs.TypeFile, Content: "h1{color:red}"},
		{Name: "app.js", Type: vfs.TypeFile, Content: "console.log('hi')"},
	}
}

var tokenPattern = regexp.MustCompile(`token=([0-9a-f-]{36})`)

func (f *fixture) document(t *testing.T, run types.Run) string {
	t.Helper()
	b, err := f.blobs.Get(id.BlobID(strings.TrimPrefix(run.PreviewURL, blob.URLPrefix)))
	require.NoError(t, err)
	return string(b.Data)
}

func (f *fixture) token(t *testing.T, run types.Run) string {
	t.Helper()
	m := tokenPattern.FindStringSubmatch(f.document(t, run))
	require.Len(t, m, 2)
	return m[1]
}

func (f *fixture) console(t *testing.T) []string {
	t.Helper()
	ws, err := f.workspaces.Get(context.Background(), owner, f.ws.ID)
	require.NoError(t, err)
	out := make([]string, 0, len(ws.Console))
	for _, line := range ws.Console {
		out = append(out, line.Line)
	}
	return out
}

func TestBegin(t *testing.T) {
	now := time.Unix(100, 0)
	tests := []struct {
		name string
		prev types.Run
		err  error
	}{
		{"zero value", types.Run{}, nil},
		{"idle", types.Run{State: types.RunIdle}, nil},
		{"after success", types.Run{State: types.RunSuccess, PreviewURL: "/old"}, nil},
		{"after failure", types.Run{State: types.RunFailed, PreviewURL: "/old"}, nil},
		{"while running", types.Run{State: types.RunRunning}, ErrRunInProgress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run, err := Begin(tt.prev, "run_x", types.TriggerManual, now)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, types.RunRunning, run.State)
			assert.Equal(t, tt.prev.PreviewURL, run.PreviewURL)
			assert.Equal(t, now, *run.StartedAt)
		})
	}
}

func TestFinishRequiresRunning(t *testing.T) {
	now := time.Now()
	_, err := Succeed(types.Run{State: types.RunIdle}, "/x", now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = Fail(types.Run{State: types.RunSuccess}, errors.New("x"), now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	failed, err := Fail(types.Run{State: types.RunRunning, PreviewURL: "/old"}, errors.New("boom"), now)
	require.NoError(t, err)
	assert.Equal(t, "/old", failed.PreviewURL)
	assert.Equal(t, "boom", failed.Error)

	assert.True(t, CanTransition(types.RunSuccess, types.RunIdle))
	assert.False(t, CanTransition(types.RunIdle, types.RunSuccess))
}

func TestRunPublishesPreview(t *testing.T) {
	f := newFixture(t, 0, basicFiles()...)
	ctx := context.Background()

	_, err := f.workspaces.AppendConsole(ctx, f.ws.ID, "", types.ConsoleMessage{Method: types.MethodLog, Text: "old"})
	require.NoError(t, err)

	run, err := f.runner.Run(ctx, owner, f.ws.ID, types.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, types.RunSuccess, run.State)
	assert.True(t, strings.HasPrefix(run.PreviewURL, blob.URLPrefix))
	assert.NotNil(t, run.FinishedAt)
	assert.Empty(t, f.console(t), "console is cleared at run start")
	assert.Equal(t, 4, f.blobs.Len(), "one blob per file plus the document")

	doc := f.document(t, run)
	assert.Contains(t, doc, `data-vibe="console-shim"`)
	assert.NotContains(t, doc, "react.js")

	current, err := f.workspaces.CurrentRun(ctx, f.ws.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, current.ID)
}

func TestFailedRunKeepsPreviousPreview(t *testing.T) {
	f := newFixture(t, 64<<10, basicFiles()...)
	ctx := context.Background()

	first, err := f.runner.Run(ctx, owner, f.ws.ID, types.TriggerManual)
	require.NoError(t, err)
	held := f.blobs.Len()

	_, err = f.workspaces.UpdateContent(ctx, owner, f.ws.ID, "app.js", strings.Repeat("x", 128<<10))
	require.NoError(t, err)

	second, err := f.runner.Run(ctx, owner, f.ws.ID, types.TriggerEdit)
	require.NoError(t, err)

	assert.Equal(t, types.RunFailed, second.State)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.PreviewURL, second.PreviewURL)
	assert.Contains(t, second.Error, blob.ErrTooLarge.Error())
	assert.Equal(t, held, f.blobs.Len(), "partial blobs of the failed run are revoked")

	lines := f.console(t)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "error: publish "))
}

func TestRerunIsDeterministicModuloURLs(t *testing.T) {
	f := newFixture(t, 0, basicFiles()...)
	ctx := context.Background()

	first, err := f.runner.Run(ctx, owner, f.ws.ID, types.TriggerManual)
	require.NoError(t, err)
	second, err := f.runner.Run(ctx, owner, f.ws.ID, types.TriggerManual)
	require.NoError(t, err)

	firstTags, err := assembler.Inspect(f.document(t, first))
	require.NoError(t, err)
	secondTags, err := assembler.Inspect(f.document(t, second))
	require.NoError(t, err)

	require.Len(t, secondTags, len(firstTags))
	for i := range firstTags {
		assert.Equal(t, firstTags[i].Kind, secondTags[i].Kind)
		assert.Equal(t, firstTags[i].File, secondTags[i].File)
	}
}

func TestRelayRoundTrip(t *testing.T) {
	f := newFixture(t, 0, basicFiles()...)
	ctx := context.Background()

	run, err := f.runner.Run(ctx, owner, f.ws.ID, types.TriggerOpen)
	require.NoError(t, err)
	token := f.token(t, run)

	err = f.relay.Deliver(ctx, relay.Request{
		Run:   id.RunID(run.ID),
		Token: token,
		Message: types.RelayMessage{
			Type:   relay.TypeConsole,
			Method: "error",
			Args:   []json.RawMessage{json.RawMessage(`"Uncaught Error: boom (line 2)"`)},
			File:   "app.js",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"error: [app.js] Uncaught Error: boom (line 2)"}, f.console(t))

	err = f.relay.Deliver(ctx, relay.Request{Run: id.RunID(run.ID), Token: "wrong", Message: types.RelayMessage{Type: relay.TypeLoaded}})
	assert.ErrorIs(t, err, relay.ErrBadToken)
	assert.Equal(t, 4, f.blobs.Len())

	err = f.relay.Deliver(ctx, relay.Request{Run: id.RunID(run.ID), Token: token, Message: types.RelayMessage{Type: relay.TypeLoaded}})
	require.NoError(t, err)
	assert.Equal(t, 0, f.blobs.Len(), "loaded beacon revokes every blob of the run")

	err = f.relay.Deliver(ctx, relay.Request{
		Run:     id.RunID(run.ID),
		Token:   token,
		Message: types.RelayMessage{Type: relay.TypeConsole, Method: "log", Args: []json.RawMessage{json.RawMessage(`1`)}},
	})
	require.NoError(t, err, "console output keeps flowing after load")
	assert.Len(t, f.console(t), 2)
}

func TestStaleRunMessagesAreDropped(t *testing.T) {
	f := newFixture(t, 0, basicFiles()...)
	ctx := context.Background()

	first, err := f.runner.Run(ctx, owner, f.ws.ID, types.TriggerManual)
	require.NoError(t, err)
	token := f.token(t, first)

	_, err = f.runner.Run(ctx, owner, f.ws.ID, types.TriggerManual)
	require.NoError(t, err)

	err = f.relay.Deliver(ctx, relay.Request{
		Run:     id.RunID(first.ID),
		Token:   token,
		Message: types.RelayMessage{Type: relay.TypeConsole, Method: "log", Args: []json.RawMessage{json.RawMessage(`"late"`)}},
	})
	require.NoError(t, err)
	assert.Empty(t, f.console(t))
}

func TestRunChecksOwner(t *testing.T) {
	f := newFixture(t, 0, basicFiles()...)

	_, err := f.runner.Run(context.Background(), "mallory", f.ws.ID, types.TriggerManual)
	assert.ErrorIs(t, err, workspace.ErrForbidden)

	_, err = f.runner.Run(context.Background(), owner, id.NewWorkspaceID(), types.TriggerManual)
	assert.ErrorIs(t, err, workspace.ErrNotFound)
}

func TestEditedHonoursAutoRun(t *testing.T) {
	f := newFixture(t, 0, basicFiles()...)
	ctx := context.Background()

	run, ran, err := f.runner.Edited(ctx, owner, f.ws.ID)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, types.TriggerEdit, run.Trigger)

	_, err = f.workspaces.SetAutoRun(ctx, owner, f.ws.ID, false)
	require.NoError(t, err)
	_, ran, err = f.runner.Edited(ctx, owner, f.ws.ID)
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestJSXRunInjectsDeps(t *testing.T) {
	f := newFixture(t, 0,
		&vfs.Node{Name: "index.html", Type: vfs.TypeFile, Content: `<div id="root"></div>`},
		&vfs.Node{Name: "App.jsx", Type: vfs.TypeFile, Content: "ReactDOM.createRoot(root).render(<h1/>)"},
	)

	run, err := f.runner.Run(context.Background(), owner, f.ws.ID, types.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(f.document(t, run), "https://cdn.test/react.js"))
}

func TestCheck(t *testing.T) {
	f := newFixture(t, 0,
		&vfs.Node{Name: "app.js", Type: vfs.TypeFile, Content: "console.log('ok');\nnull.x;"},
	)

	res, err := f.runner.Check(context.Background(), owner, f.ws.ID)
	require.NoError(t, err)
	require.Len(t, res.Errors(), 1)
	assert.Equal(t, "app.js", res.Errors()[0].SourceFile)
	assert.Empty(t, f.console(t))
}

func TestDiscard(t *testing.T) {
	f := newFixture(t, 0, basicFiles()...)
	ctx := context.Background()

	_, err := f.runner.Run(ctx, owner, f.ws.ID, types.TriggerManual)
	require.NoError(t, err)
	require.NotZero(t, f.blobs.Len())

	f.runner.Discard(ctx, f.ws.ID)
	assert.Zero(t, f.blobs.Len())
}
