// Package runner drives preview runs: it moves a workspace through
// idle, running and success or failed, renders the files and records the
// outcome on the workspace's console panel.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/workspace"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/headless"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/renderer"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/id"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/types"
	"go.uber.org/zap"
)

// ErrHeadlessDisabled is returned by Check when no pool is configured
var ErrHeadlessDisabled = errors.New("headless runner is disabled")

// Options configures a Runner
type Options struct {
	Workspaces *workspace.Manager
	Renderer   *renderer.Renderer
	Headless   *headless.Pool
	Tracer     *tracing.Tracer
	Logger     *logging.Logger
	Metrics    *monitoring.Metrics
	Now        func() time.Time
}

// Runner serialises runs per workspace
type Runner struct {
	workspaces *workspace.Manager
	renderer   *renderer.Renderer
	headless   *headless.Pool
	tracer     *tracing.Tracer
	logger     *logging.Logger
	metrics    *monitoring.Metrics
	now        func() time.Time

	mu    sync.Mutex
	locks map[id.WorkspaceID]*sync.Mutex
}

// New creates a runner
func New(opts Options) *Runner {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{
		workspaces: opts.Workspaces,
		renderer:   opts.Renderer,
		headless:   opts.Headless,
		tracer:     opts.Tracer,
		logger:     logging.OrNop(opts.Logger).Named("runner"),
		metrics:    opts.Metrics,
		now:        opts.Now,
		locks:      make(map[id.WorkspaceID]*sync.Mutex),
	}
}

// Run clears the console, renders the workspace and records the outcome. A
// render failure is not returned: the run ends failed with an error line and
// the previous preview stays current.
func (r *Runner) Run(ctx context.Context, owner string, wsID id.WorkspaceID, trigger string) (types.Run, error) {
	if err := r.authorize(ctx, owner, wsID); err != nil {
		return types.Run{}, err
	}

	lock := r.lock(wsID)
	lock.Lock()
	defer lock.Unlock()

	runID := id.NewRunID()
	timer := monitoring.NewTimer(r.metrics, trigger)

	var started types.Run
	files, err := r.workspaces.StartRun(ctx, wsID, func(prev types.Run) (types.Run, error) {
		var err error
		started, err = Begin(prev, runID.String(), trigger, r.now())
		return started, err
	})
	if err != nil {
		return types.Run{}, err
	}

	var (
		finished types.Run
		msgs     []types.ConsoleMessage
	)
	span, renderCtx := r.tracer.StartSpan(ctx, "runner.render")
	span.SetTag("workspace", wsID.String())
	span.SetTag("run", runID.String())
	preview, renderErr := r.renderer.Render(renderCtx, wsID, runID, files)
	r.tracer.End(span, renderErr)
	if renderErr != nil {
		finished, err = Fail(started, renderErr, r.now())
		msgs = append(msgs, types.ConsoleMessage{Method: types.MethodError, Text: renderErr.Error()})
	} else {
		finished, err = Succeed(started, preview.DocumentURL, r.now())
	}
	if err != nil {
		return types.Run{}, err
	}

	duration := timer.Stop(string(finished.State))
	if err := r.workspaces.FinishRun(ctx, wsID, finished, msgs...); err != nil {
		r.renderer.Discard(runID)
		return types.Run{}, err
	}

	fields := []zap.Field{
		zap.String("workspace", wsID.String()),
		zap.String("run", runID.String()),
		zap.String("trigger", trigger),
		zap.String("state", string(finished.State)),
		zap.Duration("duration", duration),
	}
	if renderErr != nil {
		r.logger.Warn("Run failed", append(fields, zap.Error(renderErr))...)
	} else {
		r.logger.Info("Run finished", fields...)
	}
	return finished, nil
}

// Edited runs the workspace when auto-run is on. ran is false otherwise.
func (r *Runner) Edited(ctx context.Context, owner string, wsID id.WorkspaceID) (run types.Run, ran bool, err error) {
	ws, err := r.workspaces.Get(ctx, owner, wsID)
	if err != nil {
		return types.Run{}, false, err
	}
	if !ws.AutoRun {
		return ws.Run, false, nil
	}
	run, err = r.Run(ctx, owner, wsID, types.TriggerEdit)
	return run, err == nil, err
}

// Check executes the workspace's scripts headlessly. The console panel is
// not touched.
func (r *Runner) Check(ctx context.Context, owner string, wsID id.WorkspaceID) (*headless.Result, error) {
	if r.headless == nil {
		return nil, ErrHeadlessDisabled
	}
	files, err := r.workspaces.Files(ctx, owner, wsID)
	if err != nil {
		return nil, err
	}
	return r.headless.Execute(ctx, files)
}

// Discard drops the blobs and relay token of the workspace's current run
func (r *Runner) Discard(ctx context.Context, wsID id.WorkspaceID) {
	run, err := r.workspaces.CurrentRun(ctx, wsID)
	if err != nil || run.ID == "" {
		return
	}
	n := r.renderer.Discard(id.RunID(run.ID))

	r.mu.Lock()
	delete(r.locks, wsID)
	r.mu.Unlock()

	r.logger.Debug("Run discarded",
		zap.String("workspace", wsID.String()),
		zap.String("run", run.ID),
		zap.Int("blobs", n))
}

// AppendConsole records a relayed console message. Messages from a
// superseded run are dropped.
func (r *Runner) AppendConsole(ctx context.Context, wsID id.WorkspaceID, run id.RunID, msg types.ConsoleMessage) error {
	_, err := r.workspaces.AppendConsole(ctx, wsID, run.String(), msg)
	if errors.Is(err, workspace.ErrStaleRun) {
		r.logger.Debug("Dropping message from stale run",
			zap.String("workspace", wsID.String()),
			zap.String("run", run.String()))
		return nil
	}
	return err
}

// PreviewLoaded revokes the run's blobs once the document has loaded them
func (r *Runner) PreviewLoaded(_ context.Context, wsID id.WorkspaceID, run id.RunID) error {
	n := r.renderer.Loaded(run)
	r.logger.Debug("Preview loaded",
		zap.String("workspace", wsID.String()),
		zap.String("run", run.String()),
		zap.Int("revoked", n))
	return nil
}

func (r *Runner) authorize(ctx context.Context, owner string, wsID id.WorkspaceID) error {
	wsOwner, err := r.workspaces.Owner(ctx, wsID)
	if err != nil {
		return err
	}
	if wsOwner != owner {
		return fmt.Errorf("%w: %s", workspace.ErrForbidden, wsID)
	}
	return nil
}

func (r *Runner) lock(wsID id.WorkspaceID) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[wsID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[wsID] = l
	}
	return l
}
