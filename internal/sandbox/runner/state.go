package runner

import (
	"errors"
	"fmt"
	"time"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/types"
)

var (
	ErrInvalidTransition = errors.New("invalid run state transition")
	ErrRunInProgress     = errors.New("a run is already in progress")
)

var transitions = map[types.RunState][]types.RunState{
	types.RunIdle:    {types.RunRunning},
	types.RunRunning: {types.RunSuccess, types.RunFailed},
	types.RunSuccess: {types.RunIdle},
	types.RunFailed:  {types.RunIdle},
}

// CanTransition reports whether a run may move from one state to another
func CanTransition(from, to types.RunState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Begin derives the running state of a new run from the previous one. A
// finished run passes through idle first. The previous preview URL is kept
// until the new run succeeds.
func Begin(prev types.Run, runID, trigger string, now time.Time) (types.Run, error) {
	state := prev.State
	if state == "" {
		state = types.RunIdle
	}
	if state.Terminal() {
		state = types.RunIdle
	}
	if state == types.RunRunning {
		return types.Run{}, ErrRunInProgress
	}
	if !CanTransition(state, types.RunRunning) {
		return types.Run{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, state, types.RunRunning)
	}

	started := now
	return types.Run{
		ID:         runID,
		State:      types.RunRunning,
		PreviewURL: prev.PreviewURL,
		Trigger:    trigger,
		StartedAt:  &started,
	}, nil
}

// Succeed moves a running run to success with its new preview
func Succeed(run types.Run, previewURL string, now time.Time) (types.Run, error) {
	if !CanTransition(run.State, types.RunSuccess) {
		return run, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, run.State, types.RunSuccess)
	}
	finished := now
	run.State = types.RunSuccess
	run.PreviewURL = previewURL
	run.Error = ""
	run.FinishedAt = &finished
	return run, nil
}

// Fail moves a running run to failed, leaving the previous preview in place
func Fail(run types.Run, cause error, now time.Time) (types.Run, error) {
	if !CanTransition(run.State, types.RunFailed) {
		return run, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, run.State, types.RunFailed)
	}
	finished := now
	run.State = types.RunFailed
	if cause != nil {
		run.Error = cause.Error()
	}
	run.FinishedAt = &finished
	return run, nil
}
