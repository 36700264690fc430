package headless

import (
	"errors"
	"time"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/types"
)

var (
	ErrPoolClosed = errors.New("headless pool is closed")
	ErrTimeout    = errors.New("headless runtime acquisition timeout")
)

// Config controls a runtime pool
type Config struct {
	// Timeout bounds one execution, timers included
	Timeout time.Duration
	// Size is the number of runtimes that may execute at once
	Size int
	// AcquireTimeout bounds the wait for a free runtime
	AcquireTimeout time.Duration
	// MaxCallStack limits recursion depth
	MaxCallStack int
	// MaxTimerFires stops runaway intervals
	MaxTimerFires int
}

// DefaultConfig returns the settings used by the server
func DefaultConfig() Config {
	return Config{
		Timeout:        2 * time.Second,
		Size:           4,
		AcquireTimeout: 5 * time.Second,
		MaxCallStack:   1024,
		MaxTimerFires:  1000,
	}
}

// Result is the outcome of one execution
type Result struct {
	Messages []types.ConsoleMessage `json:"messages"`
	// Files that were executed, in order
	Files []string `json:"files"`
	// Skipped lists files that need a browser
	Skipped  []string      `json:"skipped,omitempty"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// Errors returns the error messages of the run
func (r *Result) Errors() []types.ConsoleMessage {
	var out []types.ConsoleMessage
	for _, m := range r.Messages {
		if m.Method == types.MethodError {
			out = append(out, m)
		}
	}
	return out
}

// Failed reports whether anything was thrown, rejected or logged as an error
func (r *Result) Failed() bool {
	return r.TimedOut || len(r.Errors()) > 0
}
