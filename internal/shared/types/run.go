package types

import "time"

// RunState represents the sandbox run lifecycle
type RunState string

const (
	RunIdle    RunState = "idle"
	RunRunning RunState = "running"
	RunSuccess RunState = "success"
	RunFailed  RunState = "failed"
)

// Terminal reports whether the state ends a run
func (s RunState) Terminal() bool {
	return s == RunSuccess || s == RunFailed
}

// Run captures the outcome of the latest sandbox run of a workspace
type Run struct {
	ID         string     `json:"id,omitempty"`
	State      RunState   `json:"state"`
	PreviewURL string     `json:"preview_url,omitempty"`
	Trigger    string     `json:"trigger,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Run triggers
const (
	TriggerManual = "manual"
	TriggerEdit   = "edit"
	TriggerOpen   = "open"
)
