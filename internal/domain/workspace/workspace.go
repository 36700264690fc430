package workspace

import (
	"time"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/vfs"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/id"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/types"
)

// Workspace is a snapshot of an editor session
type Workspace struct {
	ID           id.WorkspaceID      `json:"id"`
	Owner        string              `json:"owner"`
	Name         string              `json:"name"`
	Template     string              `json:"template,omitempty"`
	ProjectID    string              `json:"project_id,omitempty"`
	Root         []*vfs.Node         `json:"root"`
	ActiveFileID *string             `json:"active_file_id"`
	Expanded     []string            `json:"expanded"`
	AutoRun      bool                `json:"auto_run"`
	Console      []types.ConsoleLine `json:"console"`
	Run          types.Run           `json:"run"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`

	// Version is the count of console and run events at snapshot time
	Version int `json:"-"`
}

// Summary is a workspace listing entry
type Summary struct {
	ID        id.WorkspaceID `json:"id"`
	Name      string         `json:"name"`
	Owner     string         `json:"owner"`
	Template  string         `json:"template,omitempty"`
	ProjectID string         `json:"project_id,omitempty"`
	Files     int            `json:"files"`
	AutoRun   bool           `json:"auto_run"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CreateOptions describes a new workspace
type CreateOptions struct {
	Owner     string
	Name      string
	Template  string
	ProjectID string
	Files     []*vfs.Node
	AutoRun   bool
}

// FileWrite is a file addressed by its slash-separated path
type FileWrite struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Listener is told about console and run changes after they are applied.
// version increases with every event of a workspace.
type Listener interface {
	ConsoleAppended(workspace id.WorkspaceID, line types.ConsoleLine, version int)
	ConsoleCleared(workspace id.WorkspaceID, version int)
	RunChanged(workspace id.WorkspaceID, run types.Run, version int)
}

type nopListener struct{}

func (nopListener) ConsoleAppended(id.WorkspaceID, types.ConsoleLine, int) {}
func (nopListener) ConsoleCleared(id.WorkspaceID, int)                     {}
func (nopListener) RunChanged(id.WorkspaceID, types.Run, int)              {}
