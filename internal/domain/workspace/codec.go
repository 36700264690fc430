package workspace

import (
	"fmt"
	"time"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/vfs"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/id"
	"github.com/bytedance/sonic"
)

// document is the persisted form. Console and run state are not stored.
type document struct {
	ID           id.WorkspaceID `json:"id"`
	Owner        string         `json:"owner"`
	Name         string         `json:"name"`
	Template     string         `json:"template,omitempty"`
	ProjectID    string         `json:"project_id,omitempty"`
	Root         []*vfs.Node    `json:"root"`
	ActiveFileID *string        `json:"active_file_id"`
	Expanded     []string       `json:"expanded"`
	AutoRun      bool           `json:"auto_run"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Key returns the storage key of a workspace document
func Key(wsID id.WorkspaceID) string {
	return "workspaces/" + wsID.String() + ".json"
}

func encode(ws *Workspace) ([]byte, error) {
	doc := document{
		ID:           ws.ID,
		Owner:        ws.Owner,
		Name:         ws.Name,
		Template:     ws.Template,
		ProjectID:    ws.ProjectID,
		Root:         ws.Root,
		ActiveFileID: ws.ActiveFileID,
		Expanded:     ws.Expanded,
		AutoRun:      ws.AutoRun,
		CreatedAt:    ws.CreatedAt,
		UpdatedAt:    ws.UpdatedAt,
	}
	data, err := sonic.ConfigStd.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("encode workspace %s: %w", ws.ID, err)
	}
	return data, nil
}

func decode(data []byte) (*Workspace, error) {
	var doc document
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode workspace: %w", err)
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("decode workspace: missing id")
	}
	return &Workspace{
		ID:           doc.ID,
		Owner:        doc.Owner,
		Name:         doc.Name,
		Template:     doc.Template,
		ProjectID:    doc.ProjectID,
		Root:         doc.Root,
		ActiveFileID: doc.ActiveFileID,
		Expanded:     doc.Expanded,
		AutoRun:      doc.AutoRun,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}, nil
}
