package project

import (
	"context"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/vfs"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/workspace"
)

// WorkspaceOptions returns the options that open p as a workspace for user.
// The workspace stays linked so it can be synced back.
func (p *Project) WorkspaceOptions(user string) workspace.CreateOptions {
	return workspace.CreateOptions{
		Owner:     user,
		Name:      p.Name,
		Template:  p.Template,
		ProjectID: p.ID,
		Files:     p.Files,
		AutoRun:   true,
	}
}

// FromWorkspace saves a workspace as a new project owned by its owner
func (r *Repository) FromWorkspace(ctx context.Context, ws *workspace.Workspace, description string) (*Project, error) {
	return r.Create(ctx, CreateInput{
		Owner:       ws.Owner,
		Name:        ws.Name,
		Description: description,
		Template:    ws.Template,
		Files:       ws.Root,
	})
}

// Sync writes a linked workspace's files back to its project. The
// workspace owner needs write access on the project.
func (r *Repository) Sync(ctx context.Context, ws *workspace.Workspace) (*Project, error) {
	if ws.ProjectID == "" {
		return nil, ErrNotLinked
	}
	files := ws.Root
	if files == nil {
		files = []*vfs.Node{}
	}
	return r.Update(ctx, ws.Owner, ws.ProjectID, Patch{Files: files})
}
