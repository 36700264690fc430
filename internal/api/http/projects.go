package http

import (
	"net/http"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/api/middleware"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/project"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/utils"
	"github.com/gin-gonic/gin"
)

// CollaboratorRequest shares a project
type CollaboratorRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role"`
}

// SaveRequest saves a workspace as a new project
type SaveRequest struct {
	Description string `json:"description"`
}

// projectReady answers 503 when no database is configured
func (h *Handlers) projectReady(c *gin.Context) bool {
	if h.projects == nil {
		h.fail(c, errProjectsDisabled)
		return false
	}
	return true
}

// projectID reads and validates the :project parameter
func (h *Handlers) projectID(c *gin.Context) (string, bool) {
	if !h.projectReady(c) {
		return "", false
	}
	raw := c.Param("project")
	if err := utils.ValidateID(raw, "project_id", true); err != nil {
		h.fail(c, badRequest(err))
		return "", false
	}
	return raw, true
}

// ListProjects lists projects the caller owns or collaborates on
func (h *Handlers) ListProjects(c *gin.Context) {
	if !h.projectReady(c) {
		return
	}
	list, err := h.projects.List(c.Request.Context(), middleware.Owner(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"projects": list,
		"count":    len(list),
	})
}

// CreateProject stores a project from files or a template
func (h *Handlers) CreateProject(c *gin.Context) {
	if !h.projectReady(c) {
		return
	}
	var in project.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	if err := utils.ValidateName(in.Name, "name"); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	if err := utils.ValidateDescription(in.Description, "description", false); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	if len(in.Files) == 0 && in.Template != "" {
		tmpl, err := h.templates.Get(in.Template)
		if err != nil {
			h.fail(c, err)
			return
		}
		if in.Files, err = tmpl.Nodes(); err != nil {
			h.fail(c, err)
			return
		}
	}
	in.Owner = middleware.Owner(c)

	p, err := h.projects.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// GetProject returns a project with its files and members
func (h *Handlers) GetProject(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	p, err := h.projects.Get(c.Request.Context(), middleware.Owner(c), projectID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpdateProject applies a partial update
func (h *Handlers) UpdateProject(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	var patch project.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	if patch.Name != nil {
		if err := utils.ValidateName(*patch.Name, "name"); err != nil {
			h.fail(c, badRequest(err))
			return
		}
	}
	if patch.Description != nil {
		if err := utils.ValidateDescription(*patch.Description, "description", false); err != nil {
			h.fail(c, badRequest(err))
			return
		}
	}

	p, err := h.projects.Update(c.Request.Context(), middleware.Owner(c), projectID, patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// DeleteProject removes a project; owner only
func (h *Handlers) DeleteProject(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	if err := h.projects.Delete(c.Request.Context(), middleware.Owner(c), projectID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddCollaborator grants a user editor or viewer access
func (h *Handlers) AddCollaborator(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	var req CollaboratorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	if err := utils.ValidateString(req.UserID, "user_id", 1, utils.MaxIDLength, true); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	role, err := project.ParseRole(req.Role)
	if err != nil {
		h.fail(c, err)
		return
	}

	p, err := h.projects.AddCollaborator(c.Request.Context(), middleware.Owner(c), projectID, req.UserID, role)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// RemoveCollaborator revokes a user's access. Collaborators may remove
// themselves.
func (h *Handlers) RemoveCollaborator(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	userID := c.Param("user")
	if err := h.projects.RemoveCollaborator(c.Request.Context(), middleware.Owner(c), projectID, userID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// OpenProject creates a linked workspace from the project's files
func (h *Handlers) OpenProject(c *gin.Context) {
	projectID, ok := h.projectID(c)
	if !ok {
		return
	}
	owner := middleware.Owner(c)
	p, err := h.projects.Get(c.Request.Context(), owner, projectID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.create(c, p.WorkspaceOptions(owner))
}

// SaveWorkspace stores a workspace as a new project and links the two
func (h *Handlers) SaveWorkspace(c *gin.Context) {
	if !h.projectReady(c) {
		return
	}
	wsID, ok := h.workspaceID(c)
	if !ok {
		return
	}
	var req SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	if err := utils.ValidateDescription(req.Description, "description", false); err != nil {
		h.fail(c, badRequest(err))
		return
	}

	ctx := c.Request.Context()
	owner := middleware.Owner(c)
	ws, err := h.workspaces.Get(ctx, owner, wsID)
	if err != nil {
		h.fail(c, err)
		return
	}
	p, err := h.projects.FromWorkspace(ctx, ws, req.Description)
	if err != nil {
		h.fail(c, err)
		return
	}
	if _, err := h.workspaces.LinkProject(ctx, owner, wsID, p.ID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// SyncWorkspace writes a linked workspace's files back to its project
func (h *Handlers) SyncWorkspace(c *gin.Context) {
	if !h.projectReady(c) {
		return
	}
	wsID, ok := h.workspaceID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	ws, err := h.workspaces.Get(ctx, middleware.Owner(c), wsID)
	if err != nil {
		h.fail(c, err)
		return
	}
	p, err := h.projects.Sync(ctx, ws)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
