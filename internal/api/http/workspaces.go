package http

import (
	"net/http"
	"strings"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/api/middleware"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/workspace"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/id"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/types"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/utils"
	"github.com/gin-gonic/gin"
)

// workspaceID reads and validates the :id parameter
func (h *Handlers) workspaceID(c *gin.Context) (id.WorkspaceID, bool) {
	raw := c.Param("id")
	if err := utils.ValidateWorkspaceID(raw); err != nil {
		h.fail(c, badRequest(err))
		return "", false
	}
	return id.WorkspaceID(raw), true
}

// nodeID reads the catch-all :node parameter
func nodeID(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("node"), "/")
}

// ListWorkspaces lists the caller's workspaces
func (h *Handlers) ListWorkspaces(c *gin.Context) {
	list, err := h.workspaces.List(c.Request.Context(), middleware.Owner(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"workspaces": list,
		"count":      len(list),
	})
}

// CreateWorkspace creates a workspace from a template and runs it
func (h *Handlers) CreateWorkspace(c *gin.Context) {
	var req types.CreateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	if err := utils.ValidateString(req.Name, "name", 0, utils.MaxNameLength, false); err != nil {
		h.fail(c, badRequest(err))
		return
	}

	tmpl, err := h.templates.Get(req.Template)
	if err != nil {
		h.fail(c, err)
		return
	}
	opts, err := tmpl.CreateOptions(middleware.Owner(c), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	if req.AutoRun != nil {
		opts.AutoRun = *req.AutoRun
	}
	h.create(c, opts)
}

// create persists a workspace, runs it once and answers 201
func (h *Handlers) create(c *gin.Context, opts workspace.CreateOptions) {
	ctx := c.Request.Context()
	ws, err := h.workspaces.Create(ctx, opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	if _, err := h.runner.Run(ctx, ws.Owner, ws.ID, types.TriggerOpen); err != nil {
		h.fail(c, err)
		return
	}
	ws, err = h.workspaces.Get(ctx, ws.Owner, ws.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ws)
}

// GetWorkspace returns a workspace snapshot
func (h *Handlers) GetWorkspace(c *gin.Context) {
	wsID, ok := h.workspaceID(c)
	if !ok {
		return
	}
	ws, err := h.workspaces.Get(c.Request.Context(), middleware.Owner(c), wsID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

// RenameWorkspace changes a workspace's display name
func (h *Handlers) RenameWorkspace(c *gin.Context) {
	wsID, ok := h.workspaceID(c)
	if !ok {
		return
	}
	var req types.RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	if err := utils.ValidateName(req.Name, "name"); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	ws, err := h.workspaces.Rename(c.Request.Context(), middleware.Owner(c), wsID, req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

// DeleteWorkspace drops the current preview and deletes the workspace
func (h *Handlers) DeleteWorkspace(c *gin.Context) {
	wsID, ok := h.workspaceID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	owner := middleware.Owner(c)
	if _, err := h.workspaces.Get(ctx, owner, wsID); err != nil {
		h.fail(c, err)
		return
	}
	h.runner.Discard(ctx, wsID)
	if err := h.workspaces.Delete(ctx, owner, wsID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetAutoRun toggles running on every content edit
func (h *Handlers) SetAutoRun(c *gin.Context) {
	wsID, ok := h.workspaceID(c)
	if !ok {
		return
	}
	var req struct {
		AutoRun bool `json:"auto_run"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	ws, err := h.workspaces.SetAutoRun(c.Request.Context(), middleware.Owner(c), wsID, req.AutoRun)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

// ClearConsole empties the console panel
func (h *Handlers) ClearConsole(c *gin.Context) {
	wsID, ok := h.workspaceID(c)
	if !ok {
		return
	}
	if err := h.workspaces.ClearConsole(c.Request.Context(), middleware.Owner(c), wsID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RunWorkspace starts a manual run. A render failure is not an HTTP error:
// the run comes back failed with the message on the console panel.
func (h *Handlers) RunWorkspace(c *gin.Context) {
	wsID, ok := h.workspaceID(c)
	if !ok {
		return
	}
	run, err := h.runner.Run(c.Request.Context(), middleware.Owner(c), wsID, types.TriggerManual)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// CheckWorkspace executes the scripts headlessly
func (h *Handlers) CheckWorkspace(c *gin.Context) {
	wsID, ok := h.workspaceID(c)
	if !ok {
		return
	}
	result, err := h.runner.Check(c.Request.Context(), middleware.Owner(c), wsID)
	if err != nil {
		h.fail(c, err)
		return
	}
	lines := make([]string, 0, len(result.Messages))
	for _, m := range result.Messages {
		lines = append(lines, m.Format())
	}
	c.JSON(http.StatusOK, gin.H{
		"result": result,
		"lines":  lines,
		"failed": result.Failed(),
	})
}

// afterEdit runs the workspace when auto-run is on and answers with the
// latest snapshot
func (h *Handlers) afterEdit(c *gin.Context, ws *workspace.Workspace) {
	ctx := c.Request.Context()
	_, ran, err := h.runner.Edited(ctx, ws.Owner, ws.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if ran {
		if ws, err = h.workspaces.Get(ctx, ws.Owner, ws.ID); err != nil {
			h.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, ws)
}
