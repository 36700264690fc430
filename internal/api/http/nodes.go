package http

import (
	"net/http"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/api/middleware"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/types"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/utils"
	"github.com/gin-gonic/gin"
)

// AddNode creates a file or folder. Name clashes are resolved by suffixing.
func (h *Handlers) AddNode(c *gin.Context) {
	wsID, ok := h.workspaceID(c)
	if !ok {
		return
	}
	var req types.NodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	if err := utils.ValidateNodeID(req.ParentID, "parent_id", true); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	if err := utils.ValidateContent(req.Content); err != nil {
		h.fail(c, badRequest(err))
		return
	}

	node, err := h.workspaces.AddNode(c.Request.Context(), middleware.Owner(c), wsID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, node)
}

// UpdateContent replaces a file's content and re-runs when auto-run is on
func (h *Handlers) UpdateContent(c *gin.Context) {
	wsID, ok := h.workspaceID(c)
	if !ok {
		return
	}
	fileID := nodeID(c)
	if err := utils.ValidateNodeID(fileID, "file_id", false); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	var req types.ContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	if err := utils.ValidateContent(req.Content); err != nil {
		h.fail(c, badRequest(err))
		return
	}

	ws, err := h.workspaces.UpdateContent(c.Request.Context(), middleware.Owner(c), wsID, fileID, req.Content)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.afterEdit(c, ws)
}

// RenameNode renames a file or folder in place
func (h *Handlers) RenameNode(c *gin.Context) {
	wsID, ok := h.workspaceID(c)
	if !ok {
		return
	}
	target := nodeID(c)
	if err := utils.ValidateNodeID(target, "node_id", false); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	var req types.RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, badRequest(err))
		return
	}

	ws, err := h.workspaces.RenameNode(c.Request.Context(), middleware.Owner(c), wsID, target, req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

// MoveNode re-parents a file or folder; an empty parent is the root
func (h *Handlers) MoveNode(c *gin.Context) {
	wsID, ok := h.workspaceID(c)
	if !ok {
		return
	}
	target := nodeID(c)
	if err := utils.ValidateNodeID(target, "node_id", false); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	var req types.MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, badRequest(err))
		return
	}

	ws, err := h.workspaces.MoveNode(c.Request.Context(), middleware.Owner(c), wsID, target, req.ParentID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

// DeleteNode removes a file or a folder with everything under it
func (h *Handlers) DeleteNode(c *gin.Context) {
	wsID, ok := h.workspaceID(c)
	if !ok {
		return
	}
	target := nodeID(c)
	if err := utils.ValidateNodeID(target, "node_id", false); err != nil {
		h.fail(c, badRequest(err))
		return
	}

	ws, err := h.workspaces.DeleteNode(c.Request.Context(), middleware.Owner(c), wsID, target)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

// SetActive selects the file shown in the editor; null clears it
func (h *Handlers) SetActive(c *gin.Context) {
	wsID, ok := h.workspaceID(c)
	if !ok {
		return
	}
	var req types.ActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, badRequest(err))
		return
	}

	ws, err := h.workspaces.SetActive(c.Request.Context(), middleware.Owner(c), wsID, req.FileID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

// SetExpanded opens or closes a folder in the tree view
func (h *Handlers) SetExpanded(c *gin.Context) {
	wsID, ok := h.workspaceID(c)
	if !ok {
		return
	}
	var req types.ExpandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, badRequest(err))
		return
	}

	ws, err := h.workspaces.SetExpanded(c.Request.Context(), middleware.Owner(c), wsID, req.FolderID, req.Expanded)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ws)
}
