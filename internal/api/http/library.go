package http

import (
	"net/http"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/api/middleware"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/utils"
	"github.com/gin-gonic/gin"
)

// ListTemplates lists starter templates without their files
func (h *Handlers) ListTemplates(c *gin.Context) {
	list := h.templates.List()
	c.JSON(http.StatusOK, gin.H{
		"templates": list,
		"count":     len(list),
	})
}

// GetTemplate returns a template with its files
func (h *Handlers) GetTemplate(c *gin.Context) {
	tmplID := c.Param("template")
	if err := utils.ValidateID(tmplID, "template_id", true); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	t, err := h.templates.Get(tmplID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// ListComponents lists catalog components, optionally by category
func (h *Handlers) ListComponents(c *gin.Context) {
	category := c.Query("category")
	if err := utils.ValidateCategory(category, false); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	list := h.catalog.List(category)
	c.JSON(http.StatusOK, gin.H{
		"components": list,
		"categories": h.catalog.Categories(),
		"count":      len(list),
	})
}

// GetComponent returns a component with its files
func (h *Handlers) GetComponent(c *gin.Context) {
	compID := c.Param("component")
	if err := utils.ValidateID(compID, "component_id", true); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	comp, err := h.catalog.Get(compID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, comp)
}

// InsertComponent copies a component under components/<id>/ and re-runs
// when auto-run is on
func (h *Handlers) InsertComponent(c *gin.Context) {
	wsID, ok := h.workspaceID(c)
	if !ok {
		return
	}
	compID := c.Param("component")
	if err := utils.ValidateID(compID, "component_id", true); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	ws, err := h.catalog.Insert(c.Request.Context(), h.workspaces, middleware.Owner(c), wsID, compID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.afterEdit(c, ws)
}
