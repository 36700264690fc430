// Package http holds the REST handlers of the sandbox backend: workspace
// editing and runs, saved projects, the component and template libraries,
// and the unauthenticated sandbox routes the preview document talks to.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/archive"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/catalog"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/project"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/templates"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/workspace"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/blob"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/relay"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/runner"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/vendor"
	"github.com/gin-gonic/gin"
)

// Version is reported by the root endpoint
const Version = "0.3.0"

// Deps are the components the handlers serve. Projects and Vendor may be
// nil; their routes then answer 503 and 404.
type Deps struct {
	Workspaces *workspace.Manager
	Runner     *runner.Runner
	Projects   *project.Repository
	Templates  *templates.Library
	Catalog    *catalog.Catalog
	Blobs      *blob.Store
	Relay      *relay.Relay
	Vendor     *vendor.Mirror
	Archive    archive.Limits
	Logger     *logging.Logger
	Metrics    *monitoring.Metrics
}

// Handlers contains all HTTP handlers
type Handlers struct {
	workspaces *workspace.Manager
	runner     *runner.Runner
	projects   *project.Repository
	templates  *templates.Library
	catalog    *catalog.Catalog
	blobs      *blob.Store
	relay      *relay.Relay
	vendor     *vendor.Mirror
	limits     archive.Limits
	logger     *logging.Logger
	metrics    *monitoring.Metrics
}

// NewHandlers creates a new handler set
func NewHandlers(deps Deps) *Handlers {
	if deps.Archive == (archive.Limits{}) {
		deps.Archive = archive.DefaultLimits()
	}
	return &Handlers{
		workspaces: deps.Workspaces,
		runner:     deps.Runner,
		projects:   deps.Projects,
		templates:  deps.Templates,
		catalog:    deps.Catalog,
		blobs:      deps.Blobs,
		relay:      deps.Relay,
		vendor:     deps.Vendor,
		limits:     deps.Archive,
		logger:     logging.OrNop(deps.Logger).Named("http"),
		metrics:    deps.Metrics,
	}
}

// Root identifies the service
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "VibeCoder Sandbox (Go)",
		"version": Version,
	})
}

// Health reports component state. A failing database ping degrades the
// status but still answers 200 so the editor keeps working without projects.
func (h *Handlers) Health(c *gin.Context) {
	status := "healthy"
	db := gin.H{"enabled": h.projects != nil}
	if h.projects != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		db["dialect"] = h.projects.Dialect()
		if err := h.projects.Ping(ctx); err != nil {
			status = "degraded"
			db["error"] = err.Error()
		}
	}

	body := gin.H{
		"status":     status,
		"workspaces": gin.H{"loaded": h.workspaces.Loaded()},
		"blobs":      gin.H{"count": h.blobs.Len(), "bytes": h.blobs.Size()},
		"relay":      gin.H{"tokens": h.relay.Tokens().Len(), "origins": h.relay.Origins().List()},
		"database":   db,
	}
	if h.vendor != nil {
		body["vendor"] = h.vendor.Status()
	}
	c.JSON(http.StatusOK, body)
}

// Stats returns the JSON metrics snapshot
func (h *Handlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}
