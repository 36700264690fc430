package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/archive"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/catalog"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/project"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/templates"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/vfs"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/workspace"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/blob"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/headless"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/relay"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/runner"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/vendor"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errBadRequest       = errors.New("bad request")
	errProjectsDisabled = errors.New("projects are disabled")
	errVendorDisabled   = errors.New("vendor mirror is disabled")
)

type statusRule struct {
	status int
	errs   []error
}

// Checked in order; the first match wins
var statusRules = []statusRule{
	{http.StatusNotFound, []error{
		workspace.ErrNotFound, vfs.ErrNotFound, project.ErrNotFound,
		templates.ErrNotFound, catalog.ErrNotFound, blob.ErrNotFound,
		vendor.ErrUnknownAsset, relay.ErrUnknownRun, errVendorDisabled,
	}},
	{http.StatusForbidden, []error{
		workspace.ErrForbidden, project.ErrForbidden,
		relay.ErrBadToken, relay.ErrOriginDenied,
	}},
	{http.StatusConflict, []error{
		runner.ErrRunInProgress, runner.ErrInvalidTransition, workspace.ErrStaleRun,
	}},
	{http.StatusRequestEntityTooLarge, []error{archive.ErrTooLarge}},
	{http.StatusBadRequest, []error{
		errBadRequest,
		vfs.ErrInvalidName, vfs.ErrNotFolder, vfs.ErrInvalidMove,
		project.ErrInvalid, project.ErrInvalidRole, project.ErrNotLinked,
		archive.ErrUnknownFormat, archive.ErrUnsafePath, archive.ErrEmpty,
		relay.ErrBadMessage,
	}},
	{http.StatusServiceUnavailable, []error{
		errProjectsDisabled, runner.ErrHeadlessDisabled,
		headless.ErrTimeout, headless.ErrPoolClosed, blob.ErrTooLarge,
	}},
	{http.StatusBadGateway, []error{vendor.ErrStatus}},
}

// statusOf maps a domain error onto an HTTP status
func statusOf(err error) int {
	for _, rule := range statusRules {
		for _, target := range rule.errs {
			if errors.Is(err, target) {
				return rule.status
			}
		}
	}
	return http.StatusInternalServerError
}

// fail writes {"error": msg} with the mapped status. Server errors are
// logged; the rest are the client's problem and the request logger has them.
func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// badRequest wraps a validation message so it maps to 400
func badRequest(err error) error {
	return fmt.Errorf("%w: %w", errBadRequest, err)
}
