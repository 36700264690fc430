package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/api/middleware"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/archive"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/vfs"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/workspace"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ExportWorkspace streams the file tree as tar, tar.gz or tar.zst
func (h *Handlers) ExportWorkspace(c *gin.Context) {
	wsID, ok := h.workspaceID(c)
	if !ok {
		return
	}
	format, err := archive.ParseFormat(c.DefaultQuery("format", string(archive.FormatTarGzip)))
	if err != nil {
		h.fail(c, err)
		return
	}

	ws, err := h.workspaces.Get(c.Request.Context(), middleware.Owner(c), wsID)
	if err != nil {
		h.fail(c, err)
		return
	}

	// Buffered so a failure can still become a JSON error
	var buf bytes.Buffer
	if err := archive.Export(&buf, ws.Root, format, ws.UpdatedAt); err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s%s"`, fileName(ws.Name), format.Extension()))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

// ImportWorkspace creates a workspace from an uploaded archive
func (h *Handlers) ImportWorkspace(c *gin.Context) {
	name := c.Query("name")
	if err := utils.ValidateString(name, "name", 0, utils.MaxNameLength, false); err != nil {
		h.fail(c, badRequest(err))
		return
	}
	nodes, report, ok := h.readArchive(c)
	if !ok {
		return
	}
	if name == "" {
		name = "Imported " + time.Now().UTC().Format("2006-01-02 15:04")
	}

	h.logger.Info("Archive imported",
		zap.String("owner", middleware.Owner(c)),
		zap.String("format", string(report.Format)),
		zap.Int("files", report.Files),
		zap.Int("skipped", len(report.Skipped)))

	h.create(c, workspace.CreateOptions{
		Owner:   middleware.Owner(c),
		Name:    name,
		Files:   nodes,
		AutoRun: true,
	})
}

// ReplaceTree swaps a workspace's files for an uploaded archive's
func (h *Handlers) ReplaceTree(c *gin.Context) {
	wsID, ok := h.workspaceID(c)
	if !ok {
		return
	}
	nodes, report, ok := h.readArchive(c)
	if !ok {
		return
	}
	ws, err := h.workspaces.ReplaceTree(c.Request.Context(), middleware.Owner(c), wsID, nodes)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("X-Import-Files", fmt.Sprint(report.Files))
	c.Header("X-Import-Skipped", fmt.Sprint(len(report.Skipped)))
	h.afterEdit(c, ws)
}

// readArchive decodes the request body. The format comes from the query,
// then Content-Type, then the stream itself.
func (h *Handlers) readArchive(c *gin.Context) ([]*vfs.Node, *archive.Report, bool) {
	raw := c.Query("format")
	if raw == "" {
		raw = formatFromContentType(c.ContentType())
	}
	format, err := archive.ParseFormat(raw)
	if err != nil {
		h.fail(c, err)
		return nil, nil, false
	}
	if raw == "" {
		format = ""
	}

	// Compressed input may expand past MaxTotal; the importer enforces that.
	body := http.MaxBytesReader(c.Writer, c.Request.Body, h.limits.MaxTotal)
	nodes, report, err := archive.Import(body, format, h.limits)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			err = fmt.Errorf("%w: upload exceeds %d bytes", archive.ErrTooLarge, tooBig.Limit)
		} else if statusOf(err) == http.StatusInternalServerError {
			// corrupt or truncated upload
			err = badRequest(err)
		}
		h.fail(c, err)
		return nil, nil, false
	}
	return nodes, report, true
}

func formatFromContentType(ct string) string {
	switch ct {
	case "application/gzip", "application/x-gzip":
		return string(archive.FormatTarGzip)
	case "application/zstd":
		return string(archive.FormatTarZstd)
	case "application/x-tar":
		return string(archive.FormatTar)
	}
	return ""
}

// fileName makes a workspace name safe for Content-Disposition
func fileName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		case r == ' ':
			return '-'
		}
		return -1
	}, name)
	if name == "" {
		return "workspace"
	}
	return name
}
