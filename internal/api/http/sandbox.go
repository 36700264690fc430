package http

import (
	"fmt"
	"io"
	"net/http"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/relay"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/renderer"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/vendor"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/id"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/types"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/utils"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
)

// MaxRelayBody caps one shim delivery
const MaxRelayBody = 64 << 10

// ServeBlob serves a published preview document or file. Documents carry
// the sandbox policy so opening one outside the iframe keeps the same
// restrictions.
func (h *Handlers) ServeBlob(c *gin.Context) {
	b, err := h.blobs.Get(id.BlobID(c.Param("blob")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("X-Content-Type-Options", "nosniff")
	if b.Name == renderer.DocumentName {
		c.Header("Content-Security-Policy", renderer.SandboxPolicy)
	}
	c.Data(http.StatusOK, b.ContentType, b.Data)
}

// Relay accepts a console message or load beacon from a preview document.
// Beacons are sent as text/plain, so the body is decoded regardless of
// Content-Type.
func (h *Handlers) Relay(c *gin.Context) {
	run := c.Param("run")
	if err := utils.ValidateRunID(run); err != nil {
		h.fail(c, badRequest(err))
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxRelayBody+1))
	if err != nil {
		h.fail(c, badRequest(err))
		return
	}
	if len(body) > MaxRelayBody {
		h.fail(c, badRequest(fmt.Errorf("message exceeds %d bytes", MaxRelayBody)))
		return
	}
	var msg types.RelayMessage
	if err := sonic.ConfigStd.Unmarshal(body, &msg); err != nil {
		h.fail(c, badRequest(err))
		return
	}

	err = h.relay.Deliver(c.Request.Context(), relay.Request{
		Run:     id.RunID(run),
		Token:   c.Query("token"),
		Origin:  c.GetHeader("Origin"),
		Host:    c.Request.Host,
		Message: msg,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ServeVendor serves a mirrored React, ReactDOM or Babel script
func (h *Handlers) ServeVendor(c *gin.Context) {
	if h.vendor == nil || h.vendor.Mode() != vendor.ModeMirror {
		h.fail(c, errVendorDisabled)
		return
	}
	asset, err := h.vendor.Asset(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	if asset.ETag != "" {
		c.Header("ETag", asset.ETag)
		if c.GetHeader("If-None-Match") == asset.ETag {
			c.Status(http.StatusNotModified)
			return
		}
	}
	c.Data(http.StatusOK, asset.ContentType, asset.Data)
}

