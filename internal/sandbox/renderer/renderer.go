// Package renderer publishes a workspace's files as preview blobs and
// assembles the document that loads them.
package renderer

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/vfs"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/assembler"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/blob"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/relay"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/id"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// SandboxPolicy is sent as the document's Content-Security-Policy. It
// mirrors the sandbox attributes of the preview iframe.
const SandboxPolicy = "sandbox allow-scripts allow-modals allow-same-origin"

// RelayPath is where the shim posts console messages
const RelayPath = "/sandbox/relay/"

// DocumentName names the document blob of a run
const DocumentName = "(document)"

// DepsProvider returns the React, ReactDOM and Babel URLs
type DepsProvider interface {
	Deps(ctx context.Context) (assembler.Deps, error)
}

// StaticDeps serves fixed URLs
type StaticDeps assembler.Deps

// Deps implements DepsProvider
func (d StaticDeps) Deps(context.Context) (assembler.Deps, error) {
	return assembler.Deps(d), nil
}

// Preview is a published run
type Preview struct {
	Run         id.RunID
	DocumentURL string
	RelayURL    string
	Document    *assembler.Document
	Blobs       []id.BlobID
}

// Renderer turns file lists into previews
type Renderer struct {
	blobs   *blob.Store
	tokens  *relay.Tokens
	deps    DepsProvider
	baseURL string
	logger  *logging.Logger
}

// New creates a renderer. baseURL prefixes every generated URL and may be
// empty when the host UI and the backend share an origin.
func New(blobs *blob.Store, tokens *relay.Tokens, deps DepsProvider, baseURL string, logger *logging.Logger) *Renderer {
	return &Renderer{
		blobs:   blobs,
		tokens:  tokens,
		deps:    deps,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logging.OrNop(logger).Named("renderer"),
	}
}

// Render publishes files for run. On error every blob created so far is
// revoked and the run's relay token is dropped.
func (r *Renderer) Render(ctx context.Context, workspace id.WorkspaceID, run id.RunID, files []*vfs.Node) (preview *Preview, err error) {
	token := r.tokens.Issue(run, workspace)
	defer func() {
		if err != nil {
			r.blobs.RevokeRun(run, "failed")
			r.tokens.Forget(run)
		}
	}()

	// One blob per file; URLs are looked up by name so a later file with
	// the same name shadows an earlier one.
	byName := make(map[string]string, len(files))
	for _, f := range files {
		if f.IsFolder() {
			continue
		}
		b, err := r.blobs.Create(run, f.ID, ContentType(f), []byte(f.Content))
		if err != nil {
			return nil, fmt.Errorf("publish %s: %w", f.ID, err)
		}
		byName[f.Name] = r.baseURL + b.URL()
	}

	var deps assembler.Deps
	if needsDeps(files) && r.deps != nil {
		if deps, err = r.deps.Deps(ctx); err != nil {
			return nil, fmt.Errorf("resolve react and babel: %w", err)
		}
	}

	relayURL := r.baseURL + RelayPath + url.PathEscape(run.String()) + "?token=" + url.QueryEscape(token)
	doc, err := assembler.Assemble(files, func(f *vfs.Node) string { return byName[f.Name] }, assembler.Options{
		Deps:     deps,
		RelayURL: relayURL,
	})
	if err != nil {
		return nil, fmt.Errorf("assemble document: %w", err)
	}

	docBlob, err := r.blobs.Create(run, DocumentName, "text/html; charset=utf-8", []byte(doc.HTML))
	if err != nil {
		return nil, fmt.Errorf("publish document: %w", err)
	}

	r.logger.Debug("Preview rendered",
		zap.String("workspace", workspace.String()),
		zap.String("run", run.String()),
		zap.Int("files", len(byName)),
		zap.Bool("babel", doc.UsesBabel()))

	return &Preview{
		Run:         run,
		DocumentURL: r.baseURL + docBlob.URL(),
		RelayURL:    relayURL,
		Document:    doc,
		Blobs:       r.blobs.RunBlobs(run),
	}, nil
}

// Loaded revokes every blob of a run once its document has loaded. The relay
// token stays valid so runtime console output keeps flowing.
func (r *Renderer) Loaded(run id.RunID) int {
	return r.blobs.RevokeRun(run, "loaded")
}

// Discard drops everything a run left behind
func (r *Renderer) Discard(run id.RunID) int {
	r.tokens.Forget(run)
	return r.blobs.RevokeRun(run, "workspace")
}

func needsDeps(files []*vfs.Node) bool {
	for _, f := range files {
		if f.Language == vfs.LangJSX || f.Language == vfs.LangTSX {
			return true
		}
	}
	return false
}

// ContentType returns the Content-Type a file blob is served with
func ContentType(f *vfs.Node) string {
	switch f.Language {
	case vfs.LangHTML:
		return "text/html; charset=utf-8"
	case vfs.LangCSS:
		return "text/css; charset=utf-8"
	case vfs.LangJavaScript, vfs.LangJSX, vfs.LangTypeScript, vfs.LangTSX:
		return "text/javascript; charset=utf-8"
	case vfs.LangJSON:
		return "application/json"
	case vfs.LangMarkdown:
		return "text/markdown; charset=utf-8"
	}
	return mimetype.Detect([]byte(f.Content)).String()
}
