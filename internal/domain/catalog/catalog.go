// Package catalog is the static component library users can drop into a
// workspace.
package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/workspace"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/id"
	"github.com/goccy/go-yaml"
	"github.com/microcosm-cc/bluemonday"
)

//go:embed components.yaml
var builtin []byte

// InsertRoot is the folder components are inserted under
const InsertRoot = "components"

var ErrNotFound = errors.New("component not found")

// File is one source file of a component
type File struct {
	Path    string `yaml:"path" json:"path"`
	Content string `yaml:"content" json:"content"`
}

// Component is a catalog entry
type Component struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Category    string `yaml:"category" json:"category"`
	Description string `yaml:"description" json:"description"`
	Preview     string `yaml:"preview" json:"preview"`
	Files       []File `yaml:"files" json:"files,omitempty"`
}

// Summary drops the files for listings
func (c Component) Summary() Component {
	c.Files = nil
	return c
}

type document struct {
	Components []Component `yaml:"components"`
}

// Writer places files into a workspace
type Writer interface {
	PutFiles(ctx context.Context, owner string, wsID id.WorkspaceID, files []workspace.FileWrite) (*workspace.Workspace, error)
}

// Catalog is an immutable set of components
type Catalog struct {
	byID  map[string]Component
	order []string
}

// Builtin loads the embedded component library
func Builtin() (*Catalog, error) {
	return Parse(builtin)
}

// Parse reads a YAML library. Previews are sanitized; duplicate IDs and
// unsafe file paths are rejected.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse component library: %w", err)
	}

	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Globally()

	c := &Catalog{byID: make(map[string]Component, len(doc.Components))}
	for _, comp := range doc.Components {
		if comp.ID == "" {
			return nil, fmt.Errorf("component %q has no id", comp.Name)
		}
		if _, dup := c.byID[comp.ID]; dup {
			return nil, fmt.Errorf("duplicate component id %q", comp.ID)
		}
		for i, f := range comp.Files {
			clean, err := cleanPath(f.Path)
			if err != nil {
				return nil, fmt.Errorf("component %s: %w", comp.ID, err)
			}
			comp.Files[i].Path = clean
		}
		comp.Preview = strings.TrimSpace(policy.Sanitize(comp.Preview))
		c.byID[comp.ID] = comp
		c.order = append(c.order, comp.ID)
	}
	return c, nil
}

func cleanPath(p string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(p))
	if clean == "/" || strings.Contains(p, "..") {
		return "", fmt.Errorf("invalid file path %q", p)
	}
	return strings.TrimPrefix(clean, "/"), nil
}

// List returns component summaries in library order, optionally filtered by
// category
func (c *Catalog) List(category string) []Component {
	out := make([]Component, 0, len(c.order))
	for _, compID := range c.order {
		comp := c.byID[compID]
		if category != "" && !strings.EqualFold(comp.Category, category) {
			continue
		}
		out = append(out, comp.Summary())
	}
	return out
}

// Categories returns the distinct categories, sorted
func (c *Catalog) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, comp := range c.byID {
		if !seen[comp.Category] {
			seen[comp.Category] = true
			out = append(out, comp.Category)
		}
	}
	sort.Strings(out)
	return out
}

// Get returns a component with its files
func (c *Catalog) Get(compID string) (Component, error) {
	comp, ok := c.byID[compID]
	if !ok {
		return Component{}, fmt.Errorf("%w: %s", ErrNotFound, compID)
	}
	comp.Files = append([]File(nil), comp.Files...)
	return comp, nil
}

// Writes returns the component's files addressed under components/<id>/
func (c *Catalog) Writes(compID string) ([]workspace.FileWrite, error) {
	comp, err := c.Get(compID)
	if err != nil {
		return nil, err
	}
	writes := make([]workspace.FileWrite, 0, len(comp.Files))
	for _, f := range comp.Files {
		writes = append(writes, workspace.FileWrite{
			Path:    path.Join(InsertRoot, comp.ID, f.Path),
			Content: f.Content,
		})
	}
	return writes, nil
}

// Insert copies a component into a workspace
func (c *Catalog) Insert(ctx context.Context, w Writer, owner string, wsID id.WorkspaceID, compID string) (*workspace.Workspace, error) {
	writes, err := c.Writes(compID)
	if err != nil {
		return nil, err
	}
	return w.PutFiles(ctx, owner, wsID, writes)
}
