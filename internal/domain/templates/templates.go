// Package templates provides the starter projects a workspace can be created
// from: two built-in templates plus any found in a templates directory.
package templates

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/vfs"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/workspace"
)

var ErrNotFound = errors.New("template not found")

// File is one file of a template
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Template is a starter project
type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	AutoRun     bool   `json:"auto_run"`
	Builtin     bool   `json:"builtin"`
	Files       []File `json:"files,omitempty"`
}

// Nodes builds the file tree of the template
func (t *Template) Nodes() ([]*vfs.Node, error) {
	tree := vfs.New()
	for _, f := range t.Files {
		if _, err := tree.Put(f.Path, f.Content); err != nil {
			return nil, fmt.Errorf("template %s: %s: %w", t.ID, f.Path, err)
		}
	}
	return tree.Nodes(), nil
}

// CreateOptions fills workspace creation options from the template
func (t *Template) CreateOptions(owner, name string) (workspace.CreateOptions, error) {
	nodes, err := t.Nodes()
	if err != nil {
		return workspace.CreateOptions{}, err
	}
	if name == "" {
		name = t.Name
	}
	return workspace.CreateOptions{
		Owner:    owner,
		Name:     name,
		Template: t.ID,
		Files:    nodes,
		AutoRun:  t.AutoRun,
	}, nil
}

// Library holds templates by ID
type Library struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewLibrary creates a library holding the built-in templates
func NewLibrary() *Library {
	l := &Library{templates: make(map[string]*Template)}
	for _, t := range builtin() {
		l.templates[t.ID] = t
	}
	return l
}

// Add registers templates, replacing any with the same ID
func (l *Library) Add(templates ...*Template) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range templates {
		l.templates[t.ID] = t
	}
}

// Get returns a template with its files
func (l *Library) Get(templateID string) (*Template, error) {
	if templateID == "" {
		templateID = Vanilla
	}
	l.mu.RLock()
	t, ok := l.templates[templateID]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, templateID)
	}
	return t, nil
}

// List returns templates without files: built-ins first, then by ID
func (l *Library) List() []Template {
	l.mu.RLock()
	out := make([]Template, 0, len(l.templates))
	for _, t := range l.templates {
		summary := *t
		summary.Files = nil
		out = append(out, summary)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Builtin != out[j].Builtin {
			return out[i].Builtin
		}
		return out[i].ID < out[j].ID
	})
	return out
}
