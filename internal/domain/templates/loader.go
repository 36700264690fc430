package templates

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/vfs"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/logging"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

// ManifestName marks a directory as a template
const ManifestName = "template.toml"

// MaxFileSize skips larger files during import
const MaxFileSize = 1 << 20

type manifest struct {
	Name        string   `toml:"name"`
	Description string   `toml:"description"`
	AutoRun     *bool    `toml:"auto_run"`
	Ignore      []string `toml:"ignore"`
}

// Loader imports directory templates
type Loader struct {
	ignore []string
	logger *logging.Logger
}

// NewLoader creates a loader. ignore holds doublestar patterns applied to
// paths relative to each template directory.
func NewLoader(ignore []string, logger *logging.Logger) (*Loader, error) {
	for _, pattern := range ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pattern)
		}
	}
	return &Loader{ignore: ignore, logger: logging.OrNop(logger).Named("templates")}, nil
}

// LoadDir reads every immediate subdirectory of dir that holds a
// template.toml. A broken template is logged and skipped.
func (l *Loader) LoadDir(ctx context.Context, dir string) ([]*Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read templates dir: %w", err)
	}

	var out []*Template
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		root := filepath.Join(dir, e.Name())
		if _, err := os.Stat(filepath.Join(root, ManifestName)); err != nil {
			continue
		}
		t, err := l.Load(ctx, e.Name(), root)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.logger.Warn("Skipping template", zap.String("dir", root), zap.Error(err))
			continue
		}
		out = append(out, t)
	}
	l.logger.Info("Templates loaded", zap.String("dir", dir), zap.Int("count", len(out)))
	return out, nil
}

// Load reads one template directory. The manifest is optional here; a
// directory without one loads with defaults.
func (l *Loader) Load(ctx context.Context, templateID, root string) (*Template, error) {
	var m manifest
	raw, err := os.ReadFile(filepath.Join(root, ManifestName))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := toml.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", ManifestName, err)
		}
	}
	ignore := append(append([]string{}, l.ignore...), m.Ignore...)
	for _, pattern := range m.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pattern)
		}
	}

	var (
		mu    sync.Mutex
		files []File
	)
	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel, err := filepath.Rel(root, p)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if ignored(ignore, rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if rel == ManifestName || !d.Type().IsRegular() || ignored(ignore, rel) {
			return nil
		}

		content, ok, err := readText(p)
		if err != nil {
			return err
		}
		if !ok {
			l.logger.Debug("Skipping binary or oversized file", zap.String("template", templateID), zap.String("file", rel))
			return nil
		}

		mu.Lock()
		files = append(files, File{Path: rel, Content: content})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	t := &Template{
		ID:          templateID,
		Name:        m.Name,
		Description: m.Description,
		AutoRun:     true,
		Files:       files,
	}
	if t.Name == "" {
		t.Name = templateID
	}
	if m.AutoRun != nil {
		t.AutoRun = *m.AutoRun
	}
	return t, nil
}

func ignored(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// readText returns the file as UTF-8 text. ok is false for binary or
// oversized files.
func readText(p string) (string, bool, error) {
	info, err := os.Stat(p)
	if err != nil {
		return "", false, err
	}
	if info.Size() > MaxFileSize {
		return "", false, nil
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", false, err
	}
	if !vfs.IsText(data) {
		return "", false, nil
	}
	text, err := vfs.ToUTF8(data)
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}
