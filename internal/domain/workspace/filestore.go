package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/id"
)

// FileStore keeps one JSON file per workspace under a root directory
type FileStore struct {
	root string
}

// NewFileStore creates the workspaces directory under root if needed
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, "workspaces"), 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", root, err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) path(wsID id.WorkspaceID) (string, error) {
	if !id.HasPrefix(wsID.String(), id.WorkspacePrefix) {
		return "", fmt.Errorf("%w: invalid id %q", ErrNotFound, wsID)
	}
	return filepath.Join(s.root, filepath.FromSlash(Key(wsID))), nil
}

// Load implements Store
func (s *FileStore) Load(_ context.Context, wsID id.WorkspaceID) ([]byte, error) {
	path, err := s.path(wsID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, wsID)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", wsID, err)
	}
	return data, nil
}

// Save writes the document atomically through a temp file and rename
func (s *FileStore) Save(_ context.Context, wsID id.WorkspaceID, data []byte) error {
	path, err := s.path(wsID)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".workspace-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", wsID, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", wsID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", wsID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", wsID, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", wsID, err)
	}
	return nil
}

// Delete implements Store
func (s *FileStore) Delete(_ context.Context, wsID id.WorkspaceID) error {
	path, err := s.path(wsID)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, wsID)
	}
	return err
}

// List implements Store
func (s *FileStore) List(context.Context) ([]id.WorkspaceID, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "workspaces"))
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}

	var ids []id.WorkspaceID
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		wsID := strings.TrimSuffix(name, ".json")
		if id.HasPrefix(wsID, id.WorkspacePrefix) {
			ids = append(ids, id.WorkspaceID(wsID))
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
