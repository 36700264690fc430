package workspace

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/id"
)

var (
	ErrNotFound  = errors.New("workspace not found")
	ErrForbidden = errors.New("workspace belongs to another owner")
)

// Store persists workspace documents
type Store interface {
	Load(ctx context.Context, wsID id.WorkspaceID) ([]byte, error)
	Save(ctx context.Context, wsID id.WorkspaceID, data []byte) error
	Delete(ctx context.Context, wsID id.WorkspaceID) error
	List(ctx context.Context) ([]id.WorkspaceID, error)
}

// MemoryStore keeps documents in a map. Used by the CLI and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[id.WorkspaceID][]byte
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[id.WorkspaceID][]byte)}
}

// Load implements Store
func (s *MemoryStore) Load(_ context.Context, wsID id.WorkspaceID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.docs[wsID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Save implements Store
func (s *MemoryStore) Save(_ context.Context, wsID id.WorkspaceID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[wsID] = append([]byte(nil), data...)
	return nil
}

// Delete implements Store
func (s *MemoryStore) Delete(_ context.Context, wsID id.WorkspaceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[wsID]; !ok {
		return ErrNotFound
	}
	delete(s.docs, wsID)
	return nil
}

// List implements Store
func (s *MemoryStore) List(context.Context) ([]id.WorkspaceID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]id.WorkspaceID, 0, len(s.docs))
	for wsID := range s.docs {
		ids = append(ids, wsID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
