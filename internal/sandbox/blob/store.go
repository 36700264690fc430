package blob

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/id"
	"go.uber.org/zap"
)

var (
	ErrNotFound = errors.New("blob not found")
	ErrTooLarge = errors.New("blob store is full")
)

// URLPrefix is where the HTTP layer serves blobs
const URLPrefix = "/sandbox/blobs/"

// Blob is an immutable, addressable chunk of preview content
type Blob struct {
	ID          id.BlobID
	RunID       id.RunID
	Name        string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// URL returns the path the blob is served from
func (b *Blob) URL() string {
	return URLPrefix + b.ID.String()
}

// Options configures a Store
type Options struct {
	TTL      time.Duration
	MaxBytes int64
	Logger   *logging.Logger
	Metrics  *monitoring.Metrics
	Now      func() time.Time
}

// Store is an in-memory blob store safe for concurrent use
type Store struct {
	mu    sync.RWMutex
	blobs map[id.BlobID]*Blob
	byRun map[id.RunID][]id.BlobID
	size  int64

	ttl      time.Duration
	maxBytes int64
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	now      func() time.Time
}

// NewStore creates a blob store. A zero TTL disables expiry and a zero
// MaxBytes disables the size limit.
func NewStore(opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		blobs:    make(map[id.BlobID]*Blob),
		byRun:    make(map[id.RunID][]id.BlobID),
		ttl:      opts.TTL,
		maxBytes: opts.MaxBytes,
		logger:   logging.OrNop(opts.Logger).Named("blob"),
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
}

// Create stores data for a run and returns the new blob
func (s *Store) Create(runID id.RunID, name, contentType string, data []byte) (*Blob, error) {
	b := &Blob{
		ID:          id.NewBlobID(),
		RunID:       runID,
		Name:        name,
		ContentType: contentType,
		Data:        data,
		CreatedAt:   s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxBytes > 0 && s.size+int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes held, %d requested", ErrTooLarge, s.size, len(data))
	}
	s.blobs[b.ID] = b
	s.byRun[runID] = append(s.byRun[runID], b.ID)
	s.size += int64(len(data))
	s.report()
	return b, nil
}

// Get returns a live blob. Expired blobs are reported as missing even before
// the sweeper removes them.
func (s *Store) Get(blobID id.BlobID) (*Blob, error) {
	s.mu.RLock()
	b, ok := s.blobs[blobID]
	s.mu.RUnlock()

	if !ok || s.expired(b, s.now()) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, blobID)
	}
	return b, nil
}

// Revoke removes one blob and reports whether it existed
func (s *Store) Revoke(blobID id.BlobID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blobs[blobID]
	if !ok {
		return false
	}
	s.remove(b)
	ids := s.byRun[b.RunID]
	for i, other := range ids {
		if other == blobID {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(s.byRun, b.RunID)
	} else {
		s.byRun[b.RunID] = ids
	}
	s.report()
	s.metrics.RecordBlobsRevoked("manual", 1)
	return true
}

// RevokeRun removes every blob of a run and returns how many were removed
func (s *Store) RevokeRun(runID id.RunID, reason string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.revokeRun(runID)
	if n > 0 {
		s.report()
		s.metrics.RecordBlobsRevoked(reason, n)
		s.logger.Debug("Revoked run blobs", zap.String("run", runID.String()), zap.Int("count", n), zap.String("reason", reason))
	}
	return n
}

func (s *Store) revokeRun(runID id.RunID) int {
	n := 0
	for _, blobID := range s.byRun[runID] {
		if b, ok := s.blobs[blobID]; ok {
			s.remove(b)
			n++
		}
	}
	delete(s.byRun, runID)
	return n
}

// Sweep removes runs whose blobs have outlived the TTL. A run is removed as a
// whole once its newest blob has expired.
func (s *Store) Sweep(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for runID, ids := range s.byRun {
		expired := true
		for _, blobID := range ids {
			if b, ok := s.blobs[blobID]; ok && !s.expired(b, now) {
				expired = false
				break
			}
		}
		if expired {
			n += s.revokeRun(runID)
		}
	}
	if n > 0 {
		s.report()
		s.metrics.RecordBlobsRevoked("ttl", n)
		s.logger.Debug("Swept expired blobs", zap.Int("count", n))
	}
	return n
}

// Run sweeps every interval until ctx is done
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}

// Len returns the number of live blobs
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// Size returns the bytes held by live blobs
func (s *Store) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// RunBlobs returns the IDs of a run's blobs in creation order
func (s *Store) RunBlobs(runID id.RunID) []id.BlobID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]id.BlobID(nil), s.byRun[runID]...)
}

func (s *Store) expired(b *Blob, now time.Time) bool {
	return s.ttl > 0 && now.Sub(b.CreatedAt) > s.ttl
}

func (s *Store) remove(b *Blob) {
	delete(s.blobs, b.ID)
	s.size -= int64(len(b.Data))
}

func (s *Store) report() {
	s.metrics.SetBlobs(len(s.blobs), s.size)
}
