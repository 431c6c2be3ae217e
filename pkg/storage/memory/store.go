// Package memory provides an in-memory storage backend for tests and
// ephemeral servers.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/lockfs/pkg/storage"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu     sync.RWMutex
	files  map[string][]byte
	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		files: make(map[string][]byte),
	}
}

// Type returns "memory".
func (s *Store) Type() string { return "memory" }

// Open opens name, creating it empty when flags include FlagCreate.
func (s *Store) Open(ctx context.Context, name string, flags storage.Flag) (storage.Handle, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, storage.ErrStoreClosed
	}

	if _, ok := s.files[name]; !ok {
		if !flags.Has(storage.FlagCreate) {
			return nil, fmt.Errorf("open %s: %w", name, storage.ErrNotFound)
		}
		s.files[name] = []byte{}
	}

	return &handle{store: s, name: name, flags: flags}, nil
}

// Contents returns a copy of name's bytes. It is meant for tests.
func (s *Store) Contents(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.files[name]
	if !ok {
		return nil, false
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, true
}

// HealthCheck reports whether the store is open.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return storage.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed and drops all files.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.files = nil
	return nil
}

type handle struct {
	store  *Store
	name   string
	flags  storage.Flag
	closed bool
}

func (h *handle) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if h.closed {
		return 0, storage.ErrHandleClosed
	}
	if err := storage.CheckAccess(h.flags, storage.FlagRead, off); err != nil {
		return 0, err
	}

	h.store.mu.RLock()
	defer h.store.mu.RUnlock()

	if h.store.closed {
		return 0, storage.ErrStoreClosed
	}
	return storage.CopyAt(h.store.files[h.name], p, off), nil
}

func (h *handle) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if h.closed {
		return 0, storage.ErrHandleClosed
	}
	if err := storage.CheckAccess(h.flags, storage.FlagWrite, off); err != nil {
		return 0, err
	}

	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	if h.store.closed {
		return 0, storage.ErrStoreClosed
	}
	data, err := storage.Splice(h.store.files[h.name], p, off)
	if err != nil {
		return 0, err
	}
	h.store.files[h.name] = data
	return len(p), nil
}

func (h *handle) Close(ctx context.Context) error {
	if h.closed {
		return storage.ErrHandleClosed
	}
	h.closed = true
	return nil
}

var _ storage.Store = (*Store)(nil)
