// Package fs provides a filesystem-backed storage implementation. Every file
// lives directly under the base directory under its storage name.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/marmos91/lockfs/pkg/storage"
)

// Config holds configuration for the filesystem store.
type Config struct {
	// BasePath is the directory holding all files.
	BasePath string

	// CreateDir creates the base directory if it doesn't exist.
	// Default: true
	CreateDir bool

	// DirMode is the permission mode for the created base directory.
	// Default: 0755
	DirMode os.FileMode

	// FileMode is the permission mode for created files.
	// Default: 0644
	FileMode os.FileMode
}

// DefaultConfig returns the default configuration.
func DefaultConfig(basePath string) Config {
	return Config{
		BasePath:  basePath,
		CreateDir: true,
		DirMode:   0755,
		FileMode:  0644,
	}
}

// Store is a filesystem-backed implementation of storage.Store.
type Store struct {
	mu       sync.RWMutex
	basePath string
	fileMode os.FileMode
	closed   bool
}

// New creates a new filesystem store with the given configuration.
func New(cfg Config) (*Store, error) {
	if cfg.BasePath == "" {
		return nil, errors.New("base path is required")
	}
	if cfg.DirMode == 0 {
		cfg.DirMode = 0755
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0644
	}

	if cfg.CreateDir {
		if err := os.MkdirAll(cfg.BasePath, cfg.DirMode); err != nil {
			return nil, err
		}
	}

	info, err := os.Stat(cfg.BasePath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("base path is not a directory")
	}

	return &Store{
		basePath: cfg.BasePath,
		fileMode: cfg.FileMode,
	}, nil
}

// NewWithPath creates a new filesystem store with default configuration.
func NewWithPath(basePath string) (*Store, error) {
	return New(DefaultConfig(basePath))
}

// Type returns "filesystem".
func (s *Store) Type() string { return "filesystem" }

// BasePath returns the directory holding the files.
func (s *Store) BasePath() string { return s.basePath }

func (s *Store) path(name string) string {
	return filepath.Join(s.basePath, name)
}

// Open opens name as an OS file.
func (s *Store) Open(ctx context.Context, name string, flags storage.Flag) (storage.Handle, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrStoreClosed
	}

	osFlags := os.O_RDONLY
	switch {
	case flags.Has(storage.FlagRead | storage.FlagWrite):
		osFlags = os.O_RDWR
	case flags.Has(storage.FlagWrite):
		osFlags = os.O_WRONLY
	}
	if flags.Has(storage.FlagCreate) {
		osFlags |= os.O_CREATE
	}

	f, err := os.OpenFile(s.path(name), osFlags, s.fileMode)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("open %s: %w", name, storage.ErrNotFound)
		}
		return nil, err
	}

	return &handle{f: f, flags: flags}, nil
}

// HealthCheck verifies the base directory is still present.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return storage.ErrStoreClosed
	}
	info, err := os.Stat(s.basePath)
	if err != nil {
		return fmt.Errorf("filesystem health check failed: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("filesystem health check failed: %s is not a directory", s.basePath)
	}
	return nil
}

// Close marks the store as closed. Files stay on disk.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

type handle struct {
	f     *os.File
	flags storage.Flag
}

func (h *handle) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := storage.CheckAccess(h.flags, storage.FlagRead, off); err != nil {
		return 0, err
	}
	n, err := h.f.ReadAt(p, off)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

func (h *handle) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := storage.CheckAccess(h.flags, storage.FlagWrite, off); err != nil {
		return 0, err
	}
	if err := storage.CheckExtent(off, len(p)); err != nil {
		return 0, err
	}
	return h.f.WriteAt(p, off)
}

func (h *handle) Close(ctx context.Context) error {
	if err := h.f.Close(); err != nil {
		if errors.Is(err, os.ErrClosed) {
			return storage.ErrHandleClosed
		}
		return err
	}
	return nil
}

var _ storage.Store = (*Store)(nil)
