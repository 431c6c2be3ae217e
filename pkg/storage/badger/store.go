// Package badger provides a BadgerDB-backed storage implementation.
//
// Files are split into fixed-size chunks so that a positioned write rewrites
// only the chunks it touches. Each file has one size record and zero or more
// chunk records:
//
//	f:<name>\x00size          -> uint64 big-endian file size
//	f:<name>\x00c:<index>     -> chunk bytes (up to ChunkSize)
//
// A chunk missing inside the file's size reads back as zeros.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/lockfs/internal/logger"
	"github.com/marmos91/lockfs/pkg/storage"
)

// ChunkSize is the size of one stored chunk.
const ChunkSize = 4096

// Config holds configuration for the BadgerDB store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps the database entirely in memory.
	InMemory bool

	// ValueLogFileSize caps the size of each value log file in bytes.
	// Zero keeps Badger's default.
	ValueLogFileSize int64
}

// Store is a BadgerDB-backed implementation of storage.Store.
type Store struct {
	db     *badgerdb.DB
	mu     sync.RWMutex
	closed bool
}

// New opens (or creates) the database described by cfg.
func New(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required unless in_memory is set")
	}

	opts := badgerdb.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	if cfg.ValueLogFileSize > 0 {
		opts = opts.WithValueLogFileSize(cfg.ValueLogFileSize)
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Debug("Badger store opened", logger.KeyPath, cfg.Path, "in_memory", cfg.InMemory)
	return &Store{db: db}, nil
}

// Type returns "badger".
func (s *Store) Type() string { return "badger" }

func sizeKey(name string) []byte {
	return []byte("f:" + name + "\x00size")
}

func chunkKey(name string, idx int64) []byte {
	key := make([]byte, 0, len(name)+16)
	key = append(key, "f:"...)
	key = append(key, name...)
	key = append(key, "\x00c:"...)
	return binary.BigEndian.AppendUint64(key, uint64(idx))
}

// readSize returns the stored size of name, or ErrNotFound.
func readSize(txn *badgerdb.Txn, name string) (int64, error) {
	item, err := txn.Get(sizeKey(name))
	if err == badgerdb.ErrKeyNotFound {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	var size int64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt size record for %s", name)
		}
		size = int64(binary.BigEndian.Uint64(val))
		return nil
	})
	return size, err
}

func writeSize(txn *badgerdb.Txn, name string, size int64) error {
	return txn.Set(sizeKey(name), binary.BigEndian.AppendUint64(nil, uint64(size)))
}

// readChunk returns the chunk bytes, or nil for a hole.
func readChunk(txn *badgerdb.Txn, name string, idx int64) ([]byte, error) {
	item, err := txn.Get(chunkKey(name, idx))
	if err == badgerdb.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrStoreClosed
	}
	return nil
}

// Open opens name, creating an empty size record under FlagCreate.
func (s *Store) Open(ctx context.Context, name string, flags storage.Flag) (storage.Handle, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		_, err := readSize(txn, name)
		if errors.Is(err, storage.ErrNotFound) && flags.Has(storage.FlagCreate) {
			return writeSize(txn, name, 0)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("open %s: %w", name, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("badger open %s: %w", name, err)
	}

	return &handle{store: s, name: name, flags: flags}, nil
}

// HealthCheck verifies a read transaction can be started.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.db.View(func(txn *badgerdb.Txn) error { return nil }); err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
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
	if err := h.store.checkOpen(); err != nil {
		return 0, err
	}

	var n int
	err := h.store.db.View(func(txn *badgerdb.Txn) error {
		size, err := readSize(txn, h.name)
		if err != nil {
			return err
		}
		if off >= size {
			return nil
		}
		want := min(int64(len(p)), size-off)

		for int64(n) < want {
			pos := off + int64(n)
			idx := pos / ChunkSize
			within := pos % ChunkSize

			chunk, err := readChunk(txn, h.name, idx)
			if err != nil {
				return err
			}
			take := min(ChunkSize-within, want-int64(n))
			dst := p[n : int64(n)+take]
			clear(dst)
			if within < int64(len(chunk)) {
				copy(dst, chunk[within:])
			}
			n += int(take)
		}
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("badger read %s: %w", h.name, err)
	}
	return n, nil
}

func (h *handle) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if h.closed {
		return 0, storage.ErrHandleClosed
	}
	if err := storage.CheckAccess(h.flags, storage.FlagWrite, off); err != nil {
		return 0, err
	}
	if err := storage.CheckExtent(off, len(p)); err != nil {
		return 0, err
	}
	if err := h.store.checkOpen(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	err := h.store.db.Update(func(txn *badgerdb.Txn) error {
		size, err := readSize(txn, h.name)
		if err != nil {
			return err
		}

		written := 0
		for written < len(p) {
			pos := off + int64(written)
			idx := pos / ChunkSize
			within := pos % ChunkSize

			chunk, err := readChunk(txn, h.name, idx)
			if err != nil {
				return err
			}
			take := min(ChunkSize-within, int64(len(p)-written))
			chunk, err = storage.Splice(chunk, p[written:int64(written)+take], within)
			if err != nil {
				return err
			}
			if err := txn.Set(chunkKey(h.name, idx), chunk); err != nil {
				return err
			}
			written += int(take)
		}

		if end := off + int64(len(p)); end > size {
			return writeSize(txn, h.name, end)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger write %s: %w", h.name, err)
	}
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
