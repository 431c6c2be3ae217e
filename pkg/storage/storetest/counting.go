package storetest

import (
	"context"
	"sync/atomic"

	"github.com/marmos91/lockfs/pkg/storage"
)

// CountingStore wraps a Store and counts every call that reaches it.
type CountingStore struct {
	storage.Store

	Opens  atomic.Int64
	Reads  atomic.Int64
	Writes atomic.Int64
	Closes atomic.Int64
}

// NewCountingStore wraps inner.
func NewCountingStore(inner storage.Store) *CountingStore {
	return &CountingStore{Store: inner}
}

// Open counts and forwards to the wrapped store.
func (c *CountingStore) Open(ctx context.Context, name string, flags storage.Flag) (storage.Handle, error) {
	c.Opens.Add(1)
	h, err := c.Store.Open(ctx, name, flags)
	if err != nil {
		return nil, err
	}
	return &countingHandle{Handle: h, store: c}, nil
}

// Total returns the number of calls of any kind.
func (c *CountingStore) Total() int64 {
	return c.Opens.Load() + c.Reads.Load() + c.Writes.Load() + c.Closes.Load()
}

type countingHandle struct {
	storage.Handle
	store *CountingStore
}

func (h *countingHandle) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	h.store.Reads.Add(1)
	return h.Handle.ReadAt(ctx, p, off)
}

func (h *countingHandle) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	h.store.Writes.Add(1)
	return h.Handle.WriteAt(ctx, p, off)
}

func (h *countingHandle) Close(ctx context.Context) error {
	h.store.Closes.Add(1)
	return h.Handle.Close(ctx)
}
