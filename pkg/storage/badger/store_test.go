package badger

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/lockfs/pkg/storage"
	"github.com/marmos91/lockfs/pkg/storage/storetest"
)

func TestConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T) storage.Store {
		s, err := New(Config{InMemory: true})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestConformanceOnDisk(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T) storage.Store {
		s, err := New(Config{Path: filepath.Join(t.TempDir(), "data.db")})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestWriteSpansChunks(t *testing.T) {
	ctx := context.Background()
	s, err := New(Config{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	h, err := s.Open(ctx, "m:big", storage.FlagRead|storage.FlagWrite|storage.FlagCreate)
	require.NoError(t, err)
	defer h.Close(ctx)

	// Straddle the first chunk boundary.
	off := int64(ChunkSize - 3)
	payload := []byte("boundary")
	n, err := h.WriteAt(ctx, payload, off)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	buf := make([]byte, 16)
	n, err = h.ReadAt(ctx, buf, off-4)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, append(bytes.Repeat([]byte{0}, 4), payload...), buf[:n])
}

func TestReopenPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.db")

	s, err := New(Config{Path: path})
	require.NoError(t, err)
	h, err := s.Open(ctx, "m:f", storage.FlagWrite|storage.FlagCreate)
	require.NoError(t, err)
	_, err = h.WriteAt(ctx, []byte("kept"), 0)
	require.NoError(t, err)
	require.NoError(t, h.Close(ctx))
	require.NoError(t, s.Close())

	s, err = New(Config{Path: path})
	require.NoError(t, err)
	defer s.Close()

	h, err = s.Open(ctx, "m:f", storage.FlagRead)
	require.NoError(t, err)
	buf := make([]byte, 10)
	n, err := h.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "kept", string(buf[:n]))
}
