// Package storetest provides a conformance suite shared by every storage
// backend, plus a counting wrapper used to assert how much I/O a caller does.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/lockfs/pkg/storage"
)

// StoreFactory creates a fresh Store for each test. The factory receives
// *testing.T so it can use t.TempDir() and register t.Cleanup() teardown.
type StoreFactory func(t *testing.T) storage.Store

// RunConformanceSuite runs the full suite against the provided factory. Each
// subtest gets a fresh store.
func RunConformanceSuite(t *testing.T, factory StoreFactory) {
	t.Helper()

	t.Run("OpenMissing", func(t *testing.T) { testOpenMissing(t, factory(t)) })
	t.Run("CreateEmpty", func(t *testing.T) { testCreateEmpty(t, factory(t)) })
	t.Run("CreateKeepsContents", func(t *testing.T) { testCreateKeepsContents(t, factory(t)) })
	t.Run("WriteThenRead", func(t *testing.T) { testWriteThenRead(t, factory(t)) })
	t.Run("ShortReadAtEnd", func(t *testing.T) { testShortReadAtEnd(t, factory(t)) })
	t.Run("OverwriteInPlace", func(t *testing.T) { testOverwriteInPlace(t, factory(t)) })
	t.Run("WritePastEndZeroFills", func(t *testing.T) { testWritePastEndZeroFills(t, factory(t)) })
	t.Run("NamesAreIndependent", func(t *testing.T) { testNamesAreIndependent(t, factory(t)) })
	t.Run("FlagsEnforced", func(t *testing.T) { testFlagsEnforced(t, factory(t)) })
	t.Run("OffsetLimit", func(t *testing.T) { testOffsetLimit(t, factory(t)) })
	t.Run("InvalidNames", func(t *testing.T) { testInvalidNames(t, factory(t)) })
	t.Run("HealthCheck", func(t *testing.T) { testHealthCheck(t, factory(t)) })
	t.Run("Closed", func(t *testing.T) { testClosed(t, factory(t)) })
}

func write(t *testing.T, s storage.Store, name string, data []byte, off int64) {
	t.Helper()
	ctx := context.Background()

	h, err := s.Open(ctx, name, storage.FlagWrite|storage.FlagCreate)
	require.NoError(t, err)
	n, err := h.WriteAt(ctx, data, off)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.NoError(t, h.Close(ctx))
}

func read(t *testing.T, s storage.Store, name string, count int, off int64) []byte {
	t.Helper()
	ctx := context.Background()

	h, err := s.Open(ctx, name, storage.FlagRead)
	require.NoError(t, err)
	buf := make([]byte, count)
	n, err := h.ReadAt(ctx, buf, off)
	require.NoError(t, err)
	require.NoError(t, h.Close(ctx))
	return buf[:n]
}

func testOpenMissing(t *testing.T, s storage.Store) {
	_, err := s.Open(context.Background(), "m:missing", storage.FlagRead)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testCreateEmpty(t *testing.T, s storage.Store) {
	ctx := context.Background()

	h, err := s.Open(ctx, "m:new", storage.FlagWrite|storage.FlagCreate)
	require.NoError(t, err)
	require.NoError(t, h.Close(ctx))

	assert.Empty(t, read(t, s, "m:new", 10, 0))
}

func testCreateKeepsContents(t *testing.T, s storage.Store) {
	write(t, s, "m:f", []byte("hello"), 0)

	ctx := context.Background()
	h, err := s.Open(ctx, "m:f", storage.FlagWrite|storage.FlagCreate)
	require.NoError(t, err)
	require.NoError(t, h.Close(ctx))

	assert.Equal(t, []byte("hello"), read(t, s, "m:f", 5, 0))
}

func testWriteThenRead(t *testing.T, s storage.Store) {
	write(t, s, "m:f", []byte("hello world"), 0)

	assert.Equal(t, []byte("hello"), read(t, s, "m:f", 5, 0))
	assert.Equal(t, []byte("world"), read(t, s, "m:f", 5, 6))
}

func testShortReadAtEnd(t *testing.T, s storage.Store) {
	write(t, s, "m:f", []byte("abc"), 0)

	assert.Equal(t, []byte("bc"), read(t, s, "m:f", 80, 1))
	assert.Empty(t, read(t, s, "m:f", 80, 3))
	assert.Empty(t, read(t, s, "m:f", 80, 100))
}

func testOverwriteInPlace(t *testing.T, s storage.Store) {
	write(t, s, "m:f", []byte("hello world"), 0)
	write(t, s, "m:f", []byte("HELLO"), 0)

	assert.Equal(t, []byte("HELLO world"), read(t, s, "m:f", 80, 0))
}

func testWritePastEndZeroFills(t *testing.T, s storage.Store) {
	write(t, s, "m:f", []byte("ab"), 0)
	write(t, s, "m:f", []byte("z"), 5)

	assert.Equal(t, []byte{'a', 'b', 0, 0, 0, 'z'}, read(t, s, "m:f", 80, 0))
}

func testNamesAreIndependent(t *testing.T, s storage.Store) {
	write(t, s, "alpha:f", []byte("one"), 0)
	write(t, s, "beta:f", []byte("two"), 0)

	assert.Equal(t, []byte("one"), read(t, s, "alpha:f", 3, 0))
	assert.Equal(t, []byte("two"), read(t, s, "beta:f", 3, 0))
}

func testFlagsEnforced(t *testing.T, s storage.Store) {
	ctx := context.Background()
	write(t, s, "m:f", []byte("data"), 0)

	h, err := s.Open(ctx, "m:f", storage.FlagRead)
	require.NoError(t, err)
	_, err = h.WriteAt(ctx, []byte("x"), 0)
	assert.ErrorIs(t, err, storage.ErrNotPermitted)
	_, err = h.ReadAt(ctx, make([]byte, 1), -1)
	assert.ErrorIs(t, err, storage.ErrInvalidOffset)
	require.NoError(t, h.Close(ctx))

	h, err = s.Open(ctx, "m:f", storage.FlagWrite)
	require.NoError(t, err)
	_, err = h.ReadAt(ctx, make([]byte, 1), 0)
	assert.ErrorIs(t, err, storage.ErrNotPermitted)
	require.NoError(t, h.Close(ctx))
}

func testOffsetLimit(t *testing.T, s storage.Store) {
	ctx := context.Background()
	write(t, s, "m:big", []byte("x"), 0)

	h, err := s.Open(ctx, "m:big", storage.FlagRead|storage.FlagWrite)
	require.NoError(t, err)
	defer func() { _ = h.Close(ctx) }()

	_, err = h.WriteAt(ctx, []byte("hello"), storage.MaxOffset-2)
	assert.ErrorIs(t, err, storage.ErrTooLarge)
	_, err = h.WriteAt(ctx, []byte("hello-world"), 9223372036854775800)
	assert.ErrorIs(t, err, storage.ErrInvalidOffset)
	_, err = h.ReadAt(ctx, make([]byte, 1), storage.MaxOffset+1)
	assert.ErrorIs(t, err, storage.ErrInvalidOffset)

	assert.Equal(t, []byte("x"), read(t, s, "m:big", 4, 0), "rejected writes leave the file untouched")
}

func testInvalidNames(t *testing.T, s storage.Store) {
	for _, name := range []string{"", "m:../etc", "a/b", ".."} {
		_, err := s.Open(context.Background(), name, storage.FlagRead|storage.FlagCreate)
		assert.Error(t, err, "name %q", name)
	}
}

func testHealthCheck(t *testing.T, s storage.Store) {
	assert.NoError(t, s.HealthCheck(context.Background()))
	assert.NotEmpty(t, s.Type())
}

func testClosed(t *testing.T, s storage.Store) {
	require.NoError(t, s.Close())
	_, err := s.Open(context.Background(), "m:f", storage.FlagRead|storage.FlagCreate)
	assert.ErrorIs(t, err, storage.ErrStoreClosed)
}
