package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/lockfs/pkg/storage"
	"github.com/marmos91/lockfs/pkg/storage/storetest"
)

func TestConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T) storage.Store {
		return New()
	})
}

func TestContents(t *testing.T) {
	ctx := context.Background()
	s := New()

	h, err := s.Open(ctx, "m:f", storage.FlagWrite|storage.FlagCreate)
	require.NoError(t, err)
	_, err = h.WriteAt(ctx, []byte("abc"), 0)
	require.NoError(t, err)
	require.NoError(t, h.Close(ctx))
	assert.ErrorIs(t, h.Close(ctx), storage.ErrHandleClosed)

	data, ok := s.Contents("m:f")
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), data)

	data[0] = 'z'
	again, _ := s.Contents("m:f")
	assert.Equal(t, []byte("abc"), again, "contents returns a copy")

	_, ok = s.Contents("m:missing")
	assert.False(t, ok)
}
