package session

import (
	"testing"

	"github.com/marmos91/lockfs/internal/command"
	"github.com/marmos91/lockfs/internal/protocol/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCreatesLazily(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	s, created := r.Resolve("alpha", 1, 10, 3)
	require.True(t, created)
	assert.Equal(t, "alpha/1", s.Key())
	assert.EqualValues(t, 9, s.LastRequest, "first request must compare as new")
	assert.EqualValues(t, 3, s.LastIncarnation)
	assert.Nil(t, s.Cached)
	assert.Empty(t, s.OpenFiles())

	again, created := r.Resolve("alpha", 1, 99, 7)
	assert.False(t, created)
	assert.Same(t, s, again)
	assert.EqualValues(t, 9, again.LastRequest, "resolve must not reset an existing session")
	assert.EqualValues(t, 3, again.LastIncarnation)
	assert.Equal(t, 1, r.Len())
}

func TestIdentityIsMachineAndClient(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	a, _ := r.Resolve("alpha", 1, 1, 0)
	b, _ := r.Resolve("alpha", 2, 1, 0)
	c, _ := r.Resolve("beta", 1, 1, 0)

	assert.NotSame(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 3, r.Len())

	got, ok := r.Get("beta", 1)
	require.True(t, ok)
	assert.Same(t, c, got)

	_, ok = r.Get("gamma", 1)
	assert.False(t, ok)
}

func TestOpenFileTracking(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	s, _ := r.Resolve("alpha", 1, 1, 0)

	of, err := s.AddOpen("alpha:f", "f", command.ModeRead)
	require.NoError(t, err)
	assert.Zero(t, of.Cursor)

	_, err = s.AddOpen("alpha:f", "f", command.ModeWrite)
	assert.Error(t, err, "at most one open state per file")

	assert.True(t, s.HasOpen("alpha:f", command.ModeRead))
	assert.False(t, s.HasOpen("alpha:f", command.ModeWrite))
	assert.True(t, s.HasOpen("alpha:f", command.ModeReadWrite))
	assert.False(t, s.HasOpen("alpha:g", command.ModeRead))

	_, err = s.AddOpen("alpha:g", "g", command.ModeReadWrite)
	require.NoError(t, err)
	assert.Equal(t, []string{"f", "g"}, names(s.OpenFiles()))

	assert.True(t, s.RemoveOpen("alpha:f"))
	assert.False(t, s.RemoveOpen("alpha:f"))
	assert.Equal(t, []string{"g"}, names(s.OpenFiles()))

	dropped := s.ClearOpen()
	assert.Len(t, dropped, 1)
	assert.Empty(t, s.OpenFiles())
}

func TestOpenFilesReturnsCopies(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	s, _ := r.Resolve("alpha", 1, 1, 0)
	_, err := s.AddOpen("alpha:f", "f", command.ModeWrite)
	require.NoError(t, err)

	files := s.OpenFiles()
	files[0].Cursor = 42
	assert.Zero(t, s.Lookup("alpha:f").Cursor)
}

func TestSnapshot(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	b, _ := r.Resolve("beta", 1, 5, 0)
	b.Cached = &wire.Response{}
	r.Resolve("alpha", 2, 1, 0)

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "alpha/2", snap[0].Key)
	assert.Equal(t, "beta/1", snap[1].Key)
	assert.True(t, snap[1].HasCached)
	assert.EqualValues(t, 4, snap[1].LastRequest)
}

func names(files []OpenFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Filename
	}
	return out
}
