package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/marmos91/lockfs/internal/protocol/wire"
	"github.com/marmos91/lockfs/internal/telemetry"
	lfserrors "github.com/marmos91/lockfs/pkg/errors"
	"github.com/marmos91/lockfs/pkg/lock"
	"github.com/marmos91/lockfs/pkg/session"
	"github.com/marmos91/lockfs/pkg/storage"
	"github.com/marmos91/lockfs/pkg/storage/fs"
	"github.com/marmos91/lockfs/pkg/storage/memory"
	"github.com/marmos91/lockfs/pkg/storage/storetest"
)

type fixture struct {
	locks    *lock.Table
	store    *storetest.CountingStore
	sessions *session.Registry
	d        *Dispatcher
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memory.New(), opts...)
}

func newFixtureWithStore(t *testing.T, store storage.Store, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		locks:    lock.NewTable(),
		store:    storetest.NewCountingStore(store),
		sessions: session.NewRegistry(),
	}
	f.d = New(f.locks, f.store, opts...)
	return f
}

func (f *fixture) session(machine string, id int32) *session.Session {
	s, _ := f.sessions.Resolve(machine, id, 1, 0)
	return s
}

// do runs text and requires a non-fatal response.
func (f *fixture) do(t *testing.T, s *session.Session, text string) *wire.Response {
	t.Helper()
	resp, err := f.d.Dispatch(context.Background(), s, text)
	require.NoError(t, err, text)
	require.NotNil(t, resp, text)
	require.NoError(t, f.locks.CheckInvariants())
	return resp
}

func status(t *testing.T, want lfserrors.StatusCode, resp *wire.Response) {
	t.Helper()
	assert.Equal(t, want, lfserrors.StatusCode(resp.Status), "got %s", lfserrors.StatusCode(resp.Status))
}

func TestRoundTrip(t *testing.T) {
	f := newFixture(t)
	a := f.session("alpha", 1)

	status(t, lfserrors.StatusOK, f.do(t, a, "open notes write"))
	resp := f.do(t, a, "write notes hello")
	status(t, lfserrors.StatusOK, resp)
	assert.EqualValues(t, 5, resp.Size)
	status(t, lfserrors.StatusOK, f.do(t, a, "close notes"))

	status(t, lfserrors.StatusOK, f.do(t, a, "open notes read"))
	resp = f.do(t, a, "read notes 5")
	status(t, lfserrors.StatusOK, resp)
	assert.EqualValues(t, 5, resp.Size)
	assert.Equal(t, []byte("hello"), resp.Payload)

	resp = f.do(t, a, "read notes 5")
	assert.Zero(t, resp.Size, "cursor is at end of file")
	assert.Empty(t, resp.Payload)
}

func TestWriteDataKeepsSpaces(t *testing.T) {
	f := newFixture(t)
	a := f.session("alpha", 1)

	f.do(t, a, "open f readwrite")
	f.do(t, a, "write f hello big world")
	f.do(t, a, "lseek f 0")
	resp := f.do(t, a, "read f 80")
	assert.Equal(t, "hello big world", string(resp.Payload))
}

func TestOpen(t *testing.T) {
	t.Run("MissingForReadIsNotFound", func(t *testing.T) {
		f := newFixture(t)
		a := f.session("alpha", 1)

		status(t, lfserrors.StatusNotFound, f.do(t, a, "open ghost read"))
		_, exists := f.locks.Find("alpha", "ghost")
		assert.False(t, exists)
		assert.Zero(t, f.store.Total())
	})

	t.Run("MissingForWriteCreates", func(t *testing.T) {
		f := newFixture(t)
		a := f.session("alpha", 1)

		status(t, lfserrors.StatusOK, f.do(t, a, "open new write"))
		f.do(t, a, "close new")

		status(t, lfserrors.StatusOK, f.do(t, a, "open new read"))
		assert.EqualValues(t, 1, f.store.Opens.Load(), "only the create touched storage")
		assert.EqualValues(t, 1, f.store.Closes.Load())
	})

	t.Run("AlreadyOpen", func(t *testing.T) {
		f := newFixture(t)
		a := f.session("alpha", 1)

		f.do(t, a, "open f write")
		status(t, lfserrors.StatusAlreadyOpen, f.do(t, a, "open f read"))
	})

	t.Run("InvalidMode", func(t *testing.T) {
		f := newFixture(t)
		status(t, lfserrors.StatusInvalidMode, f.do(t, f.session("alpha", 1), "open f append"))
	})

	t.Run("MachinesAreNamespaced", func(t *testing.T) {
		f := newFixture(t)
		f.do(t, f.session("alpha", 1), "open f write")
		status(t, lfserrors.StatusNotFound, f.do(t, f.session("beta", 1), "open f read"))
	})

	t.Run("PathSeparatorIsMalformed", func(t *testing.T) {
		f := newFixture(t)
		status(t, lfserrors.StatusMalformed, f.do(t, f.session("alpha", 1), "open ../etc write"))
	})
}

func TestLockCompatibility(t *testing.T) {
	tests := []struct {
		name   string
		first  string
		second string
		want   lfserrors.StatusCode
	}{
		{"ReadersShare", "read", "read", lfserrors.StatusOK},
		{"WriterBlocksReader", "write", "read", lfserrors.StatusLockConflict},
		{"WriterBlocksWriter", "write", "write", lfserrors.StatusLockConflict},
		{"ReaderBlocksWriter", "read", "write", lfserrors.StatusLockConflict},
		{"ReaderBlocksReadWrite", "read", "readwrite", lfserrors.StatusLockConflict},
		{"ReadWriteBlocksReader", "readwrite", "read", lfserrors.StatusLockConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			a, b := f.session("m", 1), f.session("m", 2)

			f.do(t, a, "open seed write")
			f.do(t, a, "close seed")
			status(t, lfserrors.StatusOK, f.do(t, a, "open seed "+tt.first))
			status(t, tt.want, f.do(t, b, "open seed "+tt.second))
		})
	}
}

func TestCloseReleasesLock(t *testing.T) {
	f := newFixture(t)
	a, b := f.session("m", 1), f.session("m", 2)

	f.do(t, a, "open f write")
	status(t, lfserrors.StatusLockConflict, f.do(t, b, "open f read"))
	f.do(t, a, "close f")
	status(t, lfserrors.StatusOK, f.do(t, b, "open f read"))
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	a, b := f.session("m", 1), f.session("m", 2)

	status(t, lfserrors.StatusNotFound, f.do(t, a, "close f"))
	f.do(t, a, "open f write")
	status(t, lfserrors.StatusNotOpen, f.do(t, b, "close f"))
	status(t, lfserrors.StatusOK, f.do(t, a, "close f"))
	status(t, lfserrors.StatusNotOpen, f.do(t, a, "close f"))
}

func TestRead(t *testing.T) {
	f := newFixture(t)
	a := f.session("m", 1)

	status(t, lfserrors.StatusNotFound, f.do(t, a, "read f 5"))

	f.do(t, a, "open f write")
	status(t, lfserrors.StatusNotOpen, f.do(t, a, "read f 5"))
	f.do(t, a, "close f")

	f.do(t, a, "open f read")
	status(t, lfserrors.StatusInvalidCount, f.do(t, a, "read f 0"))
	status(t, lfserrors.StatusInvalidCount, f.do(t, a, "read f 81"))
	status(t, lfserrors.StatusInvalidCount, f.do(t, a, "read f -1"))
	status(t, lfserrors.StatusMalformed, f.do(t, a, "read f many"))
	status(t, lfserrors.StatusOK, f.do(t, a, "read f 80"))
}

func TestWrite(t *testing.T) {
	f := newFixture(t)
	a := f.session("m", 1)

	status(t, lfserrors.StatusNotFound, f.do(t, a, "write f x"))
	f.do(t, a, "open f write")
	f.do(t, a, "close f")
	f.do(t, a, "open f read")
	status(t, lfserrors.StatusNotOpen, f.do(t, a, "write f x"))
	status(t, lfserrors.StatusMalformed, f.do(t, a, "write f"))
}

func TestWriteAppendsAtCursor(t *testing.T) {
	f := newFixture(t)
	a := f.session("m", 1)

	f.do(t, a, "open f readwrite")
	f.do(t, a, "write f abc")
	f.do(t, a, "write f def")
	f.do(t, a, "lseek f 2")
	resp := f.do(t, a, "read f 3")
	assert.Equal(t, "cde", string(resp.Payload))
}

func TestSeek(t *testing.T) {
	t.Run("NoStorageIO", func(t *testing.T) {
		f := newFixture(t)
		a := f.session("m", 1)

		f.do(t, a, "open f readwrite")
		f.do(t, a, "write f 0123456789")
		before := f.store.Total()

		status(t, lfserrors.StatusOK, f.do(t, a, "lseek f 4"))
		assert.Equal(t, before, f.store.Total())

		resp := f.do(t, a, "read f 3")
		assert.Equal(t, "456", string(resp.Payload))
	})

	t.Run("NegativeOffset", func(t *testing.T) {
		f := newFixture(t)
		a := f.session("m", 1)
		f.do(t, a, "open f write")
		status(t, lfserrors.StatusInvalidOffset, f.do(t, a, "lseek f -3"))
	})

	t.Run("MissingFile", func(t *testing.T) {
		f := newFixture(t)
		status(t, lfserrors.StatusNotFound, f.do(t, f.session("m", 1), "lseek f 0"))
	})

	t.Run("DefaultPolicyRequiresWrite", func(t *testing.T) {
		f := newFixture(t)
		a := f.session("m", 1)
		f.do(t, a, "open f write")
		f.do(t, a, "close f")
		f.do(t, a, "open f read")
		status(t, lfserrors.StatusNotOpen, f.do(t, a, "lseek f 0"))
	})

	t.Run("ReadOrWritePolicy", func(t *testing.T) {
		f := newFixture(t, WithSeekPolicy(SeekRequiresReadOrWrite))
		a := f.session("m", 1)
		f.do(t, a, "open f write")
		f.do(t, a, "close f")
		f.do(t, a, "open f read")
		status(t, lfserrors.StatusOK, f.do(t, a, "lseek f 0"))
		assert.Equal(t, SeekRequiresReadOrWrite, f.d.SeekPolicy())
	})
}

func TestOffsetLimit(t *testing.T) {
	backends := map[string]func(t *testing.T) storage.Store{
		"memory": func(t *testing.T) storage.Store { return memory.New() },
		"filesystem": func(t *testing.T) storage.Store {
			s, err := fs.NewWithPath(t.TempDir())
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}

	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			t.Run("SeekPastLimit", func(t *testing.T) {
				f := newFixtureWithStore(t, newStore(t))
				a := f.session("m", 1)
				f.do(t, a, "open x write")

				status(t, lfserrors.StatusInvalidOffset, f.do(t, a, "lseek x 9223372036854775800"))
				status(t, lfserrors.StatusInvalidOffset, f.do(t, a, fmt.Sprintf("lseek x %d", storage.MaxOffset+1)))

				resp := f.do(t, a, "write x hello-world")
				status(t, lfserrors.StatusOK, resp)
				assert.EqualValues(t, 11, resp.Size, "cursor stayed at 0")
			})

			t.Run("WritePastLimit", func(t *testing.T) {
				f := newFixtureWithStore(t, newStore(t))
				a := f.session("m", 1)
				f.do(t, a, "open x readwrite")

				status(t, lfserrors.StatusOK, f.do(t, a, fmt.Sprintf("lseek x %d", storage.MaxOffset-4)))
				status(t, lfserrors.StatusInvalidOffset, f.do(t, a, "write x hello-world"))

				resp := f.do(t, a, "write x four")
				status(t, lfserrors.StatusOK, resp)
				assert.EqualValues(t, 4, resp.Size, "a write ending exactly at the limit is accepted")
			})
		})
	}
}

func TestDispatchSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	restore := telemetry.UseTracerProvider(tp)
	t.Cleanup(func() {
		restore()
		_ = tp.Shutdown(context.Background())
	})

	f := newFixture(t)
	a := f.session("m", 1)
	f.do(t, a, "open notes write")
	f.do(t, a, "read notes 5")

	spans := rec.Ended()
	require.Len(t, spans, 2)

	attrs := func(i int) map[string]any {
		m := map[string]any{}
		for _, kv := range spans[i].Attributes() {
			m[string(kv.Key)] = kv.Value.AsInterface()
		}
		return m
	}
	assert.Equal(t, telemetry.SpanDispatch, spans[0].Name())
	assert.Equal(t, "open", attrs(0)[telemetry.AttrOperation])
	assert.Equal(t, "notes", attrs(0)[telemetry.AttrFilename])
	assert.Equal(t, "OK", attrs(0)[telemetry.AttrStatus])
	assert.Equal(t, "read", attrs(1)[telemetry.AttrOperation])
	assert.Equal(t, "NotOpen", attrs(1)[telemetry.AttrStatus])
}

func TestProtocolErrors(t *testing.T) {
	f := newFixture(t)
	a := f.session("m", 1)

	status(t, lfserrors.StatusUnknownOperation, f.do(t, a, "delete f"))
	status(t, lfserrors.StatusMalformed, f.do(t, a, ""))
	status(t, lfserrors.StatusMalformed, f.do(t, a, "open f"))
}

// failingStore fails every Open.
type failingStore struct {
	storage.Store
}

func (failingStore) Open(context.Context, string, storage.Flag) (storage.Handle, error) {
	return nil, errors.New("disk on fire")
}

func TestStorageFailureIsFatal(t *testing.T) {
	d := New(lock.NewTable(), failingStore{Store: memory.New()})
	s, _ := session.NewRegistry().Resolve("m", 1, 1, 0)

	resp, err := d.Dispatch(context.Background(), s, "open f write")
	assert.Nil(t, resp)

	var fe *lfserrors.FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, lfserrors.KindResource, fe.Kind)
	assert.Empty(t, s.OpenFiles(), "nothing recorded on failure")
}

func TestParseSeekPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    SeekPolicy
		wantErr bool
	}{
		{"", SeekRequiresWrite, false},
		{"write", SeekRequiresWrite, false},
		{"READ_OR_WRITE", SeekRequiresReadOrWrite, false},
		{"any", SeekRequiresReadOrWrite, false},
		{"sideways", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSeekPolicy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, got, mustParse(t, got.String()))
	}
}

func mustParse(t *testing.T, s string) SeekPolicy {
	t.Helper()
	p, err := ParseSeekPolicy(s)
	require.NoError(t, err)
	return p
}
