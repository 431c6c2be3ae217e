package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/lockfs/internal/protocol/wire"
	"github.com/marmos91/lockfs/pkg/dispatch"
	lfserrors "github.com/marmos91/lockfs/pkg/errors"
	"github.com/marmos91/lockfs/pkg/lock"
	"github.com/marmos91/lockfs/pkg/session"
	"github.com/marmos91/lockfs/pkg/storage/memory"
)

type fixture struct {
	sessions *session.Registry
	locks    *lock.Table
	store    *memory.Store
	coord    *Coordinator
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{
		sessions: session.NewRegistry(),
		locks:    lock.NewTable(),
		store:    memory.New(),
	}
	f.coord = New(f.sessions, f.locks, dispatch.New(f.locks, f.store), opts...)
	return f
}

// client builds requests for one logical client.
type client struct {
	machine     string
	id          int32
	incarnation int32
	seq         int32
}

func (c *client) next(op string) *wire.Request {
	c.seq++
	return c.at(c.seq, op)
}

func (c *client) at(seq int32, op string) *wire.Request {
	return &wire.Request{
		Machine:     c.machine,
		ClientID:    c.id,
		Sequence:    seq,
		Incarnation: c.incarnation,
		Operation:   op,
	}
}

func (f *fixture) handle(t *testing.T, req *wire.Request) Result {
	t.Helper()
	res, err := f.coord.Handle(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, f.locks.CheckInvariants())
	return res
}

func statusOf(r Result) lfserrors.StatusCode {
	return lfserrors.StatusCode(r.Response.Status)
}

func TestExactlyOnce(t *testing.T) {
	f := newFixture()
	c := &client{machine: "alpha", id: 1}

	res := f.handle(t, c.next("open log write"))
	assert.True(t, res.SessionCreated)
	assert.Equal(t, OutcomeExecuted, res.Outcome)

	for i := 0; i < 5; i++ {
		res = f.handle(t, c.next("write log x"))
		assert.Equal(t, OutcomeExecuted, res.Outcome)
		assert.False(t, res.SessionCreated)
	}

	data, ok := f.store.Contents("alpha:log")
	require.True(t, ok)
	assert.Equal(t, "xxxxx", string(data))

	sess, ok := f.sessions.Get("alpha", 1)
	require.True(t, ok)
	assert.EqualValues(t, 6, sess.LastRequest)
}

func TestDuplicateReplaysCachedResponse(t *testing.T) {
	f := newFixture()
	c := &client{machine: "alpha", id: 1}

	f.handle(t, c.next("open log write"))
	write := c.next("write log hello")
	first := f.handle(t, write)
	require.Equal(t, OutcomeExecuted, first.Outcome)

	again := f.handle(t, write)
	assert.Equal(t, OutcomeDuplicate, again.Outcome)
	assert.True(t, first.Response.Equal(again.Response))

	data, _ := f.store.Contents("alpha:log")
	assert.Equal(t, "hello", string(data), "retransmitted write appends once")
}

func TestDuplicateOfFailedRequestReplaysStatus(t *testing.T) {
	f := newFixture()
	c := &client{machine: "alpha", id: 1}

	req := c.next("open ghost read")
	first := f.handle(t, req)
	assert.Equal(t, lfserrors.StatusNotFound, statusOf(first))

	again := f.handle(t, req)
	assert.Equal(t, OutcomeDuplicate, again.Outcome)
	assert.Equal(t, lfserrors.StatusNotFound, statusOf(again))
}

func TestStaleRequestIsSilent(t *testing.T) {
	f := newFixture()
	c := &client{machine: "alpha", id: 1}

	f.handle(t, c.next("open log write"))
	f.handle(t, c.next("write log a"))
	f.handle(t, c.next("write log b"))

	res := f.handle(t, c.at(1, "write log zzz"))
	assert.Equal(t, OutcomeStale, res.Outcome)
	assert.Nil(t, res.Response)

	data, _ := f.store.Contents("alpha:log")
	assert.Equal(t, "ab", string(data))
}

func TestFirstRequestMayStartAnywhere(t *testing.T) {
	f := newFixture()
	c := &client{machine: "alpha", id: 1, seq: 41}

	res := f.handle(t, c.next("open log write"))
	assert.Equal(t, OutcomeExecuted, res.Outcome)
	assert.Equal(t, lfserrors.StatusOK, statusOf(res))
}

func TestIncarnationChangeReleasesLocks(t *testing.T) {
	f := newFixture()
	a := &client{machine: "m", id: 1}
	b := &client{machine: "m", id: 2}

	f.handle(t, a.next("open shared write"))
	f.handle(t, a.next("open other write"))
	res := f.handle(t, b.next("open shared write"))
	require.Equal(t, lfserrors.StatusLockConflict, statusOf(res))

	a.incarnation++
	res = f.handle(t, a.next("open unrelated write"))
	assert.True(t, res.IncarnationChanged)
	assert.Equal(t, 2, res.Released)

	res = f.handle(t, b.next("open shared write"))
	assert.Equal(t, lfserrors.StatusOK, statusOf(res))

	sess, _ := f.sessions.Get("m", 1)
	assert.EqualValues(t, 1, sess.LastIncarnation)
	require.Len(t, sess.OpenFiles(), 1)
	assert.Equal(t, "unrelated", sess.OpenFiles()[0].Filename)

	// The old descriptor is gone, so closing it is a state error rather
	// than a lock-table inconsistency.
	res = f.handle(t, a.next("close other"))
	assert.Equal(t, lfserrors.StatusNotOpen, statusOf(res))
}

func TestIncarnationChangeAppliesToStaleRequests(t *testing.T) {
	f := newFixture()
	a := &client{machine: "m", id: 1}

	f.handle(t, a.next("open f write"))
	f.handle(t, a.next("write f x"))

	a.incarnation = 7
	res := f.handle(t, a.at(1, "open f read"))
	assert.Equal(t, OutcomeStale, res.Outcome)
	assert.True(t, res.IncarnationChanged)
	assert.Equal(t, 1, res.Released)

	file, _ := f.locks.Find("m", "f")
	assert.Equal(t, lock.Unlocked, file.State())
}

func TestFaultPolicy(t *testing.T) {
	t.Run("DropRequestDoesNotConsumeSequence", func(t *testing.T) {
		f := newFixture(WithPolicy(NewScriptedPolicy(DecisionDropRequest)))
		c := &client{machine: "m", id: 1}

		req := c.next("open f write")
		res := f.handle(t, req)
		assert.Equal(t, OutcomeDroppedRequest, res.Outcome)
		assert.Nil(t, res.Response)
		_, exists := f.locks.Find("m", "f")
		assert.False(t, exists)

		res = f.handle(t, req)
		assert.Equal(t, OutcomeExecuted, res.Outcome)
		assert.Equal(t, lfserrors.StatusOK, statusOf(res))
	})

	t.Run("DropReplyCachesResult", func(t *testing.T) {
		f := newFixture(WithPolicy(NewScriptedPolicy(DecisionReply, DecisionDropReply)))
		c := &client{machine: "m", id: 1}

		f.handle(t, c.next("open f write"))
		req := c.next("write f hello")
		res := f.handle(t, req)
		assert.Equal(t, OutcomeDroppedReply, res.Outcome)
		assert.Nil(t, res.Response)

		res = f.handle(t, req)
		assert.Equal(t, OutcomeDuplicate, res.Outcome)
		require.NotNil(t, res.Response)
		assert.EqualValues(t, 5, res.Response.Size)

		data, _ := f.store.Contents("m:f")
		assert.Equal(t, "hello", string(data))
	})

	t.Run("NilRestoresDefault", func(t *testing.T) {
		f := newFixture(WithPolicy(nil))
		assert.IsType(t, AlwaysReply{}, f.coord.Policy())
	})
}

func TestRandomPolicyIsDeterministic(t *testing.T) {
	decide := func(seed int64) []Decision {
		p := NewRandomPolicy(0.2, 0.3, seed)
		out := make([]Decision, 200)
		for i := range out {
			out[i] = p.Decide(nil)
		}
		return out
	}

	a, b := decide(7), decide(7)
	assert.Equal(t, a, b)

	counts := map[Decision]int{}
	for _, d := range a {
		counts[d]++
	}
	assert.Positive(t, counts[DecisionReply])
	assert.Positive(t, counts[DecisionDropRequest])
	assert.Positive(t, counts[DecisionDropReply])

	never := NewRandomPolicy(0, 0, 1)
	for i := 0; i < 100; i++ {
		assert.Equal(t, DecisionReply, never.Decide(nil))
	}
}

func TestScriptedPolicy(t *testing.T) {
	p := NewScriptedPolicy(DecisionDropReply, DecisionDropRequest)
	assert.Equal(t, 2, p.Remaining())
	assert.Equal(t, DecisionDropReply, p.Decide(nil))
	assert.Equal(t, DecisionDropRequest, p.Decide(nil))
	assert.Equal(t, DecisionReply, p.Decide(nil))
	assert.Zero(t, p.Remaining())
}

type fatalExecutor struct{}

func (fatalExecutor) Dispatch(context.Context, *session.Session, string) (*wire.Response, error) {
	return nil, lfserrors.NewResourceError("write", errors.New("io"))
}

func TestFatalErrorLeavesRequestIncomplete(t *testing.T) {
	sessions := session.NewRegistry()
	coord := New(sessions, lock.NewTable(), fatalExecutor{})

	_, err := coord.Handle(context.Background(), &wire.Request{Machine: "m", ClientID: 1, Sequence: 5, Operation: "write f x"})
	require.True(t, lfserrors.IsFatal(err))

	sess, _ := sessions.Get("m", 1)
	assert.EqualValues(t, 4, sess.LastRequest)
	assert.Nil(t, sess.Cached)
}

// TestRandomizedSessions drives three clients through random operations,
// retransmissions and restarts, checking the lock table after every request.
func TestRandomizedSessions(t *testing.T) {
	f := newFixture(WithPolicy(NewRandomPolicy(0.1, 0.1, 3)))
	rng := rand.New(rand.NewSource(99))

	clients := []*client{
		{machine: "m", id: 1},
		{machine: "m", id: 2},
		{machine: "m", id: 3},
	}
	files := []string{"a", "b", "c"}
	modes := []string{"read", "write", "readwrite"}

	last := make([]*wire.Request, len(clients))

	for step := 0; step < 3000; step++ {
		i := rng.Intn(len(clients))
		c := clients[i]
		name := files[rng.Intn(len(files))]

		var req *wire.Request
		switch r := rng.Intn(20); {
		case r == 0:
			c.incarnation++
			req = c.next("close " + name)
		case r < 3 && last[i] != nil:
			req = last[i]
			req.Incarnation = c.incarnation
		case r < 11:
			req = c.next(fmt.Sprintf("open %s %s", name, modes[rng.Intn(len(modes))]))
		case r < 17:
			req = c.next("close " + name)
		default:
			req = c.next("write " + name + " z")
		}
		last[i] = req

		f.handle(t, req)

		for _, other := range clients {
			sess, ok := f.sessions.Get(other.machine, other.id)
			if !ok {
				continue
			}
			for _, fn := range files {
				rec, exists := f.locks.Find("m", fn)
				if !exists {
					continue
				}
				assert.Equal(t, sess.Lookup(rec.Key()) != nil, rec.HeldBy(sess.Key()),
					"step %d: session %s file %s", step, sess.Key(), fn)
			}
		}
	}
}
