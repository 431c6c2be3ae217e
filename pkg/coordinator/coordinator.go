// Package coordinator gives every client request exactly-once semantics.
//
// For a request with sequence r from a session whose last completed request
// is s:
//
//	r <  s   stale: dropped, no response
//	r == s   duplicate: the cached response is replayed, nothing re-executes
//	r >  s   new: executed, its response cached, s becomes r
//
// Before that comparison, a changed incarnation number means the client
// restarted: every lock it held is released and its open files forgotten.
package coordinator

import (
	"context"

	"github.com/marmos91/lockfs/internal/logger"
	"github.com/marmos91/lockfs/internal/protocol/wire"
	"github.com/marmos91/lockfs/pkg/lock"
	"github.com/marmos91/lockfs/pkg/session"
)

// Outcome classifies how a request was handled.
type Outcome int

const (
	// OutcomeExecuted means the request ran and its response is returned.
	OutcomeExecuted Outcome = iota
	// OutcomeDuplicate means the cached response (possibly none) is replayed.
	OutcomeDuplicate
	// OutcomeStale means the request predates the last completed one.
	OutcomeStale
	// OutcomeDroppedRequest means the fault policy discarded the request.
	OutcomeDroppedRequest
	// OutcomeDroppedReply means the request ran but its reply is withheld.
	OutcomeDroppedReply
)

// String returns the outcome label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeExecuted:
		return "executed"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeStale:
		return "stale"
	case OutcomeDroppedRequest:
		return "dropped_request"
	case OutcomeDroppedReply:
		return "dropped_reply"
	default:
		return "unknown"
	}
}

// Result is what the coordinator decided for one request.
type Result struct {
	// Response is sent back to the client. Nil means stay silent.
	Response *wire.Response

	Outcome Outcome

	// SessionCreated reports a first request from this identity.
	SessionCreated bool

	// IncarnationChanged reports that the client restarted; Released is
	// the number of locks freed as a result.
	IncarnationChanged bool
	Released           int
}

// Executor runs one operation for a session.
type Executor interface {
	Dispatch(ctx context.Context, sess *session.Session, text string) (*wire.Response, error)
}

// Coordinator applies the exactly-once rules in front of an Executor.
//
// Coordinator is not safe for concurrent use. The server engine serializes
// calls.
type Coordinator struct {
	sessions *session.Registry
	locks    *lock.Table
	exec     Executor
	policy   Policy
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPolicy installs a fault injection policy. Nil restores AlwaysReply.
func WithPolicy(p Policy) Option {
	return func(c *Coordinator) {
		if p == nil {
			p = AlwaysReply{}
		}
		c.policy = p
	}
}

// New creates a coordinator.
func New(sessions *session.Registry, locks *lock.Table, exec Executor, opts ...Option) *Coordinator {
	c := &Coordinator{
		sessions: sessions,
		locks:    locks,
		exec:     exec,
		policy:   AlwaysReply{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle classifies req and executes it if it is new. The error is non-nil
// only for fatal failures from the executor; in that case the request is not
// recorded as completed.
func (c *Coordinator) Handle(ctx context.Context, req *wire.Request) (Result, error) {
	sess, created := c.sessions.Resolve(req.Machine, req.ClientID, req.Sequence, req.Incarnation)
	res := Result{SessionCreated: created}

	if req.Incarnation != sess.LastIncarnation {
		res.IncarnationChanged = true
		res.Released = c.locks.ReleaseAll(sess.Key())
		dropped := sess.ClearOpen()
		logger.InfoCtx(ctx, "Client restarted, released its locks",
			logger.KeySession, sess.Key(),
			"previous_incarnation", sess.LastIncarnation,
			logger.KeyIncarnation, req.Incarnation,
			logger.KeyReleased, res.Released,
			"open_files_dropped", len(dropped))
		sess.LastIncarnation = req.Incarnation
	}

	switch {
	case req.Sequence < sess.LastRequest:
		res.Outcome = OutcomeStale
		logger.DebugCtx(ctx, "Stale request ignored", "last_request", sess.LastRequest)
		return res, nil

	case req.Sequence == sess.LastRequest:
		res.Outcome = OutcomeDuplicate
		res.Response = sess.Cached
		logger.DebugCtx(ctx, "Duplicate request", "replayed", sess.Cached != nil)
		return res, nil
	}

	decision := c.policy.Decide(req)
	if decision == DecisionDropRequest {
		res.Outcome = OutcomeDroppedRequest
		logger.DebugCtx(ctx, "Fault policy dropped request")
		return res, nil
	}

	resp, err := c.exec.Dispatch(ctx, sess, req.Operation)
	if err != nil {
		return res, err
	}

	sess.Cached = resp
	sess.LastRequest = req.Sequence

	if decision == DecisionDropReply {
		res.Outcome = OutcomeDroppedReply
		logger.DebugCtx(ctx, "Fault policy dropped reply")
		return res, nil
	}

	res.Outcome = OutcomeExecuted
	res.Response = resp
	return res, nil
}

// Policy returns the active fault policy.
func (c *Coordinator) Policy() Policy {
	return c.policy
}
