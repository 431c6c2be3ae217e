// Package server hosts the request engine: the session registry, the lock
// table, the dispatcher and the coordinator, guarded by one mutex.
//
// Every request runs entirely inside the engine lock, from session lookup to
// response caching. Transports may receive concurrently; the engine is the
// serialization point.
package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/marmos91/lockfs/internal/command"
	"github.com/marmos91/lockfs/internal/logger"
	"github.com/marmos91/lockfs/internal/protocol/wire"
	"github.com/marmos91/lockfs/internal/telemetry"
	"github.com/marmos91/lockfs/pkg/coordinator"
	"github.com/marmos91/lockfs/pkg/dispatch"
	lfserrors "github.com/marmos91/lockfs/pkg/errors"
	"github.com/marmos91/lockfs/pkg/lock"
	"github.com/marmos91/lockfs/pkg/metrics"
	"github.com/marmos91/lockfs/pkg/session"
	"github.com/marmos91/lockfs/pkg/storage"
)

// Engine owns all server state.
type Engine struct {
	mu sync.Mutex

	sessions *session.Registry
	locks    *lock.Table
	dispatch *dispatch.Dispatcher
	coord    *coordinator.Coordinator
	store    storage.Store
	metrics  metrics.EngineMetrics

	outcomes map[string]uint64
	started  time.Time
}

type options struct {
	seek    dispatch.SeekPolicy
	policy  coordinator.Policy
	metrics metrics.EngineMetrics
}

// Option configures an Engine.
type Option func(*options)

// WithSeekPolicy selects the lseek access rule.
func WithSeekPolicy(p dispatch.SeekPolicy) Option {
	return func(o *options) { o.seek = p }
}

// WithFaultPolicy installs a fault injection policy.
func WithFaultPolicy(p coordinator.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithMetrics enables metrics collection. Nil disables it.
func WithMetrics(m metrics.EngineMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// NewEngine creates an engine over store.
func NewEngine(store storage.Store, opts ...Option) *Engine {
	o := options{policy: coordinator.AlwaysReply{}}
	for _, opt := range opts {
		opt(&o)
	}

	sessions := session.NewRegistry()
	locks := lock.NewTable()
	d := dispatch.New(locks, store, dispatch.WithSeekPolicy(o.seek))

	return &Engine{
		sessions: sessions,
		locks:    locks,
		dispatch: d,
		coord:    coordinator.New(sessions, locks, d, coordinator.WithPolicy(o.policy)),
		store:    store,
		metrics:  o.metrics,
		outcomes: make(map[string]uint64),
		started:  time.Now(),
	}
}

// Handle runs one request. A nil response with a nil error means no reply is
// sent. A non-nil error is always a *FatalError.
func (e *Engine) Handle(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	op := command.OperationName(req.Operation)

	ctx, span := telemetry.StartRequestSpan(ctx, req.ClientIP, req.Machine, req.ClientID, req.Sequence, req.Incarnation, op)
	defer span.End()

	lc := logger.FromContext(ctx)
	if lc == nil {
		lc = logger.NewLogContext("", req.ClientIP)
	}
	lc = lc.WithClient(req.Machine, req.ClientID, req.Sequence, req.Incarnation).
		WithOperation(op).
		WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	ctx = logger.WithContext(ctx, lc)

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	res, err := e.coord.Handle(ctx, req)
	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.ErrorCtx(ctx, "Request failed fatally", logger.Err(err))
		return nil, err
	}

	e.record(ctx, req, op, res, time.Since(start))
	return res.Response, nil
}

// record updates counters, metrics and the span for a handled request.
func (e *Engine) record(ctx context.Context, req *wire.Request, op string, res coordinator.Result, elapsed time.Duration) {
	outcome := res.Outcome.String()
	e.outcomes[outcome]++

	telemetry.SetAttributes(ctx, telemetry.Outcome(outcome))
	if res.IncarnationChanged {
		telemetry.AddEvent(ctx, "client.restarted", telemetry.Released(res.Released))
	}

	executed := res.Outcome == coordinator.OutcomeExecuted || res.Outcome == coordinator.OutcomeDroppedReply
	status := lfserrors.StatusOK
	if executed {
		status = e.lastStatus(req, res)
		telemetry.SetAttributes(ctx, telemetry.Status(status.String()))
		if status != lfserrors.StatusOK {
			telemetry.SetStatus(ctx, codes.Unset, status.String())
		}
	}

	logger.DebugCtx(ctx, "Request handled",
		logger.KeyOutcome, outcome,
		logger.KeyDurationMs, float64(elapsed.Microseconds())/1000.0)

	if e.metrics == nil {
		return
	}
	e.metrics.RecordRequest(outcome)
	if executed {
		e.metrics.RecordOperation(op, status.String(), elapsed)
		if op == command.OpClose && status == lfserrors.StatusOK {
			e.metrics.RecordLockReleases("close", 1)
		}
	}
	if res.IncarnationChanged {
		e.metrics.RecordLockReleases("restart", res.Released)
	}
	e.metrics.SetSessions(e.sessions.Len())
	e.metrics.SetFiles(e.locks.Len())
}

// lastStatus returns the status of an executed request. A withheld reply is
// still cached on the session.
func (e *Engine) lastStatus(req *wire.Request, res coordinator.Result) lfserrors.StatusCode {
	resp := res.Response
	if resp == nil {
		if sess, ok := e.sessions.Get(req.Machine, req.ClientID); ok {
			resp = sess.Cached
		}
	}
	if resp == nil {
		return lfserrors.StatusOK
	}
	return lfserrors.StatusCode(resp.Status)
}

// ============================================================================
// Introspection
// ============================================================================

// Stats summarizes engine state.
type Stats struct {
	Sessions   int               `json:"sessions" yaml:"sessions"`
	Files      int               `json:"files" yaml:"files"`
	LockStates map[string]int    `json:"lock_states" yaml:"lock_states"`
	Outcomes   map[string]uint64 `json:"outcomes" yaml:"outcomes"`
	StoreType  string            `json:"store_type" yaml:"store_type"`
	SeekPolicy string            `json:"seek_policy" yaml:"seek_policy"`
	StartedAt  time.Time         `json:"started_at" yaml:"started_at"`
	UptimeSecs float64           `json:"uptime_seconds" yaml:"uptime_seconds"`
}

// Sessions returns a snapshot of all sessions.
func (e *Engine) Sessions() []session.SessionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions.Snapshot()
}

// Files returns a snapshot of all file records.
func (e *Engine) Files() []lock.FileInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.locks.Snapshot()
}

// Stats returns counters and sizes.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	states := make(map[string]int)
	for state, n := range e.locks.CountByState() {
		states[state.String()] = n
	}
	outcomes := make(map[string]uint64, len(e.outcomes))
	for k, v := range e.outcomes {
		outcomes[k] = v
	}

	return Stats{
		Sessions:   e.sessions.Len(),
		Files:      e.locks.Len(),
		LockStates: states,
		Outcomes:   outcomes,
		StoreType:  e.store.Type(),
		SeekPolicy: e.dispatch.SeekPolicy().String(),
		StartedAt:  e.started,
		UptimeSecs: time.Since(e.started).Seconds(),
	}
}

// CheckInvariants verifies the lock table and that every open file is backed
// by a lock held by its session.
func (e *Engine) CheckInvariants() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.locks.CheckInvariants(); err != nil {
		return err
	}
	for _, info := range e.sessions.Snapshot() {
		for _, of := range info.OpenFiles {
			f, ok := e.locks.Find(info.Machine, of.Filename)
			if !ok || !f.HeldBy(info.Key) {
				return fmt.Errorf("%w: session %s has %s open without a lock", lock.ErrInconsistent, info.Key, of.FileKey)
			}
		}
	}
	return nil
}

// HealthCheck verifies the storage backend.
func (e *Engine) HealthCheck(ctx context.Context) error {
	return e.store.HealthCheck(ctx)
}
