// Package dispatch executes parsed operations against the lock table, the
// session's open files and the storage backend.
//
// Handlers check every precondition before mutating anything, so a status
// error leaves all state untouched. Storage failures and broken invariants
// come back as *errors.FatalError; the request is then not completed.
//
// Dispatcher is not safe for concurrent use. The server engine serializes
// calls.
package dispatch

import (
	"context"
	"errors"

	"github.com/marmos91/lockfs/internal/command"
	"github.com/marmos91/lockfs/internal/logger"
	"github.com/marmos91/lockfs/internal/protocol/wire"
	"github.com/marmos91/lockfs/internal/telemetry"
	lfserrors "github.com/marmos91/lockfs/pkg/errors"
	"github.com/marmos91/lockfs/pkg/lock"
	"github.com/marmos91/lockfs/pkg/session"
	"github.com/marmos91/lockfs/pkg/storage"
)

// Dispatcher routes operations to their handlers.
type Dispatcher struct {
	locks *lock.Table
	store storage.Store
	seek  SeekPolicy
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSeekPolicy selects the lseek access rule.
func WithSeekPolicy(p SeekPolicy) Option {
	return func(d *Dispatcher) { d.seek = p }
}

// New creates a dispatcher over the given lock table and store.
func New(locks *lock.Table, store storage.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{locks: locks, store: store}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SeekPolicy returns the active lseek rule.
func (d *Dispatcher) SeekPolicy() SeekPolicy {
	return d.seek
}

// Dispatch parses text and runs the matching handler for sess. The returned
// response is never nil when err is nil.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *session.Session, text string) (*wire.Response, error) {
	cmd, err := command.Parse(text)
	if err != nil {
		return statusResponse(ctx, err)
	}
	if err := storage.ValidateName(storage.FileName(sess.Machine, cmd.File())); err != nil {
		return statusResponse(ctx, lfserrors.NewMalformedError(err.Error()))
	}

	ctx, span := telemetry.StartDispatchSpan(ctx, cmd.Name(), telemetry.Filename(cmd.File()))
	defer span.End()

	var resp *wire.Response
	switch c := cmd.(type) {
	case command.Open:
		resp, err = d.open(ctx, sess, c)
	case command.Close:
		resp, err = d.close(ctx, sess, c)
	case command.Read:
		resp, err = d.read(ctx, sess, c)
	case command.Write:
		resp, err = d.write(ctx, sess, c)
	case command.Seek:
		resp, err = d.lseek(ctx, sess, c)
	default:
		err = lfserrors.NewUnknownOperationError(cmd.Name())
	}

	if err != nil {
		resp, err = statusResponse(ctx, err)
		if err != nil {
			telemetry.RecordError(ctx, err)
			return nil, err
		}
	}
	span.SetAttributes(
		telemetry.Status(lfserrors.StatusCode(resp.Status).String()),
		telemetry.Size(resp.Size),
	)
	return resp, nil
}

// statusResponse turns a status error into a response. Any other error is
// fatal and passed through.
func statusResponse(ctx context.Context, err error) (*wire.Response, error) {
	var se *lfserrors.StatusError
	if !errors.As(err, &se) {
		return nil, err
	}
	logger.DebugCtx(ctx, "Operation rejected",
		logger.KeyStatus, se.Code.String(),
		logger.KeyError, se.Message)
	return &wire.Response{Status: int32(se.Code)}, nil
}

func ok(size int, payload []byte) *wire.Response {
	return &wire.Response{Status: int32(lfserrors.StatusOK), Size: int32(size), Payload: payload}
}

// ============================================================================
// Handlers
// ============================================================================

func (d *Dispatcher) open(ctx context.Context, sess *session.Session, c command.Open) (*wire.Response, error) {
	key := lock.MakeKey(sess.Machine, c.Filename)

	if sess.Lookup(key) != nil {
		return nil, lfserrors.NewAlreadyOpenError(c.Filename)
	}

	file, exists := d.locks.Find(sess.Machine, c.Filename)
	if !exists {
		if !c.Mode.Has(command.ModeWrite) {
			return nil, lfserrors.NewNotFoundError(c.Filename)
		}
		if err := d.create(ctx, key); err != nil {
			return nil, err
		}
		file = d.locks.Create(sess.Machine, c.Filename)
		logger.DebugCtx(ctx, "File created", logger.KeyFilename, c.Filename)
	}

	if !d.locks.Compatible(file, c.Mode) {
		return nil, lfserrors.NewLockConflictError(c.Filename, file.State().String())
	}

	if err := d.locks.Acquire(file, sess.Key(), c.Mode); err != nil {
		return nil, lfserrors.NewInconsistentError(command.OpOpen, err)
	}
	if _, err := sess.AddOpen(key, c.Filename, c.Mode); err != nil {
		return nil, lfserrors.NewInconsistentError(command.OpOpen, err)
	}

	logger.DebugCtx(ctx, "File opened",
		logger.KeyFilename, c.Filename,
		logger.KeyMode, c.Mode.String(),
		logger.KeyLockState, file.State().String())
	return ok(0, nil), nil
}

// create makes an empty file in storage and closes it again.
func (d *Dispatcher) create(ctx context.Context, name string) error {
	h, err := d.store.Open(ctx, name, storage.FlagWrite|storage.FlagCreate)
	if err != nil {
		return lfserrors.NewResourceError(command.OpOpen, err)
	}
	if err := h.Close(ctx); err != nil {
		return lfserrors.NewResourceError(command.OpOpen, err)
	}
	return nil
}

func (d *Dispatcher) close(ctx context.Context, sess *session.Session, c command.Close) (*wire.Response, error) {
	file, exists := d.locks.Find(sess.Machine, c.Filename)
	if !exists {
		return nil, lfserrors.NewNotFoundError(c.Filename)
	}
	if !sess.RemoveOpen(file.Key()) {
		return nil, lfserrors.NewNotOpenError(c.Filename, "close")
	}
	if err := d.locks.Release(file, sess.Key()); err != nil {
		return nil, lfserrors.NewInconsistentError(command.OpClose, err)
	}

	logger.DebugCtx(ctx, "File closed",
		logger.KeyFilename, c.Filename,
		logger.KeyLockState, file.State().String())
	return ok(0, nil), nil
}

func (d *Dispatcher) read(ctx context.Context, sess *session.Session, c command.Read) (*wire.Response, error) {
	file, exists := d.locks.Find(sess.Machine, c.Filename)
	if !exists {
		return nil, lfserrors.NewNotFoundError(c.Filename)
	}
	of := sess.Lookup(file.Key())
	if of == nil || !of.Mode.Has(command.ModeRead) {
		return nil, lfserrors.NewNotOpenError(c.Filename, "read")
	}
	if c.Count <= 0 || c.Count > wire.MaxPayload {
		return nil, lfserrors.NewInvalidCountError(c.Count, wire.MaxPayload)
	}

	h, err := d.store.Open(ctx, file.Key(), storage.FlagRead)
	if err != nil {
		return nil, lfserrors.NewResourceError(command.OpRead, err)
	}
	buf := make([]byte, c.Count)
	n, err := h.ReadAt(ctx, buf, of.Cursor)
	if err != nil {
		_ = h.Close(ctx)
		return nil, lfserrors.NewResourceError(command.OpRead, err)
	}
	if err := h.Close(ctx); err != nil {
		return nil, lfserrors.NewResourceError(command.OpRead, err)
	}

	of.Cursor += int64(n)
	logger.DebugCtx(ctx, "File read",
		logger.KeyFilename, c.Filename,
		logger.KeyBytesRead, n,
		logger.KeyOffset, of.Cursor)
	return ok(n, buf[:n]), nil
}

func (d *Dispatcher) write(ctx context.Context, sess *session.Session, c command.Write) (*wire.Response, error) {
	file, exists := d.locks.Find(sess.Machine, c.Filename)
	if !exists {
		return nil, lfserrors.NewNotFoundError(c.Filename)
	}
	of := sess.Lookup(file.Key())
	if of == nil || !of.Mode.Has(command.ModeWrite) {
		return nil, lfserrors.NewNotOpenError(c.Filename, "write")
	}
	if storage.CheckExtent(of.Cursor, len(c.Data)) != nil {
		return nil, lfserrors.NewInvalidOffsetError(of.Cursor)
	}

	h, err := d.store.Open(ctx, file.Key(), storage.FlagWrite)
	if err != nil {
		return nil, lfserrors.NewResourceError(command.OpWrite, err)
	}
	n, err := h.WriteAt(ctx, c.Data, of.Cursor)
	if err != nil {
		_ = h.Close(ctx)
		return nil, lfserrors.NewResourceError(command.OpWrite, err)
	}
	if err := h.Close(ctx); err != nil {
		return nil, lfserrors.NewResourceError(command.OpWrite, err)
	}

	of.Cursor += int64(n)
	logger.DebugCtx(ctx, "File written",
		logger.KeyFilename, c.Filename,
		logger.KeyBytesWritten, n,
		logger.KeyOffset, of.Cursor)
	return ok(n, nil), nil
}

func (d *Dispatcher) lseek(ctx context.Context, sess *session.Session, c command.Seek) (*wire.Response, error) {
	file, exists := d.locks.Find(sess.Machine, c.Filename)
	if !exists {
		return nil, lfserrors.NewNotFoundError(c.Filename)
	}
	of := sess.Lookup(file.Key())
	if of == nil || !of.Mode.Has(d.seek.Mask()) {
		return nil, lfserrors.NewNotOpenError(c.Filename, "lseek")
	}
	if c.Offset < 0 || c.Offset > storage.MaxOffset {
		return nil, lfserrors.NewInvalidOffsetError(c.Offset)
	}

	of.Cursor = c.Offset
	logger.DebugCtx(ctx, "Cursor moved", logger.KeyFilename, c.Filename, logger.KeyOffset, c.Offset)
	return ok(0, nil), nil
}
