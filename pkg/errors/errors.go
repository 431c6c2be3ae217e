// Package errors defines the status codes carried in response datagrams and
// the typed error used by operation handlers to produce them.
//
// This is a leaf package with no internal dependencies so that the lock table,
// dispatcher and client can all share one set of codes.
package errors

import (
	"errors"
	"fmt"
)

// StatusCode is the status field of a response. Zero means success.
type StatusCode int32

const (
	// StatusOK indicates the operation completed.
	StatusOK StatusCode = 0

	// Protocol errors: the request itself is unusable. The sequence number
	// is still consumed.

	// StatusMalformed indicates missing or unparsable operation arguments.
	StatusMalformed StatusCode = iota
	// StatusUnknownOperation indicates an operation name the server does not implement.
	StatusUnknownOperation
	// StatusInvalidMode indicates an open mode other than read, write or readwrite.
	StatusInvalidMode
	// StatusInvalidCount indicates a read count outside (0, MaxPayload].
	StatusInvalidCount
	// StatusInvalidOffset indicates a negative seek offset.
	StatusInvalidOffset

	// State errors: the request is well formed but the current lock or open
	// state forbids it. Nothing is mutated.

	// StatusNotFound indicates the named file has no record.
	StatusNotFound
	// StatusLockConflict indicates the requested lock is incompatible with the held one.
	StatusLockConflict
	// StatusAlreadyOpen indicates the session already has the file open.
	StatusAlreadyOpen
	// StatusNotOpen indicates the session does not have the file open in the required mode.
	StatusNotOpen
)

// String returns a human-readable name for the status code.
func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "OK"
	case StatusMalformed:
		return "Malformed"
	case StatusUnknownOperation:
		return "UnknownOperation"
	case StatusInvalidMode:
		return "InvalidMode"
	case StatusInvalidCount:
		return "InvalidCount"
	case StatusInvalidOffset:
		return "InvalidOffset"
	case StatusNotFound:
		return "NotFound"
	case StatusLockConflict:
		return "LockConflict"
	case StatusAlreadyOpen:
		return "AlreadyOpen"
	case StatusNotOpen:
		return "NotOpen"
	default:
		return fmt.Sprintf("Unknown(%d)", int32(c))
	}
}

// IsProtocol reports whether c is a protocol error.
func (c StatusCode) IsProtocol() bool {
	return c >= StatusMalformed && c <= StatusInvalidOffset
}

// IsState reports whether c is a state error.
func (c StatusCode) IsState() bool {
	return c >= StatusNotFound && c <= StatusNotOpen
}

// StatusError is a non-fatal operation failure that maps onto a response status.
type StatusError struct {
	Code     StatusCode
	Message  string
	Filename string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Filename != "" {
		return fmt.Sprintf("%s: %s (file: %s)", e.Code, e.Message, e.Filename)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// StatusOf extracts the status code from err. Nil maps to StatusOK; errors
// that are not a *StatusError report ok=false.
func StatusOf(err error) (StatusCode, bool) {
	if err == nil {
		return StatusOK, true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// ============================================================================
// Factory Functions
// ============================================================================

// NewMalformedError creates a Malformed error.
func NewMalformedError(message string) *StatusError {
	return &StatusError{Code: StatusMalformed, Message: message}
}

// NewUnknownOperationError creates an UnknownOperation error.
func NewUnknownOperationError(op string) *StatusError {
	return &StatusError{Code: StatusUnknownOperation, Message: fmt.Sprintf("unknown operation %q", op)}
}

// NewInvalidModeError creates an InvalidMode error.
func NewInvalidModeError(mode string) *StatusError {
	return &StatusError{Code: StatusInvalidMode, Message: fmt.Sprintf("invalid mode %q", mode)}
}

// NewInvalidCountError creates an InvalidCount error.
func NewInvalidCountError(count, max int) *StatusError {
	return &StatusError{Code: StatusInvalidCount, Message: fmt.Sprintf("count %d outside 1..%d", count, max)}
}

// NewInvalidOffsetError creates an InvalidOffset error.
func NewInvalidOffsetError(offset int64) *StatusError {
	return &StatusError{Code: StatusInvalidOffset, Message: fmt.Sprintf("invalid offset %d", offset)}
}

// NewNotFoundError creates a NotFound error.
func NewNotFoundError(filename string) *StatusError {
	return &StatusError{Code: StatusNotFound, Message: "file not found", Filename: filename}
}

// NewLockConflictError creates a LockConflict error.
func NewLockConflictError(filename, held string) *StatusError {
	return &StatusError{Code: StatusLockConflict, Message: "file is " + held, Filename: filename}
}

// NewAlreadyOpenError creates an AlreadyOpen error.
func NewAlreadyOpenError(filename string) *StatusError {
	return &StatusError{Code: StatusAlreadyOpen, Message: "file already open", Filename: filename}
}

// NewNotOpenError creates a NotOpen error.
func NewNotOpenError(filename, mode string) *StatusError {
	return &StatusError{Code: StatusNotOpen, Message: "file not open for " + mode, Filename: filename}
}

// ============================================================================
// Fatal Errors
// ============================================================================

// FatalKind classifies an unrecoverable failure.
type FatalKind int

const (
	// KindResource is a storage I/O failure.
	KindResource FatalKind = iota + 1
	// KindInconsistent is a broken lock-table or open-file invariant.
	KindInconsistent
)

// String returns the kind name.
func (k FatalKind) String() string {
	switch k {
	case KindResource:
		return "resource"
	case KindInconsistent:
		return "inconsistent"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FatalError is a failure the server cannot answer with a status code. The
// request is not completed and the server stops.
type FatalError struct {
	Kind FatalKind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal %s error during %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *FatalError) Unwrap() error {
	return e.Err
}

// NewResourceError wraps a storage failure.
func NewResourceError(op string, err error) *FatalError {
	return &FatalError{Kind: KindResource, Op: op, Err: err}
}

// NewInconsistentError wraps an invariant violation.
func NewInconsistentError(op string, err error) *FatalError {
	return &FatalError{Kind: KindInconsistent, Op: op, Err: err}
}

// IsFatal reports whether err is or wraps a *FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
