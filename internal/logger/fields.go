package logger

import "log/slog"

// Standard field keys for structured logging. Use them consistently so that
// log lines from the transport, coordinator and storage layers can be joined.
const (
	// Tracing
	KeyTraceID   = "trace_id"
	KeySpanID    = "span_id"
	KeyRequestID = "request_id" // Server-assigned datagram id

	// Client identity as declared in the request
	KeyClientIP    = "client_ip"
	KeyMachine     = "machine"
	KeyClientID    = "client_id"
	KeySequence    = "seq"
	KeyIncarnation = "incarnation"
	KeySession     = "session"

	// Operation
	KeyOperation = "op"
	KeyStatus    = "status"
	KeyOutcome   = "outcome" // executed, duplicate, stale, dropped
	KeyFilename  = "filename"
	KeyMode      = "mode"
	KeyLockState = "lock_state"

	// I/O
	KeyOffset       = "offset"
	KeyCount        = "count"
	KeyBytesRead    = "bytes_read"
	KeyBytesWritten = "bytes_written"

	// Storage backend
	KeyStoreType = "store_type"
	KeyBucket    = "bucket"
	KeyKey       = "key"
	KeyPath      = "path"

	// Misc
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyAddress    = "address"
	KeyReleased   = "released"
)

// Machine returns a slog.Attr for the declared client machine.
func Machine(name string) slog.Attr {
	return slog.String(KeyMachine, name)
}

// ClientID returns a slog.Attr for the declared client number.
func ClientID(id int32) slog.Attr {
	return slog.Int(KeyClientID, int(id))
}

// Sequence returns a slog.Attr for a client request number.
func Sequence(seq int32) slog.Attr {
	return slog.Int(KeySequence, int(seq))
}

// Operation returns a slog.Attr for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Status returns a slog.Attr for a response status code.
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// Filename returns a slog.Attr for a client-visible filename.
func Filename(name string) slog.Attr {
	return slog.String(KeyFilename, name)
}

// Offset returns a slog.Attr for a cursor position.
func Offset(off int64) slog.Attr {
	return slog.Int64(KeyOffset, off)
}

// Err returns a slog.Attr for an error. Nil errors produce an empty attr.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
