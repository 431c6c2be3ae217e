package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds request-scoped logging fields for a single datagram.
type LogContext struct {
	RequestID   string // Server-assigned id for the datagram (uuid)
	TraceID     string // OpenTelemetry trace ID
	SpanID      string // OpenTelemetry span ID
	ClientIP    string // Source address of the datagram (without port)
	Machine     string // Declared client machine
	ClientID    int32  // Declared client number
	Sequence    int32  // Client request number
	Incarnation int32  // Client incarnation number
	Operation   string // Operation name (open, close, read, write, lseek)
	StartTime   time.Time
}

// WithContext returns a new context carrying lc.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from ctx, or nil if not present.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a LogContext for a datagram received from clientIP.
func NewLogContext(requestID, clientIP string) *LogContext {
	return &LogContext{
		RequestID: requestID,
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithClient returns a copy with the declared client identity set.
func (lc *LogContext) WithClient(machine string, clientID, sequence, incarnation int32) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Machine = machine
		clone.ClientID = clientID
		clone.Sequence = sequence
		clone.Incarnation = incarnation
	}
	return clone
}

// WithOperation returns a copy with the operation name set.
func (lc *LogContext) WithOperation(op string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Operation = op
	}
	return clone
}

// WithTrace returns a copy with trace info set.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
