package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on LockFS spans.
const (
	// Client identity as declared in the request
	AttrClientIP    = "client.ip"
	AttrMachine     = "lockfs.machine"
	AttrClientID    = "lockfs.client_id"
	AttrSequence    = "lockfs.seq"
	AttrIncarnation = "lockfs.incarnation"

	// Request handling
	AttrOperation = "lockfs.operation"
	AttrOutcome   = "lockfs.outcome"
	AttrStatus    = "lockfs.status"
	AttrReleased  = "lockfs.locks_released"
	AttrFilename  = "fs.filename"
	AttrSize      = "fs.size"

	// Storage backend
	AttrStoreType = "store.type"
	AttrBucket    = "storage.bucket"
)

// Span names.
const (
	// SpanRequest is the root span for one datagram.
	SpanRequest = "lockfs.request"

	// SpanDispatch covers operation execution under the engine lock.
	SpanDispatch = "lockfs.dispatch"
)

func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

func Machine(name string) attribute.KeyValue {
	return attribute.String(AttrMachine, name)
}

func ClientID(id int32) attribute.KeyValue {
	return attribute.Int(AttrClientID, int(id))
}

func Sequence(seq int32) attribute.KeyValue {
	return attribute.Int(AttrSequence, int(seq))
}

func Incarnation(inc int32) attribute.KeyValue {
	return attribute.Int(AttrIncarnation, int(inc))
}

func Operation(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

func Outcome(outcome string) attribute.KeyValue {
	return attribute.String(AttrOutcome, outcome)
}

func Status(status string) attribute.KeyValue {
	return attribute.String(AttrStatus, status)
}

func Released(n int) attribute.KeyValue {
	return attribute.Int(AttrReleased, n)
}

func Filename(name string) attribute.KeyValue {
	return attribute.String(AttrFilename, name)
}

func Size(n int32) attribute.KeyValue {
	return attribute.Int(AttrSize, int(n))
}

func StoreType(t string) attribute.KeyValue {
	return attribute.String(AttrStoreType, t)
}

func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StartRequestSpan starts the root span for a request from a declared client.
func StartRequestSpan(ctx context.Context, clientIP, machine string, clientID, seq, incarnation int32, op string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanRequest,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			ClientIP(clientIP),
			Machine(machine),
			ClientID(clientID),
			Sequence(seq),
			Incarnation(incarnation),
			Operation(op),
		),
	)
}

// StartDispatchSpan starts a child span for operation execution.
func StartDispatchSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanDispatch,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(append([]attribute.KeyValue{Operation(op)}, attrs...)...),
	)
}
