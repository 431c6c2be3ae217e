package metrics

import "time"

// EngineMetrics observes request handling in the server engine.
//
// Pass nil to disable collection.
type EngineMetrics interface {
	// RecordRequest counts a request by coordinator outcome
	// (executed, duplicate, stale, dropped_request, dropped_reply).
	RecordRequest(outcome string)

	// RecordOperation records an executed operation with its status name
	// and handling time.
	RecordOperation(operation, status string, duration time.Duration)

	// RecordLockReleases counts locks released for reason (close, restart).
	RecordLockReleases(reason string, count int)

	// SetSessions sets the number of known sessions.
	SetSessions(n int)

	// SetFiles sets the number of file records.
	SetFiles(n int)
}

// TransportMetrics observes the datagram transport.
//
// Pass nil to disable collection.
type TransportMetrics interface {
	// RecordDroppedDatagram counts a datagram discarded before reaching the
	// engine, by reason (malformed, rate_limited, encode_error).
	RecordDroppedDatagram(reason string)
}
