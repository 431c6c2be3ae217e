package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newEngineMetrics(reg)

	m.RecordRequest("executed")
	m.RecordRequest("executed")
	m.RecordRequest("stale")
	m.RecordOperation("open", "OK", 2*time.Millisecond)
	m.RecordLockReleases("restart", 3)
	m.RecordLockReleases("close", 0)
	m.SetSessions(4)
	m.SetFiles(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("executed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("open", "OK")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.lockReleases.WithLabelValues("restart")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.sessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.files))

	count, err := testutil.GatherAndCount(reg, "lockfs_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTransportMetrics(t *testing.T) {
	m := newTransportMetrics(prometheus.NewRegistry())
	m.RecordDroppedDatagram("rate_limited")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues("rate_limited")))
}

func TestNilSafe(t *testing.T) {
	var e *engineMetrics
	var tr *transportMetrics

	assert.NotPanics(t, func() {
		e.RecordRequest("executed")
		e.RecordOperation("read", "OK", time.Millisecond)
		e.RecordLockReleases("close", 1)
		e.SetSessions(1)
		e.SetFiles(1)
		tr.RecordDroppedDatagram("malformed")
	})
}
