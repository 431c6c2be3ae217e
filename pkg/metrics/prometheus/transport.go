package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/lockfs/pkg/metrics"
)

// transportMetrics is the Prometheus implementation of metrics.TransportMetrics.
type transportMetrics struct {
	dropped *prometheus.CounterVec
}

// NewTransportMetrics creates transport metrics on the global registry.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewTransportMetrics() metrics.TransportMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return newTransportMetrics(metrics.GetRegistry())
}

func newTransportMetrics(reg prometheus.Registerer) *transportMetrics {
	return &transportMetrics{
		dropped: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lockfs_datagrams_dropped_total",
				Help: "Total number of datagrams discarded before reaching the engine",
			},
			[]string{"reason"}, // "malformed", "rate_limited", "encode_error"
		),
	}
}

func (m *transportMetrics) RecordDroppedDatagram(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}
