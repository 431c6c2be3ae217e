package config

import (
	"github.com/marmos91/lockfs/pkg/metrics"
	promMetrics "github.com/marmos91/lockfs/pkg/metrics/prometheus"
)

// MetricsResult holds the metrics server and collectors built from config.
// Every field is nil when metrics are disabled.
type MetricsResult struct {
	Server    *metrics.Server
	Engine    metrics.EngineMetrics
	Transport metrics.TransportMetrics
}

// InitializeMetrics creates the registry, the collectors and the HTTP
// server when metrics are enabled. Call it once per process.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server:    metrics.NewServer(metrics.ServerConfig{Port: cfg.Metrics.Port}),
		Engine:    promMetrics.NewEngineMetrics(),
		Transport: promMetrics.NewTransportMetrics(),
	}
}
