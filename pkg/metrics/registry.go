// Package metrics provides Prometheus metrics collection for LockFS.
//
// All metrics are optional: if the registry is not initialized, constructors
// return nil and components skip recording entirely. This lets the server run
// with or without metrics collection enabled.
//
// Usage:
//
//	metrics.InitRegistry()
//	engineMetrics := prometheus.NewEngineMetrics()
//	engine := server.NewEngine(store, server.WithMetrics(engineMetrics))
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry. Subsequent calls
// are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global registry, or nil if metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
