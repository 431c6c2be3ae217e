package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/marmos91/lockfs/internal/telemetry"
	"github.com/marmos91/lockfs/pkg/lock"
	"github.com/marmos91/lockfs/pkg/server"
	"github.com/marmos91/lockfs/pkg/session"
)

// Engine is the read-only view of the server state the API exposes.
type Engine interface {
	Sessions() []session.SessionInfo
	Files() []lock.FileInfo
	Stats() server.Stats
	HealthCheck(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	engine Engine
}

// NewHealthHandler creates a new health handler. engine may be nil, in which
// case readiness reports unhealthy.
func NewHealthHandler(engine Engine) *HealthHandler {
	return &HealthHandler{engine: engine}
}

// Liveness handles GET /health. It succeeds while the process responds.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": telemetry.ServiceName,
	}))
}

// StoreHealth is the readiness payload.
type StoreHealth struct {
	Type    string `json:"type"`
	Latency string `json:"latency"`
	Error   string `json:"error,omitempty"`
}

// Readiness handles GET /health/ready by probing the storage backend.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("engine not initialized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	start := time.Now()
	err := h.engine.HealthCheck(ctx)
	health := StoreHealth{
		Type:    h.engine.Stats().StoreType,
		Latency: time.Since(start).String(),
	}
	if err != nil {
		health.Error = err.Error()
		resp := unhealthyResponse(err.Error())
		resp.Data = health
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, healthyResponse(health))
}
