package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/lockfs/pkg/lock"
	"github.com/marmos91/lockfs/pkg/session"
)

// StateHandler serves snapshots of sessions, files and counters.
type StateHandler struct {
	engine Engine
}

// NewStateHandler creates a state handler.
func NewStateHandler(engine Engine) *StateHandler {
	return &StateHandler{engine: engine}
}

// ListSessions handles GET /api/v1/sessions. The optional machine query
// parameter filters by machine.
func (h *StateHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.engine.Sessions()
	if machine := r.URL.Query().Get("machine"); machine != "" {
		filtered := make([]session.SessionInfo, 0, len(sessions))
		for _, s := range sessions {
			if s.Machine == machine {
				filtered = append(filtered, s)
			}
		}
		sessions = filtered
	}
	writeJSON(w, http.StatusOK, okResponse(sessions))
}

// GetSession handles GET /api/v1/sessions/{machine}/{clientID}.
func (h *StateHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	machine := chi.URLParam(r, "machine")
	id, err := strconv.ParseInt(chi.URLParam(r, "clientID"), 10, 32)
	if err != nil {
		BadRequest(w, "client id must be a 32-bit integer")
		return
	}

	key := session.MakeKey(machine, int32(id))
	for _, s := range h.engine.Sessions() {
		if s.Key == key {
			writeJSON(w, http.StatusOK, okResponse(s))
			return
		}
	}
	NotFound(w, "session "+key+" not found")
}

// ListFiles handles GET /api/v1/files. The optional state query parameter
// filters by lock state.
func (h *StateHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files := h.engine.Files()
	if state := r.URL.Query().Get("state"); state != "" {
		filtered := make([]lock.FileInfo, 0, len(files))
		for _, f := range files {
			if f.State == state {
				filtered = append(filtered, f)
			}
		}
		files = filtered
	}
	writeJSON(w, http.StatusOK, okResponse(files))
}

// Stats handles GET /api/v1/stats.
func (h *StateHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, okResponse(h.engine.Stats()))
}
