package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/lockfs/internal/protocol/wire"
	"github.com/marmos91/lockfs/pkg/lock"
	"github.com/marmos91/lockfs/pkg/server"
	"github.com/marmos91/lockfs/pkg/session"
	"github.com/marmos91/lockfs/pkg/storage/memory"
)

func newPopulatedEngine(t *testing.T) *server.Engine {
	t.Helper()
	e := server.NewEngine(memory.New())
	for _, r := range []*wire.Request{
		{Machine: "alpha", ClientID: 1, Sequence: 1, Operation: "open notes write"},
		{Machine: "alpha", ClientID: 2, Sequence: 1, Operation: "open other write"},
		{Machine: "alpha", ClientID: 2, Sequence: 2, Operation: "close other"},
		{Machine: "beta", ClientID: 1, Sequence: 1, Operation: "open notes write"},
	} {
		_, err := e.Handle(context.Background(), r)
		require.NoError(t, err)
	}
	return e
}

// envelope decodes a Response whose Data is of type T.
type envelope[T any] struct {
	Status string `json:"status"`
	Data   T      `json:"data"`
}

func get[T any](t *testing.T, h http.Handler, path string) (int, T) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", path, nil))

	var env envelope[T]
	if w.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
		assert.Equal(t, "ok", env.Status)
	}
	return w.Code, env.Data
}

func newStateRouter(e Engine) http.Handler {
	h := NewStateHandler(e)
	r := chi.NewRouter()
	r.Get("/sessions", h.ListSessions)
	r.Get("/sessions/{machine}/{clientID}", h.GetSession)
	r.Get("/files", h.ListFiles)
	r.Get("/stats", h.Stats)
	return r
}

func TestListSessions(t *testing.T) {
	r := newStateRouter(newPopulatedEngine(t))

	code, sessions := get[[]session.SessionInfo](t, r, "/sessions")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, sessions, 3)
	assert.Equal(t, "alpha/1", sessions[0].Key)
	require.Len(t, sessions[0].OpenFiles, 1)
	assert.Equal(t, "notes", sessions[0].OpenFiles[0].Filename)

	_, filtered := get[[]session.SessionInfo](t, r, "/sessions?machine=beta")
	require.Len(t, filtered, 1)
	assert.Equal(t, "beta/1", filtered[0].Key)
}

func TestGetSession(t *testing.T) {
	r := newStateRouter(newPopulatedEngine(t))

	code, s := get[session.SessionInfo](t, r, "/sessions/alpha/2")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, s.LastRequest)
	assert.Empty(t, s.OpenFiles)

	code, _ = get[session.SessionInfo](t, r, "/sessions/alpha/9")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = get[session.SessionInfo](t, r, "/sessions/alpha/x")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestListFiles(t *testing.T) {
	r := newStateRouter(newPopulatedEngine(t))

	code, files := get[[]lock.FileInfo](t, r, "/files")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, files, 3)
	assert.Equal(t, "alpha:notes", files[0].Key)
	assert.Equal(t, "alpha/1", files[0].WriteHolder)

	_, unlocked := get[[]lock.FileInfo](t, r, "/files?state=unlocked")
	require.Len(t, unlocked, 1)
	assert.Equal(t, "other", unlocked[0].Filename)
}

func TestStats(t *testing.T) {
	r := newStateRouter(newPopulatedEngine(t))

	code, stats := get[server.Stats](t, r, "/stats")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 3, stats.Sessions)
	assert.Equal(t, 3, stats.Files)
	assert.EqualValues(t, 4, stats.Outcomes["executed"])
	assert.Equal(t, 2, stats.LockStates["write-locked"])
}
