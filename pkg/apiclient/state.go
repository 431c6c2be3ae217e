package apiclient

import (
	"fmt"
	"net/url"

	"github.com/marmos91/lockfs/pkg/lock"
	"github.com/marmos91/lockfs/pkg/server"
	"github.com/marmos91/lockfs/pkg/session"
)

// Health is the liveness payload.
type Health struct {
	Service string `json:"service"`
}

// StoreHealth is the readiness payload.
type StoreHealth struct {
	Type    string `json:"type"`
	Latency string `json:"latency"`
	Error   string `json:"error,omitempty"`
}

// Health checks that the server responds.
func (c *Client) Health() (*Health, error) {
	return getResource[Health](c, "/health")
}

// Ready probes the storage backend. An unhealthy backend is an *APIError
// with IsUnavailable true.
func (c *Client) Ready() (*StoreHealth, error) {
	return getResource[StoreHealth](c, "/health/ready")
}

// Sessions lists sessions, optionally restricted to one machine.
func (c *Client) Sessions(machine string) ([]session.SessionInfo, error) {
	path := "/api/v1/sessions"
	if machine != "" {
		path += "?machine=" + url.QueryEscape(machine)
	}
	return listResources[session.SessionInfo](c, path)
}

// Session fetches one session.
func (c *Client) Session(machine string, clientID int32) (*session.SessionInfo, error) {
	return getResource[session.SessionInfo](c, fmt.Sprintf("/api/v1/sessions/%s/%d", url.PathEscape(machine), clientID))
}

// Files lists file records, optionally restricted to one lock state.
func (c *Client) Files(state string) ([]lock.FileInfo, error) {
	path := "/api/v1/files"
	if state != "" {
		path += "?state=" + url.QueryEscape(state)
	}
	return listResources[lock.FileInfo](c, path)
}

// Stats fetches server counters.
func (c *Client) Stats() (*server.Stats, error) {
	return getResource[server.Stats](c, "/api/v1/stats")
}
