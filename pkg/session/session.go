// Package session tracks logical clients and the files each one has open.
//
// A client is identified by the machine name and client number it declares
// in every request. The registry never evicts: a session lives for the whole
// process lifetime, which bounds nothing but keeps replay state for any
// client that might retransmit.
//
// Neither Registry nor Session is safe for concurrent use. The server engine
// serializes every request behind one lock, and all access happens inside it.
package session

import (
	"fmt"
	"sort"
	"time"

	"github.com/marmos91/lockfs/internal/command"
	"github.com/marmos91/lockfs/internal/protocol/wire"
)

// MakeKey builds the stable identity key of a client.
func MakeKey(machine string, clientID int32) string {
	return fmt.Sprintf("%s/%d", machine, clientID)
}

// OpenFile is a session's view of one open file.
type OpenFile struct {
	// FileKey identifies the file record in the lock table.
	FileKey string `json:"file_key" yaml:"file_key"`

	// Filename is the client-visible name.
	Filename string `json:"filename" yaml:"filename"`

	// Mode is the access mode granted at open.
	Mode command.Mode `json:"mode" yaml:"mode"`

	// Cursor is the byte offset used by the next read or write.
	Cursor int64 `json:"cursor" yaml:"cursor"`
}

// Session is the server-side record of one logical client.
type Session struct {
	Machine  string
	ClientID int32

	// LastRequest is the sequence number of the most recently completed request.
	LastRequest int32

	// LastIncarnation is the incarnation the client last declared.
	LastIncarnation int32

	// Cached is the response of the last completed request, replayed on
	// retransmission. Nil means the request completed without a reply.
	Cached *wire.Response

	CreatedAt time.Time
	LastSeen  time.Time

	key       string
	openFiles []*OpenFile
}

// Key returns the session's identity key.
func (s *Session) Key() string {
	return s.key
}

// Lookup returns the open state for fileKey, or nil.
func (s *Session) Lookup(fileKey string) *OpenFile {
	for _, of := range s.openFiles {
		if of.FileKey == fileKey {
			return of
		}
	}
	return nil
}

// HasOpen reports whether the session has fileKey open in a mode that
// intersects mask.
func (s *Session) HasOpen(fileKey string, mask command.Mode) bool {
	of := s.Lookup(fileKey)
	return of != nil && of.Mode.Has(mask)
}

// AddOpen records a newly opened file with the cursor at 0. It returns an
// error if the session already has the file open.
func (s *Session) AddOpen(fileKey, filename string, mode command.Mode) (*OpenFile, error) {
	if s.Lookup(fileKey) != nil {
		return nil, fmt.Errorf("session %s already has %s open", s.key, fileKey)
	}
	of := &OpenFile{FileKey: fileKey, Filename: filename, Mode: mode}
	s.openFiles = append(s.openFiles, of)
	return of, nil
}

// RemoveOpen drops the open state for fileKey. It reports whether one existed.
func (s *Session) RemoveOpen(fileKey string) bool {
	for i, of := range s.openFiles {
		if of.FileKey == fileKey {
			s.openFiles = append(s.openFiles[:i], s.openFiles[i+1:]...)
			return true
		}
	}
	return false
}

// ClearOpen drops every open state and returns what was dropped.
func (s *Session) ClearOpen() []*OpenFile {
	dropped := s.openFiles
	s.openFiles = nil
	return dropped
}

// OpenFiles returns a copy of the session's open files in open order.
func (s *Session) OpenFiles() []OpenFile {
	out := make([]OpenFile, len(s.openFiles))
	for i, of := range s.openFiles {
		out[i] = *of
	}
	return out
}

// SessionInfo is a read-only snapshot of a session.
type SessionInfo struct {
	Key             string     `json:"key" yaml:"key"`
	Machine         string     `json:"machine" yaml:"machine"`
	ClientID        int32      `json:"client_id" yaml:"client_id"`
	LastRequest     int32      `json:"last_request" yaml:"last_request"`
	LastIncarnation int32      `json:"last_incarnation" yaml:"last_incarnation"`
	HasCached       bool       `json:"has_cached_response" yaml:"has_cached_response"`
	OpenFiles       []OpenFile `json:"open_files" yaml:"open_files"`
	CreatedAt       time.Time  `json:"created_at" yaml:"created_at"`
	LastSeen        time.Time  `json:"last_seen" yaml:"last_seen"`
}

// Registry maps client identities to sessions.
type Registry struct {
	sessions map[string]*Session
	now      func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Resolve returns the session for (machine, clientID), creating it if this is
// the first request from that identity. A new session starts with
// LastRequest = initialSeq-1 so that the triggering request counts as new.
// The second return value reports whether the session was created.
func (r *Registry) Resolve(machine string, clientID, initialSeq, initialIncarnation int32) (*Session, bool) {
	key := MakeKey(machine, clientID)
	now := r.now()

	if s, ok := r.sessions[key]; ok {
		s.LastSeen = now
		return s, false
	}

	s := &Session{
		Machine:         machine,
		ClientID:        clientID,
		LastRequest:     initialSeq - 1,
		LastIncarnation: initialIncarnation,
		CreatedAt:       now,
		LastSeen:        now,
		key:             key,
	}
	r.sessions[key] = s
	return s, true
}

// Get returns the session for (machine, clientID) without creating it.
func (r *Registry) Get(machine string, clientID int32) (*Session, bool) {
	s, ok := r.sessions[MakeKey(machine, clientID)]
	return s, ok
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	return len(r.sessions)
}

// Snapshot returns all sessions sorted by key.
func (r *Registry) Snapshot() []SessionInfo {
	out := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, SessionInfo{
			Key:             s.key,
			Machine:         s.Machine,
			ClientID:        s.ClientID,
			LastRequest:     s.LastRequest,
			LastIncarnation: s.LastIncarnation,
			HasCached:       s.Cached != nil,
			OpenFiles:       s.OpenFiles(),
			CreatedAt:       s.CreatedAt,
			LastSeen:        s.LastSeen,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
