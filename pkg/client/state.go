package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// FilePermissions for state files (read/write for owner only).
	FilePermissions = 0600
	// DirPermissions for the state directory.
	DirPermissions = 0700
)

// State is what a client must remember across invocations: the incarnation
// it announces and the last sequence number it sent.
type State struct {
	Incarnation  int32 `yaml:"incarnation"`
	LastSequence int32 `yaml:"last_sequence"`
}

// StateStore keeps one State file per client identity under a directory.
type StateStore struct {
	dir string
}

// NewStateStore returns a store rooted at dir. The directory is created on
// first save.
func NewStateStore(dir string) *StateStore {
	return &StateStore{dir: dir}
}

// DefaultStateDir returns $XDG_STATE_HOME/lockfsctl or ~/.local/state/lockfsctl.
func DefaultStateDir() string {
	if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
		return filepath.Join(xdgState, "lockfsctl")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".lockfsctl")
	}
	return filepath.Join(home, ".local", "state", "lockfsctl")
}

// Path returns the state file for a client identity.
func (s *StateStore) Path(machine string, clientID int32) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%d.yaml", machine, clientID))
}

// Load reads the state for a client. A missing file yields the zero State.
func (s *StateStore) Load(machine string, clientID int32) (State, error) {
	var st State
	data, err := os.ReadFile(s.Path(machine, clientID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return st, fmt.Errorf("cannot read client state: %w", err)
	}
	if err := yaml.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("cannot parse client state %s: %w", s.Path(machine, clientID), err)
	}
	return st, nil
}

// Save writes the state for a client.
func (s *StateStore) Save(machine string, clientID int32, st State) error {
	if err := os.MkdirAll(s.dir, DirPermissions); err != nil {
		return fmt.Errorf("cannot create state directory: %w", err)
	}
	data, err := yaml.Marshal(st)
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path(machine, clientID), data, FilePermissions)
}

// BumpIncarnation increments and persists the incarnation, returning the
// updated state.
func (s *StateStore) BumpIncarnation(machine string, clientID int32) (State, error) {
	st, err := s.Load(machine, clientID)
	if err != nil {
		return st, err
	}
	st.Incarnation++
	if err := s.Save(machine, clientID, st); err != nil {
		return st, err
	}
	return st, nil
}
