// Package lock implements whole-file single-writer/multi-reader locking.
//
// The table owns one File record per (machine, filename). Holders are
// referenced by session key only, so clearing a client's locks never touches
// the session itself and records never dangle.
//
// Table is not safe for concurrent use; the server engine serializes access.
package lock

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/marmos91/lockfs/internal/command"
)

// ErrInconsistent reports a broken lock-table invariant: a session that was
// expected to hold a lock does not, or a lock was granted on top of a
// conflicting one. It indicates a server bug and must not be ignored.
var ErrInconsistent = errors.New("lock table inconsistent")

// State is the lock state of a file.
type State int

const (
	Unlocked State = iota
	ReadLocked
	WriteLocked
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case ReadLocked:
		return "read-locked"
	case WriteLocked:
		return "write-locked"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MakeKey builds the identity key of a file. It doubles as the storage name,
// keeping each machine's files disjoint.
func MakeKey(machine, filename string) string {
	return machine + ":" + filename
}

// File is the lock record of one file.
type File struct {
	Machine   string
	Filename  string
	CreatedAt time.Time

	key         string
	state       State
	writeHolder string
	readHolders map[string]struct{}
}

// Key returns the file's identity key.
func (f *File) Key() string { return f.key }

// State returns the current lock state.
func (f *File) State() State { return f.state }

// WriteHolder returns the session key holding the write lock, or "".
func (f *File) WriteHolder() string { return f.writeHolder }

// ReadHolders returns the session keys holding read locks, sorted.
func (f *File) ReadHolders() []string {
	return slices.Sorted(maps.Keys(f.readHolders))
}

// HeldBy reports whether holder has any lock on the file.
func (f *File) HeldBy(holder string) bool {
	if f.writeHolder == holder {
		return holder != ""
	}
	_, ok := f.readHolders[holder]
	return ok
}

// check verifies the state/holder invariant of a single record.
func (f *File) check() error {
	switch f.state {
	case Unlocked:
		if f.writeHolder != "" || len(f.readHolders) != 0 {
			return fmt.Errorf("%w: %s unlocked with holders", ErrInconsistent, f.key)
		}
	case ReadLocked:
		if f.writeHolder != "" || len(f.readHolders) == 0 {
			return fmt.Errorf("%w: %s read-locked with writer or no readers", ErrInconsistent, f.key)
		}
	case WriteLocked:
		if f.writeHolder == "" || len(f.readHolders) != 0 {
			return fmt.Errorf("%w: %s write-locked with readers or no writer", ErrInconsistent, f.key)
		}
	default:
		return fmt.Errorf("%w: %s has unknown state %d", ErrInconsistent, f.key, f.state)
	}
	return nil
}

// FileInfo is a read-only snapshot of a file record.
type FileInfo struct {
	Key         string   `json:"key" yaml:"key"`
	Machine     string   `json:"machine" yaml:"machine"`
	Filename    string   `json:"filename" yaml:"filename"`
	State       string   `json:"state" yaml:"state"`
	WriteHolder string   `json:"write_holder,omitempty" yaml:"write_holder,omitempty"`
	ReadHolders []string `json:"read_holders,omitempty" yaml:"read_holders,omitempty"`
}

// Table maps file identities to lock records.
type Table struct {
	files map[string]*File
	now   func() time.Time
}

// NewTable creates an empty lock table.
func NewTable() *Table {
	return &Table{
		files: make(map[string]*File),
		now:   time.Now,
	}
}

// Find returns the record for (machine, filename). Absence is not an error.
func (t *Table) Find(machine, filename string) (*File, bool) {
	f, ok := t.files[MakeKey(machine, filename)]
	return f, ok
}

// Create inserts an unlocked record for (machine, filename). If a record
// already exists it is returned unchanged.
func (t *Table) Create(machine, filename string) *File {
	key := MakeKey(machine, filename)
	if f, ok := t.files[key]; ok {
		return f
	}
	f := &File{
		Machine:     machine,
		Filename:    filename,
		CreatedAt:   t.now(),
		key:         key,
		readHolders: make(map[string]struct{}),
	}
	t.files[key] = f
	return f
}

// Compatible reports whether a lock in mode can be granted on f.
//
// An unlocked file accepts any mode. A read-locked file accepts further
// readers only. A write-locked file accepts nothing.
func (t *Table) Compatible(f *File, mode command.Mode) bool {
	switch f.state {
	case Unlocked:
		return true
	case ReadLocked:
		return !mode.Has(command.ModeWrite)
	default:
		return false
	}
}

// Acquire grants holder a lock on f. Any mode that includes write takes the
// write lock; read-only takes a read lock. The caller must have checked
// Compatible first: Acquire does not arbitrate, and granting over a
// conflicting lock returns ErrInconsistent.
func (t *Table) Acquire(f *File, holder string, mode command.Mode) error {
	if !t.Compatible(f, mode) {
		return fmt.Errorf("%w: grant %s on %s while %s", ErrInconsistent, mode, f.key, f.state)
	}
	if mode.Has(command.ModeWrite) {
		f.state = WriteLocked
		f.writeHolder = holder
		return nil
	}
	f.state = ReadLocked
	f.readHolders[holder] = struct{}{}
	return nil
}

// Release drops holder's lock on f. If holder is the writer the file becomes
// unlocked; otherwise holder leaves the reader set and the file becomes
// unlocked once the set is empty. Releasing a lock that is not held returns
// ErrInconsistent.
func (t *Table) Release(f *File, holder string) error {
	if holder != "" && f.writeHolder == holder {
		f.writeHolder = ""
		f.state = Unlocked
		return nil
	}
	if _, ok := f.readHolders[holder]; !ok {
		return fmt.Errorf("%w: %s holds no lock on %s", ErrInconsistent, holder, f.key)
	}
	delete(f.readHolders, holder)
	if len(f.readHolders) == 0 {
		f.state = Unlocked
	}
	return nil
}

// ReleaseAll drops every lock held by holder and returns how many were
// released.
func (t *Table) ReleaseAll(holder string) int {
	released := 0
	for _, f := range t.files {
		if !f.HeldBy(holder) {
			continue
		}
		// HeldBy guarantees Release succeeds.
		_ = t.Release(f, holder)
		released++
	}
	return released
}

// Len returns the number of file records.
func (t *Table) Len() int {
	return len(t.files)
}

// CountByState returns the number of files in each lock state.
func (t *Table) CountByState() map[State]int {
	counts := map[State]int{Unlocked: 0, ReadLocked: 0, WriteLocked: 0}
	for _, f := range t.files {
		counts[f.state]++
	}
	return counts
}

// CheckInvariants verifies every record. It returns the first violation.
func (t *Table) CheckInvariants() error {
	for _, key := range slices.Sorted(maps.Keys(t.files)) {
		if err := t.files[key].check(); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns all records sorted by key.
func (t *Table) Snapshot() []FileInfo {
	out := make([]FileInfo, 0, len(t.files))
	for _, key := range slices.Sorted(maps.Keys(t.files)) {
		f := t.files[key]
		out = append(out, FileInfo{
			Key:         f.key,
			Machine:     f.Machine,
			Filename:    f.Filename,
			State:       f.state.String(),
			WriteHolder: f.writeHolder,
			ReadHolders: f.ReadHolders(),
		})
	}
	return out
}
