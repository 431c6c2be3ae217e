// Package storage defines the byte-addressable file backend behind the
// dispatcher.
//
// A file is named "<machine>:<filename>", so every machine gets its own
// namespace inside one backend. Handles are short-lived: the dispatcher opens
// one per operation, does a single positioned read or write, and closes it.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by Store implementations.
var (
	// ErrNotFound is returned when opening a missing file without FlagCreate.
	ErrNotFound = errors.New("file not found")

	// ErrStoreClosed is returned when operations are attempted on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrHandleClosed is returned when a closed handle is used.
	ErrHandleClosed = errors.New("handle is closed")

	// ErrNotPermitted is returned when a handle is used in a direction its
	// open flags do not allow.
	ErrNotPermitted = errors.New("operation not permitted by open flags")

	// ErrInvalidOffset is returned for offsets outside [0, MaxOffset].
	ErrInvalidOffset = errors.New("invalid offset")

	// ErrTooLarge is returned when a write would end past MaxOffset.
	ErrTooLarge = errors.New("file size limit exceeded")
)

// MaxOffset is the largest file size any backend accepts. Whole-object
// backends hold a file in one buffer, so it also bounds their memory use.
const MaxOffset int64 = 64 << 20

// Flag controls how a file is opened.
type Flag int

const (
	// FlagRead allows ReadAt on the handle.
	FlagRead Flag = 1 << iota

	// FlagWrite allows WriteAt on the handle.
	FlagWrite

	// FlagCreate creates the file empty if it does not exist. Existing
	// contents are never truncated.
	FlagCreate
)

// Has reports whether all bits of mask are set.
func (f Flag) Has(mask Flag) bool {
	return f&mask == mask
}

// String returns a "|"-separated flag list.
func (f Flag) String() string {
	var parts []string
	if f.Has(FlagRead) {
		parts = append(parts, "read")
	}
	if f.Has(FlagWrite) {
		parts = append(parts, "write")
	}
	if f.Has(FlagCreate) {
		parts = append(parts, "create")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Handle is an open file.
type Handle interface {
	// ReadAt reads up to len(p) bytes starting at off. A read that reaches
	// end of file returns the bytes available and a nil error; reading at or
	// past the end returns 0, nil.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)

	// WriteAt writes p at off, extending the file as needed. A gap between
	// the previous end and off reads back as zero bytes.
	WriteAt(ctx context.Context, p []byte, off int64) (int, error)

	// Close releases the handle and makes written data durable for the
	// backend's definition of durable.
	Close(ctx context.Context) error
}

// Store is a flat namespace of byte files.
type Store interface {
	// Open opens name. Without FlagCreate a missing file returns ErrNotFound.
	Open(ctx context.Context, name string, flags Flag) (Handle, error)

	// Type returns the backend name used in logs and config.
	Type() string

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// FileName builds the storage name of a client file.
func FileName(machine, filename string) string {
	return machine + ":" + filename
}

// ValidateName rejects names no backend can represent.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty file name")
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("file name %q contains a path separator or NUL", name)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("file name %q is reserved", name)
	}
	return nil
}

// CheckAccess validates a positioned operation against the handle's flags.
func CheckAccess(flags, want Flag, off int64) error {
	if !flags.Has(want) {
		return fmt.Errorf("%w: need %s, have %s", ErrNotPermitted, want, flags)
	}
	if off < 0 || off > MaxOffset {
		return fmt.Errorf("%w: %d", ErrInvalidOffset, off)
	}
	return nil
}

// CheckExtent rejects a write of n bytes at off that would end past
// MaxOffset. off must already be in range.
func CheckExtent(off int64, n int) error {
	if int64(n) > MaxOffset-off {
		return fmt.Errorf("%w: %d bytes at %d", ErrTooLarge, n, off)
	}
	return nil
}

// Splice returns data with p written at off, zero-filling any gap. It is the
// read-modify-write step shared by whole-object backends.
func Splice(data, p []byte, off int64) ([]byte, error) {
	if off < 0 || off > MaxOffset {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOffset, off)
	}
	if err := CheckExtent(off, len(p)); err != nil {
		return nil, err
	}
	end := off + int64(len(p))
	if end > int64(len(data)) {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	copy(data[off:], p)
	return data, nil
}

// CopyAt copies the bytes of data starting at off into p and returns the
// count. Offsets at or past the end yield 0.
func CopyAt(data, p []byte, off int64) int {
	if off >= int64(len(data)) {
		return 0
	}
	return copy(p, data[off:])
}
