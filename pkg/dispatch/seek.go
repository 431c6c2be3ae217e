package dispatch

import (
	"fmt"
	"strings"

	"github.com/marmos91/lockfs/internal/command"
)

// SeekPolicy decides which open modes permit lseek.
type SeekPolicy int

const (
	// SeekRequiresWrite allows lseek only on files opened with write access.
	SeekRequiresWrite SeekPolicy = iota

	// SeekRequiresReadOrWrite allows lseek on any open file.
	SeekRequiresReadOrWrite
)

// ParseSeekPolicy parses a config value. The empty string selects the default.
func ParseSeekPolicy(s string) (SeekPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "write":
		return SeekRequiresWrite, nil
	case "read_or_write", "any":
		return SeekRequiresReadOrWrite, nil
	default:
		return 0, fmt.Errorf("unknown seek policy %q (want write or read_or_write)", s)
	}
}

// String returns the config literal.
func (p SeekPolicy) String() string {
	if p == SeekRequiresReadOrWrite {
		return "read_or_write"
	}
	return "write"
}

// Mask returns the mode bits an open file needs for lseek.
func (p SeekPolicy) Mask() command.Mode {
	if p == SeekRequiresReadOrWrite {
		return command.ModeReadWrite
	}
	return command.ModeWrite
}
