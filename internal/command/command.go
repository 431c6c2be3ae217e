// Package command parses the operation text of a request into a typed command.
//
// Grammar (space separated):
//
//	open  <filename> <read|write|readwrite>
//	close <filename>
//	read  <filename> <count>
//	write <filename> <data...>
//	lseek <filename> <offset>
//
// For write, data is the remainder of the line after the filename, so it may
// contain spaces.
package command

import (
	"fmt"
	"strconv"
	"strings"

	lfserrors "github.com/marmos91/lockfs/pkg/errors"
)

// Mode is the access mode requested by open.
type Mode uint8

const (
	ModeRead Mode = 1 << iota
	ModeWrite

	ModeReadWrite = ModeRead | ModeWrite
)

// ParseMode parses an open mode literal.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "read":
		return ModeRead, true
	case "write":
		return ModeWrite, true
	case "readwrite":
		return ModeReadWrite, true
	default:
		return 0, false
	}
}

// String returns the wire literal for m.
func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeReadWrite:
		return "readwrite"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	if string(text) == "none" {
		*m = 0
		return nil
	}
	mode, ok := ParseMode(string(text))
	if !ok {
		return fmt.Errorf("invalid mode %q", text)
	}
	*m = mode
	return nil
}

// Has reports whether m grants any of the bits in mask.
func (m Mode) Has(mask Mode) bool {
	return m&mask != 0
}

// Operation names.
const (
	OpOpen  = "open"
	OpClose = "close"
	OpRead  = "read"
	OpWrite = "write"
	OpSeek  = "lseek"
)

// Command is one of Open, Close, Read, Write or Seek.
type Command interface {
	// Name returns the operation name.
	Name() string
	// File returns the filename the command targets.
	File() string
}

// Open requests a file be opened with the given mode.
type Open struct {
	Filename string
	Mode     Mode
}

// Close releases a file previously opened.
type Close struct {
	Filename string
}

// Read reads up to Count bytes at the session's cursor.
type Read struct {
	Filename string
	Count    int
}

// Write writes Data at the session's cursor.
type Write struct {
	Filename string
	Data     []byte
}

// Seek moves the session's cursor to Offset.
type Seek struct {
	Filename string
	Offset   int64
}

func (c Open) Name() string  { return OpOpen }
func (c Close) Name() string { return OpClose }
func (c Read) Name() string  { return OpRead }
func (c Write) Name() string { return OpWrite }
func (c Seek) Name() string  { return OpSeek }

func (c Open) File() string  { return c.Filename }
func (c Close) File() string { return c.Filename }
func (c Read) File() string  { return c.Filename }
func (c Write) File() string { return c.Filename }
func (c Seek) File() string  { return c.Filename }

// OperationName returns the first word of text, or "" if text is blank.
func OperationName(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Parse converts operation text into a Command. Failures are returned as
// *errors.StatusError carrying a protocol status code.
func Parse(text string) (Command, error) {
	name, rest := cut(strings.TrimLeft(text, " \t"))
	if name == "" {
		return nil, lfserrors.NewMalformedError("empty operation")
	}

	switch name {
	case OpOpen:
		args := strings.Fields(rest)
		if len(args) != 2 {
			return nil, lfserrors.NewMalformedError("usage: open <filename> <read|write|readwrite>")
		}
		mode, ok := ParseMode(args[1])
		if !ok {
			return nil, lfserrors.NewInvalidModeError(args[1])
		}
		return Open{Filename: args[0], Mode: mode}, nil

	case OpClose:
		args := strings.Fields(rest)
		if len(args) != 1 {
			return nil, lfserrors.NewMalformedError("usage: close <filename>")
		}
		return Close{Filename: args[0]}, nil

	case OpRead:
		args := strings.Fields(rest)
		if len(args) != 2 {
			return nil, lfserrors.NewMalformedError("usage: read <filename> <count>")
		}
		count, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, lfserrors.NewMalformedError("count is not a number")
		}
		return Read{Filename: args[0], Count: count}, nil

	case OpWrite:
		filename, data := cut(strings.TrimLeft(rest, " \t"))
		if filename == "" || data == "" {
			return nil, lfserrors.NewMalformedError("usage: write <filename> <data>")
		}
		return Write{Filename: filename, Data: []byte(data)}, nil

	case OpSeek:
		args := strings.Fields(rest)
		if len(args) != 2 {
			return nil, lfserrors.NewMalformedError("usage: lseek <filename> <offset>")
		}
		offset, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return nil, lfserrors.NewMalformedError("offset is not a number")
		}
		return Seek{Filename: args[0], Offset: offset}, nil

	default:
		return nil, lfserrors.NewUnknownOperationError(name)
	}
}

// Format renders cmd back into operation text.
func Format(cmd Command) string {
	switch c := cmd.(type) {
	case Open:
		return OpOpen + " " + c.Filename + " " + c.Mode.String()
	case Close:
		return OpClose + " " + c.Filename
	case Read:
		return OpRead + " " + c.Filename + " " + strconv.Itoa(c.Count)
	case Write:
		return OpWrite + " " + c.Filename + " " + string(c.Data)
	case Seek:
		return OpSeek + " " + c.Filename + " " + strconv.FormatInt(c.Offset, 10)
	default:
		return ""
	}
}

// cut splits s at the first space or tab.
func cut(s string) (head, tail string) {
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+1:]
}
