// Package bytesize parses and prints byte counts such as "64MiB" or "1.5G".
package bytesize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ByteSize is a count of bytes. It decodes from plain numbers or from a
// number followed by a decimal (K, M, G, T) or binary (Ki, Mi, Gi, Ti) unit,
// optionally suffixed with B. Units are case-insensitive.
type ByteSize uint64

const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB

	KiB ByteSize = 1 << 10
	MiB ByteSize = 1 << 20
	GiB ByteSize = 1 << 30
	TiB ByteSize = 1 << 40
)

type unit struct {
	name string
	size ByteSize
}

// binaryUnits is ordered from largest to smallest for String.
var binaryUnits = []unit{{"TiB", TiB}, {"GiB", GiB}, {"MiB", MiB}, {"KiB", KiB}}

// decimalUnits is ordered from largest to smallest for String.
var decimalUnits = []unit{{"TB", TB}, {"GB", GB}, {"MB", MB}, {"KB", KB}}

func lookupUnit(suffix string) (ByteSize, bool) {
	s := strings.ToLower(suffix)
	if s != "b" {
		s = strings.TrimSuffix(s, "b")
	}
	switch s {
	case "", "b":
		return B, true
	case "k":
		return KB, true
	case "m":
		return MB, true
	case "g":
		return GB, true
	case "t":
		return TB, true
	case "ki":
		return KiB, true
	case "mi":
		return MiB, true
	case "gi":
		return GiB, true
	case "ti":
		return TiB, true
	}
	return 0, false
}

// Parse reads a byte count such as "1024", "16Mi", "64MiB" or "1.5G".
func Parse(s string) (ByteSize, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	split := strings.IndexFunc(trimmed, func(r rune) bool {
		return r != '.' && !unicode.IsDigit(r)
	})
	number, suffix := trimmed, ""
	if split >= 0 {
		number, suffix = trimmed[:split], strings.TrimSpace(trimmed[split:])
	}
	if number == "" {
		return 0, fmt.Errorf("invalid byte size %q: missing number", s)
	}

	mult, ok := lookupUnit(suffix)
	if !ok {
		return 0, fmt.Errorf("invalid byte size %q: unknown unit %q", s, suffix)
	}

	if !strings.Contains(number, ".") {
		n, err := strconv.ParseUint(number, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
		}
		if n > math.MaxUint64/uint64(mult) {
			return 0, fmt.Errorf("invalid byte size %q: overflows uint64", s)
		}
		return ByteSize(n) * mult, nil
	}

	f, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	v := f * float64(mult)
	if v >= math.MaxUint64 {
		return 0, fmt.Errorf("invalid byte size %q: overflows uint64", s)
	}
	return ByteSize(v), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// MarshalText implements encoding.TextMarshaler. The output parses back to
// the same value.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// String returns the largest unit that divides b exactly, preferring binary
// units, or a plain byte count.
func (b ByteSize) String() string {
	if b == 0 {
		return "0B"
	}
	for _, units := range [][]unit{binaryUnits, decimalUnits} {
		for _, u := range units {
			if b >= u.size && b%u.size == 0 {
				return strconv.FormatUint(uint64(b/u.size), 10) + u.name
			}
		}
	}
	return strconv.FormatUint(uint64(b), 10) + "B"
}

// Int64 returns b as an int64, saturating at math.MaxInt64.
func (b ByteSize) Int64() int64 {
	if uint64(b) > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(b)
}
