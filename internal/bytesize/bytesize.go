// Package bytesize provides a byte-count type that unmarshals from
// human-readable strings in configuration files.
//
// Accepted forms: plain integers ("8388608"), decimal units ("8MB", "1GB"),
// and binary units ("8Mi", "1Gi", "64MiB"). Decimal units multiply by 1000,
// binary units by 1024.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteSize is a size in bytes. It implements encoding.TextUnmarshaler and
// encoding.TextMarshaler so it can appear directly in config structs decoded
// by mapstructure and serialized back to YAML.
type ByteSize uint64

// Byte size constants.
const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
	TiB ByteSize = 1024 * GiB
)

// suffixes in longest-match-first order so "mib" wins over "mi" and "m".
var suffixes = []struct {
	text string
	mult ByteSize
}{
	{"kib", KiB}, {"mib", MiB}, {"gib", GiB}, {"tib", TiB},
	{"ki", KiB}, {"mi", MiB}, {"gi", GiB}, {"ti", TiB},
	{"kb", KB}, {"mb", MB}, {"gb", GB}, {"tb", TB},
	{"k", KB}, {"m", MB}, {"g", GB}, {"t", TB},
	{"b", B},
}

// Parse converts a human-readable byte size string to a ByteSize.
func Parse(s string) (ByteSize, error) {
	trimmed := strings.TrimSpace(strings.ToLower(s))
	if trimmed == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	numPart := trimmed
	mult := B
	for _, sfx := range suffixes {
		if strings.HasSuffix(trimmed, sfx.text) {
			numPart = strings.TrimSpace(strings.TrimSuffix(trimmed, sfx.text))
			mult = sfx.mult
			break
		}
	}

	if numPart == "" {
		return 0, fmt.Errorf("invalid byte size %q: missing number", s)
	}

	if strings.Contains(numPart, ".") {
		f, err := strconv.ParseFloat(numPart, 64)
		if err != nil || f < 0 {
			return 0, fmt.Errorf("invalid byte size %q", s)
		}
		return ByteSize(f * float64(mult)), nil
	}

	n, err := strconv.ParseUint(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}
	return ByteSize(n) * mult, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := Parse(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// String renders the size with the largest binary unit that divides it
// cleanly enough to stay readable.
func (b ByteSize) String() string {
	switch {
	case b >= TiB:
		return trimZeros(float64(b)/float64(TiB)) + "TiB"
	case b >= GiB:
		return trimZeros(float64(b)/float64(GiB)) + "GiB"
	case b >= MiB:
		return trimZeros(float64(b)/float64(MiB)) + "MiB"
	case b >= KiB:
		return trimZeros(float64(b)/float64(KiB)) + "KiB"
	default:
		return strconv.FormatUint(uint64(b), 10) + "B"
	}
}

func trimZeros(f float64) string {
	s := strconv.FormatFloat(f, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

// Uint64 returns the size as a uint64.
func (b ByteSize) Uint64() uint64 {
	return uint64(b)
}

// Int64 returns the size as an int64. Overflows for sizes above 8EiB,
// which no configuration should reach.
func (b ByteSize) Int64() int64 {
	return int64(b)
}
