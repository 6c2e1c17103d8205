// Package version owns the dotted-integer version value used by every contract.
//
// A Version is immutable once parsed. The zero Version is "absent": it is what a
// caller that never signaled a version sends, and it ranks below every parsed
// version.
package version

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

var ErrMalformedVersion = errors.New("version: malformed version")

// Version is an ordered sequence of non-negative integers.
type Version struct {
	parts []uint64
}

// Parse splits s on "." and parses every component as a base-10 non-negative
// integer. Surrounding whitespace is malformed; input paths trim before parsing.
func Parse(s string) (Version, error) {
	if s == "" {
		return Version{}, fmt.Errorf("%w: empty string", ErrMalformedVersion)
	}
	fields := strings.Split(s, ".")
	parts := make([]uint64, 0, len(fields))
	for _, field := range fields {
		if field == "" || field[0] == '+' {
			return Version{}, fmt.Errorf("%w: %q", ErrMalformedVersion, s)
		}
		n, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q", ErrMalformedVersion, s)
		}
		parts = append(parts, n)
	}
	return Version{parts: parts}, nil
}

// MustParse is Parse for compile-time constants. It panics on malformed input.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FromParts builds a Version from explicit components.
func FromParts(parts ...uint64) Version {
	if len(parts) == 0 {
		return Version{}
	}
	return Version{parts: slices.Clone(parts)}
}

// IsZero reports whether v is absent.
func (v Version) IsZero() bool {
	return len(v.parts) == 0
}

// Parts returns a copy of the parsed components.
func (v Version) Parts() []uint64 {
	return slices.Clone(v.parts)
}

// String renders the canonical dotted form. Absent versions render as "".
// Leading zeros are not preserved: "2.06" renders as "2.6".
func (v Version) String() string {
	if v.IsZero() {
		return ""
	}
	var b strings.Builder
	for i, p := range v.parts {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatUint(p, 10))
	}
	return b.String()
}

// Compare returns -1, 0 or 1. An absent other always ranks below v, so
// Compare returns 1 whenever other is absent and v is present.
func (v Version) Compare(other Version) int {
	if other.IsZero() {
		if v.IsZero() {
			return 0
		}
		return 1
	}
	if v.IsZero() {
		return -1
	}
	n := max(len(v.parts), len(other.parts))
	for i := range n {
		a := component(v.parts, i)
		b := component(other.parts, i)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}
	return 0
}

// Equal is true only when other is present and compares equal to v.
func (v Version) Equal(other Version) bool {
	if other.IsZero() {
		return false
	}
	return v.Compare(other) == 0
}

// Less reports v < other.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

func component(parts []uint64, i int) uint64 {
	if i < len(parts) {
		return parts[i]
	}
	return 0
}

// Compare is the package-level form of Version.Compare, usable with slices.SortFunc.
func Compare(a, b Version) int {
	return a.Compare(b)
}

// Sort orders versions ascending in place.
func Sort(vs []Version) {
	slices.SortStableFunc(vs, Compare)
}

// ParseAll parses every string, failing on the first malformed entry.
func ParseAll(raw []string) ([]Version, error) {
	out := make([]Version, 0, len(raw))
	for _, s := range raw {
		v, err := Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty text decodes to the
// absent version.
func (v *Version) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*v = Version{}
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
