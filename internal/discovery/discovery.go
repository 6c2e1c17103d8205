// Package discovery finds peer endpoints by naming pattern.
//
// There is no central registry. Every installed package publishes its own
// endpoints under its own namespace prefix, and discovery is a full scan of a
// directory snapshot matching on the "."+pattern suffix. The functions here are
// pure: snapshot in, descriptors out.
package discovery

import (
	"cmp"
	"slices"
	"strings"
)

// Kind selects which endpoint list of a package is scanned.
type Kind int

const (
	KindProvider Kind = iota + 1
	KindReceiver
)

func (k Kind) String() string {
	switch k {
	case KindProvider:
		return "provider"
	case KindReceiver:
		return "receiver"
	default:
		return "unknown"
	}
}

// Package is one installed application and the endpoints it exposes.
// Providers are contract authorities; Receivers are event receiver names.
type Package struct {
	Identity  string   `json:"identity"`
	Providers []string `json:"providers,omitempty"`
	Receivers []string `json:"receivers,omitempty"`
}

// Directory is a read-only snapshot of every installed package.
type Directory struct {
	Packages []Package `json:"packages"`
}

// Descriptor addresses one concrete endpoint explicitly.
type Descriptor struct {
	Owner    string `json:"owner"`
	Endpoint string `json:"endpoint"`
}

func (d Descriptor) String() string {
	return d.Owner + "/" + d.Endpoint
}

// Matches reports whether endpoint ends with "."+pattern. A blank pattern
// matches nothing.
func Matches(endpoint, pattern string) bool {
	suffix := normalizePattern(pattern)
	if suffix == "" {
		return false
	}
	return strings.HasSuffix(endpoint, "."+suffix)
}

// Discover returns every endpoint of the given kind matching pattern. The
// result is de-duplicated by (owner, endpoint) and sorted. No match is an
// empty slice, never an error.
func Discover(dir Directory, kind Kind, pattern string) []Descriptor {
	return DiscoverAll(dir, kind, pattern)
}

// DiscoverAll merges one discovery pass per pattern. A descriptor matched by
// several passes is returned once.
func DiscoverAll(dir Directory, kind Kind, patterns ...string) []Descriptor {
	seen := make(map[Descriptor]struct{})
	out := make([]Descriptor, 0)
	for _, pattern := range patterns {
		if normalizePattern(pattern) == "" {
			continue
		}
		for _, pkg := range dir.Packages {
			for _, endpoint := range endpoints(pkg, kind) {
				if !Matches(endpoint, pattern) {
					continue
				}
				d := Descriptor{Owner: pkg.Identity, Endpoint: endpoint}
				if _, dup := seen[d]; dup {
					continue
				}
				seen[d] = struct{}{}
				out = append(out, d)
			}
		}
	}
	slices.SortFunc(out, func(a, b Descriptor) int {
		if c := cmp.Compare(a.Owner, b.Owner); c != 0 {
			return c
		}
		return cmp.Compare(a.Endpoint, b.Endpoint)
	})
	return out
}

// Owners returns the distinct owners of sorted descs.
func Owners(descs []Descriptor) []string {
	out := make([]string, 0, len(descs))
	for _, d := range descs {
		out = append(out, d.Owner)
	}
	return slices.Compact(out)
}

func endpoints(pkg Package, kind Kind) []string {
	switch kind {
	case KindProvider:
		return pkg.Providers
	case KindReceiver:
		return pkg.Receivers
	default:
		return nil
	}
}

func normalizePattern(pattern string) string {
	return strings.TrimLeft(strings.TrimSpace(pattern), ".")
}
