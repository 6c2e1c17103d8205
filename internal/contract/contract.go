// Package contract describes a versioned data contract and owns version
// negotiation.
//
// A Contract names its authority, the floor version assumed for callers that
// never signal one, and per method the set of versions it implements. Each
// implemented version is a Variant: the handler that invokes the data source
// and shapes the payload for exactly that version.
package contract

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/danmuck/opencab/internal/protocol"
	"github.com/danmuck/opencab/internal/version"
)

var (
	ErrInvalidContract = errors.New("contract: invalid definition")
	ErrNoSupported     = errors.New("contract: method has no supported versions")
)

// Handler produces the payload for one negotiated version. An empty payload or
// an error wrapping protocol.ErrDataUnavailable means the data source had
// nothing to return.
type Handler func(ctx context.Context, extras protocol.Bundle) (protocol.Bundle, error)

// Variant is one version's implementation of a method.
type Variant struct {
	Version version.Version
	Handle  Handler
}

type Method struct {
	Name     string
	Variants []Variant
}

// Contract is the full definition served under one authority.
type Contract struct {
	Name      string
	Authority string
	Floor     version.Version
	Methods   []Method
}

// Validate checks required fields and that no method declares a version twice.
func Validate(c Contract) error {
	if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Authority) == "" {
		return fmt.Errorf("%w: name and authority are required", ErrInvalidContract)
	}
	if c.Floor.IsZero() {
		return fmt.Errorf("%w: %s has no floor version", ErrInvalidContract, c.Name)
	}
	names := make(map[string]struct{}, len(c.Methods))
	for _, m := range c.Methods {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("%w: %s has an unnamed method", ErrInvalidContract, c.Name)
		}
		if _, dup := names[m.Name]; dup {
			return fmt.Errorf("%w: %s declares method %s twice", ErrInvalidContract, c.Name, m.Name)
		}
		names[m.Name] = struct{}{}
		if len(m.Variants) == 0 {
			return fmt.Errorf("%w: %s.%s", ErrNoSupported, c.Name, m.Name)
		}
		seen := make([]version.Version, 0, len(m.Variants))
		for _, v := range m.Variants {
			if v.Version.IsZero() || v.Handle == nil {
				return fmt.Errorf("%w: %s.%s has an incomplete variant", ErrInvalidContract, c.Name, m.Name)
			}
			for _, prior := range seen {
				if prior.Equal(v.Version) {
					return fmt.Errorf("%w: %s.%s declares %s twice", ErrInvalidContract, c.Name, m.Name, v.Version)
				}
			}
			seen = append(seen, v.Version)
		}
	}
	return nil
}

// Method looks up a method by name.
func (c Contract) Method(name string) (Method, bool) {
	for _, m := range c.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return Method{}, false
}

// MethodNames returns the method names in declaration order.
func (c Contract) MethodNames() []string {
	out := make([]string, 0, len(c.Methods))
	for _, m := range c.Methods {
		out = append(out, m.Name)
	}
	return out
}

// Supported returns the implemented versions in ascending order.
func (m Method) Supported() []version.Version {
	out := make([]version.Version, 0, len(m.Variants))
	for _, v := range m.Variants {
		out = append(out, v.Version)
	}
	version.Sort(out)
	return out
}

// Variant returns the handler registered for exactly v.
func (m Method) Variant(v version.Version) (Variant, bool) {
	i := slices.IndexFunc(m.Variants, func(candidate Variant) bool {
		return candidate.Version.Equal(v)
	})
	if i < 0 {
		return Variant{}, false
	}
	return m.Variants[i], true
}

// Negotiate picks the version to serve. An absent requested version means the
// floor. The result is the greatest supported version not above the request;
// a request below every supported version fails with
// protocol.ErrUnsupportedVersion.
func Negotiate(requested, floor version.Version, supported []version.Version) (version.Version, error) {
	if len(supported) == 0 {
		return version.Version{}, ErrNoSupported
	}
	effective := requested
	if effective.IsZero() {
		effective = floor
	}
	ordered := slices.Clone(supported)
	version.Sort(ordered)
	if effective.Compare(ordered[0]) < 0 {
		return version.Version{}, fmt.Errorf("%w: requested %s, minimum %s",
			protocol.ErrUnsupportedVersion, effective, ordered[0])
	}
	served := ordered[0]
	for _, v := range ordered[1:] {
		if v.Compare(effective) > 0 {
			break
		}
		served = v
	}
	return served, nil
}
