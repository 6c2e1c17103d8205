package contract

import (
	"context"
	"errors"
	"testing"

	"github.com/danmuck/opencab/internal/protocol"
	"github.com/danmuck/opencab/internal/testutil/testlog"
	"github.com/danmuck/opencab/internal/version"
)

func versions(raw ...string) []version.Version {
	out := make([]version.Version, 0, len(raw))
	for _, s := range raw {
		out = append(out, version.MustParse(s))
	}
	return out
}

func noop(context.Context, protocol.Bundle) (protocol.Bundle, error) {
	return protocol.NewBundle(), nil
}

func TestNegotiateAbsentRequestUsesFloor(t *testing.T) {
	testlog.Start(t)
	got, err := Negotiate(version.Version{}, version.MustParse("0.2"), versions("0.2", "0.3"))
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if got.String() != "0.2" {
		t.Fatalf("expected floor 0.2, got %s", got)
	}
}

func TestNegotiateBelowMinimumFails(t *testing.T) {
	testlog.Start(t)
	_, err := Negotiate(version.MustParse("0.1"), version.MustParse("0.2"), versions("0.3", "0.2"))
	if !errors.Is(err, protocol.ErrUnsupportedVersion) {
		t.Fatalf("expected unsupported version, got %v", err)
	}
}

func TestNegotiateDowngradesToGreatestSupported(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		requested string
		want      string
	}{
		{"0.4", "0.3"},
		{"9", "0.3"},
		{"0.3", "0.3"},
		{"0.3.5", "0.3"},
		{"0.2.9", "0.2"},
		{"0.2", "0.2"},
	}
	for _, tc := range cases {
		got, err := Negotiate(version.MustParse(tc.requested), version.MustParse("0.2"), versions("0.2", "0.3"))
		if err != nil {
			t.Fatalf("negotiate %s: %v", tc.requested, err)
		}
		if got.String() != tc.want {
			t.Fatalf("requested %s: expected %s, got %s", tc.requested, tc.want, got)
		}
	}
}

func TestNegotiateEmptySupported(t *testing.T) {
	testlog.Start(t)
	if _, err := Negotiate(version.MustParse("0.2"), version.MustParse("0.2"), nil); !errors.Is(err, ErrNoSupported) {
		t.Fatalf("expected ErrNoSupported, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	testlog.Start(t)
	ok := Contract{
		Name:      "hos",
		Authority: "org.opencabstandard.hos",
		Floor:     version.MustParse("0.2"),
		Methods: []Method{{Name: "getHOS", Variants: []Variant{
			{Version: version.MustParse("0.3"), Handle: noop},
			{Version: version.MustParse("0.2"), Handle: noop},
		}}},
	}
	if err := Validate(ok); err != nil {
		t.Fatalf("validate: %v", err)
	}
	m, found := ok.Method("getHOS")
	if !found {
		t.Fatalf("method not found")
	}
	if s := m.Supported(); s[0].String() != "0.2" || s[1].String() != "0.3" {
		t.Fatalf("supported not ascending: %v", s)
	}
	if _, found := m.Variant(version.MustParse("0.3.0")); !found {
		t.Fatalf("expected 0.3.0 to match the 0.3 variant")
	}

	dup := ok
	dup.Methods = []Method{{Name: "getHOS", Variants: []Variant{
		{Version: version.MustParse("0.2"), Handle: noop},
		{Version: version.MustParse("0.2.0"), Handle: noop},
	}}}
	if err := Validate(dup); !errors.Is(err, ErrInvalidContract) {
		t.Fatalf("expected duplicate version rejected, got %v", err)
	}

	noFloor := ok
	noFloor.Floor = version.Version{}
	if err := Validate(noFloor); !errors.Is(err, ErrInvalidContract) {
		t.Fatalf("expected missing floor rejected, got %v", err)
	}

	empty := ok
	empty.Methods = []Method{{Name: "getHOS"}}
	if err := Validate(empty); !errors.Is(err, ErrNoSupported) {
		t.Fatalf("expected empty method rejected, got %v", err)
	}
}
