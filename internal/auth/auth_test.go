package auth

import (
	"errors"
	"testing"

	"github.com/danmuck/opencab/internal/testutil/testlog"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	testlog.Start(t)
	cases := map[string]struct {
		header string
		want   string
		err    error
	}{
		"bearer":       {header: "Bearer abc", want: "abc"},
		"lower scheme": {header: "bearer  abc ", want: "abc"},
		"basic":        {header: "Basic abc", err: ErrMissingToken},
		"empty":        {header: "", err: ErrMissingToken},
		"no token":     {header: "Bearer ", err: ErrMissingToken},
	}
	for name, tc := range cases {
		got, err := BearerToken(tc.header)
		if !errors.Is(err, tc.err) || got != tc.want {
			t.Fatalf("%s: got %q err=%v", name, got, err)
		}
	}
}

func TestCheckWrapsValidatorErrors(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("expired")
	v := FuncValidator(func(token string) error {
		if token != "ok" {
			return boom
		}
		return nil
	})
	if err := Check(v, "Bearer ok"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	err := Check(v, "Bearer bad")
	if !errors.Is(err, ErrUnauthorized) || !errors.Is(err, boom) {
		t.Fatalf("expected unauthorized wrapping the cause, got %v", err)
	}
	if err := Check(v, ""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token, got %v", err)
	}
}
