package provider

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwt"
)

const (
	ClaimNameIdentifier = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier"
	ClaimName           = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name"
)

var ErrInvalidToken = errors.New("provider: invalid token")

// MintToken signs an HS256 login token naming username.
func MintToken(username string, key []byte, now time.Time, ttl time.Duration) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("%w: empty signing key", ErrInvalidToken)
	}
	t := jwt.New()
	claims := map[string]any{
		jwt.SubjectKey:      username,
		ClaimNameIdentifier: username,
		ClaimName:           username,
		jwt.IssuedAtKey:     now,
		jwt.ExpirationKey:   now.Add(ttl),
	}
	for k, v := range claims {
		if err := t.Set(k, v); err != nil {
			return "", fmt.Errorf("provider.MintToken set %s: %w", k, err)
		}
	}
	signed, err := jwt.Sign(t, jwa.HS256, key)
	if err != nil {
		return "", fmt.Errorf("provider.MintToken sign: %w", err)
	}
	return string(signed), nil
}

// VerifyToken checks signature and expiry at now and returns the username.
func VerifyToken(raw string, key []byte, now time.Time) (string, error) {
	tok, err := jwt.Parse(
		[]byte(raw),
		jwt.WithVerify(jwa.HS256, key),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	name, ok := tok.Get(ClaimName)
	if !ok {
		return "", fmt.Errorf("%w: missing name claim", ErrInvalidToken)
	}
	username, ok := name.(string)
	if !ok || username != tok.Subject() {
		return "", fmt.Errorf("%w: name claim does not match subject", ErrInvalidToken)
	}
	return username, nil
}
