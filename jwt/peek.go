package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed is returned when a token cannot be decoded at all.
var ErrMalformed = errors.New("malformed token")

// Peek decodes the claims of token without verifying its signature. The
// result must never be used for authorization decisions.
func Peek(token string) (*AccessClaims, error) {
	if token == "" {
		return nil, ErrMalformed
	}
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	return claims, nil
}

// ExpiresAt returns the exp claim of token, if it is a JWT carrying one.
func ExpiresAt(token string) (time.Time, bool) {
	claims, err := Peek(token)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Subject returns the sub claim of token, if present.
func Subject(token string) (string, bool) {
	claims, err := Peek(token)
	if err != nil || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

// ExpiresWithin reports whether token expires within buffer of now. Tokens
// without a readable exp never report true.
func ExpiresWithin(token string, now time.Time, buffer time.Duration) bool {
	exp, ok := ExpiresAt(token)
	if !ok {
		return false
	}
	return !exp.After(now.Add(buffer))
}
