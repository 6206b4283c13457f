package token

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Introspection is what the client can learn from an access token without
// the issuer's key. Signatures are not verified: the server remains the
// authority and answers 401 for anything it rejects.
type Introspection struct {
	Subject   string
	ExpiresAt time.Time // zero when the token carries no exp claim
	IssuedAt  time.Time
}

// Inspect reads the registered claims of a JWT access token. ok is false for
// opaque (non-JWT) tokens.
func Inspect(rawToken string) (Introspection, bool) {
	if strings.Count(rawToken, ".") != 2 {
		return Introspection{}, false
	}

	claims := jwtlib.RegisteredClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(rawToken, &claims); err != nil {
		return Introspection{}, false
	}

	info := Introspection{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	return info, true
}

// ExpiresAt returns the exp claim of a JWT access token.
func ExpiresAt(rawToken string) (time.Time, bool) {
	info, ok := Inspect(rawToken)
	if !ok || info.ExpiresAt.IsZero() {
		return time.Time{}, false
	}
	return info.ExpiresAt, true
}

// ExpiresWithin reports whether the token is a JWT that expires inside the
// leeway window. Opaque tokens and tokens without exp never do.
func ExpiresWithin(rawToken string, leeway time.Duration) bool {
	exp, ok := ExpiresAt(rawToken)
	if !ok {
		return false
	}
	return !NowTimeFunc().Add(leeway).Before(exp)
}
