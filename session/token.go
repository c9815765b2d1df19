package session

import (
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// Expired reports whether token is a JWT whose "exp" claim is not after now.
// Tokens that are not JWTs, or carry no expiry, never expire. The signature
// is not verified; the server remains the authority on validity.
func Expired(token string, now time.Time) bool {
	exp, ok := ExpiresAt(token)
	return ok && !exp.After(now)
}

// ExpiresAt returns the "exp" claim of a JWT token.
func ExpiresAt(token string) (time.Time, bool) {
	var claims gojwt.RegisteredClaims
	if _, _, err := gojwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
