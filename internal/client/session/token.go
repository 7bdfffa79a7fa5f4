package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpired reports whether the access token carries an exp claim at or
// before now. The signature is not checked: the backend does that, the
// client only needs to know whether presenting the token is pointless.
// Opaque tokens that are not JWTs carry no expiry the client can read, so
// they never count as expired; neither do JWTs without exp.
func TokenExpired(token string, now time.Time) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.After(now)
}
