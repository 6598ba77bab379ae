package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var now = time.Now

// Claims are the parts of the access token the client looks at. The
// signature is not verified; the server remains the authority.
type Claims struct {
	Subject   string
	ExpiresAt time.Time // zero when the token carries no exp
}

// Expired reports whether exp is set and not after t.
func (c Claims) Expired(t time.Time) bool {
	return !c.ExpiresAt.IsZero() && !t.Before(c.ExpiresAt)
}

// ParseClaims reads sub and exp from a JWT without verifying it. ok is
// false for tokens that are not JWTs.
func ParseClaims(token string) (Claims, bool) {
	var rc jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &rc); err != nil {
		return Claims{}, false
	}

	c := Claims{Subject: rc.Subject}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
	}
	return c, true
}

// Claims of the current token.
func (s *Store) Claims() (Claims, bool) {
	return ParseClaims(s.Token())
}
