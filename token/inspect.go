package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed is an exported constant or variable used by the LIMS client.
var ErrMalformed = errors.New("malformed access token")

// Claims carries the registered claims the client cares about. Zero time
// values mean the claim was absent.
type Claims struct {
	Subject   string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Inspect decodes the registered claims of raw without verifying its
// signature. The LIMS backend holds the signing keys; the client only needs
// the expiry to schedule proactive refreshes and the subject for diagnostics.
func Inspect(raw string) (*Claims, error) {
	var rc jwt.RegisteredClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &rc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	c := &Claims{
		Subject: rc.Subject,
		Issuer:  rc.Issuer,
	}
	if rc.IssuedAt != nil {
		c.IssuedAt = rc.IssuedAt.Time
	}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
	}
	return c, nil
}

// ExpiresWithin reports whether the token expires within leeway from now.
// Tokens without an exp claim never report as expiring; their rejection is
// the server's call.
func (c *Claims) ExpiresWithin(leeway time.Duration) bool {
	if c == nil || c.ExpiresAt.IsZero() {
		return false
	}
	return time.Until(c.ExpiresAt) <= leeway
}

// Expired reports whether the exp claim is in the past.
func (c *Claims) Expired() bool {
	return c.ExpiresWithin(0)
}
