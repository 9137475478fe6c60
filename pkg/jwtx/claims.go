package jwtx

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNotJWT      = errors.New("jwtx: not a jwt")
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

// Claims are the claims a vendor access token may carry. Only the
// registered claims are read; anything else is ignored.
type Claims struct {
	jwt.RegisteredClaims
}

// ParseUnverified decodes the claims of a JWT without checking its
// signature. The client never holds the issuer's keys, so this must only be
// used for hints (user id, expiry), never for trust decisions.
func ParseUnverified(raw string) (*Claims, error) {
	// Cheap shape check before handing it to the parser, opaque tokens are
	// the common case and shouldn't produce parser noise.
	if strings.Count(raw, ".") != 2 {
		return nil, ErrNotJWT
	}

	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}

	return &claims, nil
}

// ValidateExpiryWithLeeway checks exp and nbf against now, with a grace
// period for clock skew.
func (c *Claims) ValidateExpiryWithLeeway(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}

	return nil
}
