package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry extracts the expiry claim from a stored bearer token without
// verifying its signature. The gateway never holds the backend's signing
// secret; the backend remains the authority on token validity, this is only
// used to spot obviously stale credentials before a round trip.
func TokenExpiry(token string) (time.Time, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("read exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}

// IsStale reports whether the token carries an expiry claim in the past.
// Tokens without an exp claim or that fail to parse are never reported as
// stale; the backend's 401 handling covers those.
func IsStale(token string, now time.Time) bool {
	if token == "" {
		return false
	}
	exp, err := TokenExpiry(token)
	if err != nil || exp.IsZero() {
		return false
	}
	return exp.Before(now)
}
