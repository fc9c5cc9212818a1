package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestTokenExpiry_ReadsExpClaim(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, jwt.MapClaims{"sub": "42", "exp": exp.Unix()})

	got, err := TokenExpiry(token)
	require.NoError(t, err)
	assert.True(t, got.Equal(exp))
}

func TestTokenExpiry_NoExpClaim(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "42"})

	got, err := TokenExpiry(token)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestTokenExpiry_Garbage(t *testing.T) {
	_, err := TokenExpiry("not-a-jwt")
	require.Error(t, err)
}

func TestIsStale(t *testing.T) {
	now := time.Now()
	expired := signedToken(t, jwt.MapClaims{"exp": now.Add(-time.Minute).Unix()})
	live := signedToken(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()})
	noExp := signedToken(t, jwt.MapClaims{"sub": "42"})

	assert.True(t, IsStale(expired, now))
	assert.False(t, IsStale(live, now))
	assert.False(t, IsStale(noExp, now), "tokens without exp are left to the backend to judge")
	assert.False(t, IsStale("", now))
	assert.False(t, IsStale("garbage", now), "unparseable tokens are left to the backend to judge")
}
