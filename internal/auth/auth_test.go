package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blogpilot/internal/domain"
)

func TestJWTRoundTrip(t *testing.T) {
	v, err := NewJWTVerifier("secret")
	require.NoError(t, err)

	token, err := v.Issue(Identity{UserID: "u1", Email: "a@example.com", Admin: true}, time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, "a@example.com", id.Email)
	assert.True(t, id.Admin)
	assert.Equal(t, domain.UserRoleAdmin, id.Profile().Role)
}

func TestJWTRejects(t *testing.T) {
	v, _ := NewJWTVerifier("secret")
	other, _ := NewJWTVerifier("other")

	expired, err := v.Issue(Identity{UserID: "u1"}, -time.Minute)
	require.NoError(t, err)
	foreign, err := other.Issue(Identity{UserID: "u1"}, time.Hour)
	require.NoError(t, err)
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: issuer},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"expired":        expired,
		"wrong secret":   foreign,
		"no expiry":      noExp,
		"none algorithm": noneAlg,
		"garbage":        "abc.def.ghi",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), token)
			require.ErrorIs(t, err, domain.ErrUnauthorized)
		})
	}
}

func TestIdentityFromClaims(t *testing.T) {
	id := identityFromClaims("uid", map[string]any{"email": "e@x.io", "role": "admin", "name": "E"})
	assert.True(t, id.Admin)
	assert.Equal(t, "e@x.io", id.Email)

	id = identityFromClaims("uid", map[string]any{"admin": true})
	assert.True(t, id.Admin)

	id = identityFromClaims("uid", map[string]any{"admin": "yes"})
	assert.False(t, id.Admin)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken(""))
}
