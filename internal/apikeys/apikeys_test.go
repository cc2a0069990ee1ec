package apikeys

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blogpilot/internal/domain"
	"blogpilot/internal/store/memory"
)

type touchCounter struct {
	*memory.Store
	touches int
}

func (c *touchCounter) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	c.touches++
	return c.Store.TouchAPIKey(ctx, id, at)
}

func TestGenerateFormat(t *testing.T) {
	for i := 0; i < 20; i++ {
		k, err := Generate()
		require.NoError(t, err)
		assert.Regexp(t, `^bp_[0-9a-f]{32}$`, k)
		assert.True(t, Valid(k))
	}
	assert.False(t, Valid("bp_XYZ"))
	assert.False(t, Valid("sk_00112233445566778899aabbccddeeff"))
}

func TestCreateAuthenticateRevoke(t *testing.T) {
	ctx := context.Background()
	repo := &touchCounter{Store: memory.New()}
	svc := NewService(repo, zerolog.Nop())

	created, err := svc.Create(ctx, "u1", "  zapier ")
	require.NoError(t, err)
	assert.Equal(t, "zapier", created.Key.Name)
	assert.Equal(t, created.Plaintext[:10], created.Key.Prefix)
	assert.Equal(t, Hash(created.Plaintext), created.Key.Hash)

	key, err := svc.Authenticate(ctx, created.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, "u1", key.UserID)

	_, err = svc.Authenticate(ctx, created.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.touches)

	keys, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt)

	require.NoError(t, svc.Revoke(ctx, "u1", created.Key.ID))
	_, err = svc.Authenticate(ctx, created.Plaintext)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAuthenticateRejectsUnknownAndMalformed(t *testing.T) {
	svc := NewService(memory.New(), zerolog.Nop())
	_, err := svc.Authenticate(context.Background(), "bp_00112233445566778899aabbccddeeff")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = svc.Authenticate(context.Background(), "not-a-key")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestCreateValidatesName(t *testing.T) {
	svc := NewService(memory.New(), zerolog.Nop())
	_, err := svc.Create(context.Background(), "u1", "   ")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		want   string
	}{
		{name: "x-api-key", header: map[string]string{"X-API-Key": "bp_abc"}, want: "bp_abc"},
		{name: "bearer", header: map[string]string{"Authorization": "Bearer bp_abc"}, want: "bp_abc"},
		{name: "bearer jwt ignored", header: map[string]string{"Authorization": "Bearer eyJhbGci"}, want: ""},
		{name: "none", header: nil, want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			for k, v := range tc.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, FromRequest(r))
		})
	}
}
