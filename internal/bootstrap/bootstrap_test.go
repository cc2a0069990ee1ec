package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blogpilot/internal/domain"
	"blogpilot/internal/infra"
)

func memoryConfig() *infra.Config {
	return &infra.Config{
		StoreBackend:   infra.BackendMemory,
		AuthMode:       infra.AuthJWT,
		JWTSecret:      "secret",
		EncryptionKey:  make([]byte, 32),
		ThreadsBaseURL: "http://127.0.0.1:1",
		ConfigCacheTTL: time.Second,
	}
}

func TestNewWiresMemoryRuntime(t *testing.T) {
	ctx := context.Background()
	rt, err := New(ctx, memoryConfig(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	assert.Nil(t, rt.Firebase)
	_, _, err = rt.Store.UpsertProfile(ctx, domain.UserProfile{ID: "u1"})
	require.NoError(t, err)
	bal, granted, err := rt.Ledger.EnsureSignupGrant(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, domain.DefaultCreditConfig().SignupGrant, bal)

	families, err := rt.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestCloseRunsInReverse(t *testing.T) {
	rt := &Runtime{}
	var order []int
	rt.OnClose(func() error { order = append(order, 1); return nil })
	rt.OnClose(func() error { order = append(order, 2); return nil })
	require.NoError(t, rt.Close())
	assert.Equal(t, []int{2, 1}, order)
}

func TestNewRejectsBadKey(t *testing.T) {
	cfg := memoryConfig()
	cfg.EncryptionKey = []byte("short")
	_, err := New(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
}
