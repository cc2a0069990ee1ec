package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blogpilot/internal/auth"
	"blogpilot/internal/bootstrap"
	"blogpilot/internal/domain"
	"blogpilot/internal/infra"
	"blogpilot/internal/ledger"
)

func newTestRuntime(t *testing.T) *bootstrap.Runtime {
	t.Helper()
	rt, err := bootstrap.New(context.Background(), &infra.Config{
		StoreBackend:   infra.BackendMemory,
		AuthMode:       infra.AuthJWT,
		JWTSecret:      "s",
		EncryptionKey:  make([]byte, 32),
		ThreadsBaseURL: "http://127.0.0.1:1",
		ConfigCacheTTL: time.Millisecond,
	}, zerolog.Nop())
	require.NoError(t, err)
	_, _, err = rt.Store.UpsertProfile(context.Background(), domain.UserProfile{ID: "u1"})
	require.NoError(t, err)
	return rt
}

func run(t *testing.T, rt *bootstrap.Runtime, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(func(context.Context) (*bootstrap.Runtime, error) { return rt, nil })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGrantDeductBalance(t *testing.T) {
	rt := newTestRuntime(t)

	out, err := run(t, rt, "grant", "--user", "u1", "--currency", "e", "--amount", "12", "--key", "g1")
	require.NoError(t, err)
	var res ledger.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, int64(12), res.Balance.E)

	out, err = run(t, rt, "grant", "--user", "u1", "--currency", "E", "--amount", "12", "--key", "g1")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Replayed)

	_, err = run(t, rt, "deduct", "--user", "u1", "--currency", "E", "--amount", "5")
	require.NoError(t, err)

	out, err = run(t, rt, "balance", "--user", "u1")
	require.NoError(t, err)
	var bal domain.Balance
	require.NoError(t, json.Unmarshal([]byte(out), &bal))
	assert.Equal(t, domain.Balance{E: 7}, bal)

	_, err = run(t, rt, "deduct", "--user", "u1", "--currency", "E", "--amount", "50")
	require.ErrorIs(t, err, domain.ErrInsufficientCredits)
}

func TestAdjustOnlyTouchesGivenCurrency(t *testing.T) {
	rt := newTestRuntime(t)
	_, err := run(t, rt, "grant", "--user", "u1", "--currency", "S", "--amount", "9")
	require.NoError(t, err)

	_, err = run(t, rt, "adjust", "--user", "u1", "--e", "4", "--reason", "support ticket")
	require.NoError(t, err)

	bal, err := rt.Ledger.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.Balance{S: 9, E: 4}, bal)

	out, err := run(t, rt, "audit", "--user", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, `"ok": true`)
}

func TestRequiredFlags(t *testing.T) {
	rt := newTestRuntime(t)
	_, err := run(t, rt, "balance")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--user")

	_, err = run(t, rt, "adjust", "--user", "u1", "--s", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--reason")
}

func TestConfigSetFromFile(t *testing.T) {
	rt := newTestRuntime(t)
	cfg := domain.DefaultCreditConfig()
	cfg.SignupGrant = domain.Balance{S: 1, E: 1}
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "credit.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	_, err = run(t, rt, "config", "set", "--file", path, "--actor", "ops@example.com")
	require.NoError(t, err)

	got, err := rt.Ledger.Config().Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Balance{S: 1, E: 1}, got.SignupGrant)
	assert.Equal(t, "ops@example.com", got.UpdatedBy)
}

func TestAPIKeyLifecycle(t *testing.T) {
	rt := newTestRuntime(t)
	out, err := run(t, rt, "apikey", "create", "--user", "u1", "--name", "zapier")
	require.NoError(t, err)
	var created struct {
		Key       domain.APIKey `json:"key"`
		Plaintext string        `json:"plaintext"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.True(t, strings.HasPrefix(created.Plaintext, "bp_"))

	_, err = run(t, rt, "apikey", "revoke", "--user", "u1", "--id", created.Key.ID)
	require.NoError(t, err)

	_, err = rt.APIKeys.Authenticate(context.Background(), created.Plaintext)
	require.Error(t, err)
}

func TestTokenIssuesVerifiableJWT(t *testing.T) {
	out, err := run(t, nil, "token", "--user", "u9", "--admin", "--secret", "sekret")
	require.NoError(t, err)

	v, err := auth.NewJWTVerifier("sekret")
	require.NoError(t, err)
	id, err := v.Verify(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "u9", id.UserID)
	assert.True(t, id.Admin)
}
