package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blogpilot/internal/apikeys"
	"blogpilot/internal/auth"
	"blogpilot/internal/http/handlers"
	"blogpilot/internal/infra/credentials"
	"blogpilot/internal/ledger"
	"blogpilot/internal/posts"
	"blogpilot/internal/storage"
	"blogpilot/internal/store/memory"
	"blogpilot/internal/threads"
	"blogpilot/internal/upload"
	"blogpilot/internal/wordpress"
)

type testServer struct {
	handler http.Handler
	jwt     *auth.JWTVerifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zerolog.Nop()
	st := memory.New()
	reg := prometheus.NewRegistry()

	ledgerSvc := ledger.NewService(ledger.Deps{
		Ledger:  st,
		Users:   st,
		Config:  ledger.NewConfigProvider(st, time.Minute, logger),
		Metrics: ledger.NewMetrics(reg),
		Logger:  logger,
	})
	postSvc := posts.NewService(st, logger)
	cipher, err := credentials.NewCipher(make([]byte, 32))
	require.NoError(t, err)
	files, err := storage.NewFileStore(t.TempDir(), "http://localhost/static")
	require.NoError(t, err)

	app := handlers.NewApp(handlers.Deps{
		Store:     st,
		Ledger:    ledgerSvc,
		Posts:     postSvc,
		WordPress: wordpress.NewService(st, postSvc, wordpress.NewClient(time.Second, logger), cipher, logger),
		Threads:   threads.NewService(st, postSvc, ledgerSvc, threads.NewClient("http://127.0.0.1:1", time.Second, logger), cipher, logger),
		APIKeys:   apikeys.NewService(st, logger),
		Uploads:   upload.NewService(files, logger),
		Logger:    logger,
	})
	jwt, err := auth.NewJWTVerifier("test-secret")
	require.NoError(t, err)

	return &testServer{
		handler: NewRouter(app, Options{Verifier: jwt, Registry: reg, Logger: logger}),
		jwt:     jwt,
	}
}

func (s *testServer) token(t *testing.T, userID string, admin bool) string {
	t.Helper()
	tok, err := s.jwt.Issue(auth.Identity{UserID: userID, Email: userID + "@example.com", Admin: admin}, time.Hour)
	require.NoError(t, err)
	return tok
}

type call struct {
	method  string
	path    string
	body    any
	auth    string
	headers map[string]string
}

func (s *testServer) do(t *testing.T, c call) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var body io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != "" {
		req.Header.Set("Authorization", "Bearer "+c.auth)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)

	var out map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	}
	return rr, out
}

func balanceOf(t *testing.T, body map[string]any) (float64, float64) {
	t.Helper()
	bal, ok := body["balance"].(map[string]any)
	require.True(t, ok, "balance missing in %v", body)
	return bal["s"].(float64), bal["e"].(float64)
}

func TestHealthAndNotFound(t *testing.T) {
	s := newTestServer(t)
	rr, body := s.do(t, call{method: http.MethodGet, path: "/api/health"})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["success"])

	rr, body = s.do(t, call{method: http.MethodGet, path: "/api/ready"})
	assert.Equal(t, http.StatusOK, rr.Code)

	rr, body = s.do(t, call{method: http.MethodGet, path: "/api/nope"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "not_found", body["code"])
}

func TestAuthenticationRequired(t *testing.T) {
	s := newTestServer(t)
	rr, body := s.do(t, call{method: http.MethodGet, path: "/api/me"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "unauthorized", body["code"])

	rr, _ = s.do(t, call{method: http.MethodGet, path: "/api/me", auth: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMeGrantsSignupOnce(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "u1", false)

	rr, body := s.do(t, call{method: http.MethodGet, path: "/api/me", auth: tok})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, true, body["created"])
	sBal, eBal := balanceOf(t, body)
	assert.EqualValues(t, 100, sBal)
	assert.EqualValues(t, 20, eBal)

	_, body = s.do(t, call{method: http.MethodGet, path: "/api/me", auth: tok})
	assert.Equal(t, false, body["created"])
	sBal, _ = balanceOf(t, body)
	assert.EqualValues(t, 100, sBal)
}

func TestDeductFlow(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "u1", false)
	s.do(t, call{method: http.MethodGet, path: "/api/me", auth: tok})

	deduct := call{
		method:  http.MethodPost,
		path:    "/api/credits/deduct",
		auth:    tok,
		body:    map[string]any{"feature": "ai_draft"},
		headers: map[string]string{"Idempotency-Key": "draft-1"},
	}
	rr, body := s.do(t, deduct)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, false, body["replayed"])
	sBal, _ := balanceOf(t, body)
	assert.EqualValues(t, 90, sBal)

	rr, body = s.do(t, deduct)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["replayed"])
	sBal, _ = balanceOf(t, body)
	assert.EqualValues(t, 90, sBal)

	deduct.body = map[string]any{"feature": "ai_title"}
	rr, body = s.do(t, deduct)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "conflict", body["code"])

	rr, body = s.do(t, call{method: http.MethodPost, path: "/api/credits/deduct", auth: tok, body: map[string]any{"currency": "E", "amount": 500}})
	assert.Equal(t, http.StatusPaymentRequired, rr.Code)
	assert.Equal(t, "insufficient_credits", body["code"])

	rr, _ = s.do(t, call{method: http.MethodPost, path: "/api/credits/deduct", auth: tok, body: map[string]any{"feature": "nope"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = s.do(t, call{method: http.MethodPost, path: "/api/credits/deduct", auth: tok, body: map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, body = s.do(t, call{method: http.MethodGet, path: "/api/credits/transactions?limit=1", auth: tok})
	require.Equal(t, http.StatusOK, rr.Code)
	txs := body["transactions"].([]any)
	require.Len(t, txs, 1)
	assert.Equal(t, "deduct", txs[0].(map[string]any)["kind"])
	assert.EqualValues(t, 3, body["nextBeforeSeq"])

	rr, body = s.do(t, call{method: http.MethodGet, path: "/api/credits/transactions?limit=5&beforeSeq=3", auth: tok})
	require.Equal(t, http.StatusOK, rr.Code)
	txs = body["transactions"].([]any)
	require.Len(t, txs, 2)
	assert.EqualValues(t, 2, txs[0].(map[string]any)["seq"])
	assert.Nil(t, body["nextBeforeSeq"])

	rr, _ = s.do(t, call{method: http.MethodGet, path: "/api/credits/transactions?beforeSeq=0", auth: tok})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = s.do(t, call{method: http.MethodGet, path: "/api/credits/transactions?before=yesterday", auth: tok})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, body = s.do(t, call{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `blogpilot_credits_deducted_total{currency="S",feature="ai_draft"} 1`)
	assert.Contains(t, rr.Body.String(), "blogpilot_http_requests_total")
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	user := s.token(t, "u1", false)
	admin := s.token(t, "root", true)
	s.do(t, call{method: http.MethodGet, path: "/api/me", auth: user})

	grant := map[string]any{"userId": "u1", "currency": "E", "amount": 5}
	rr, _ := s.do(t, call{method: http.MethodPost, path: "/api/admin/credits/grant", auth: user, body: grant})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr, body := s.do(t, call{method: http.MethodPost, path: "/api/admin/credits/grant", auth: admin, body: grant})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	_, eBal := balanceOf(t, body)
	assert.EqualValues(t, 25, eBal)

	rr, body = s.do(t, call{method: http.MethodPost, path: "/api/admin/credits/adjust", auth: admin, body: map[string]any{"userId": "u1", "s": 7, "reason": "support ticket"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	sBal, _ := balanceOf(t, body)
	assert.EqualValues(t, 7, sBal)

	rr, _ = s.do(t, call{method: http.MethodPost, path: "/api/admin/credits/adjust", auth: admin, body: map[string]any{"userId": "u1", "s": -1, "reason": "x"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, body = s.do(t, call{method: http.MethodGet, path: "/api/admin/credits/audit/u1", auth: admin})
	require.Equal(t, http.StatusOK, rr.Code)
	report := body["report"].(map[string]any)
	assert.Equal(t, true, report["ok"])
	assert.EqualValues(t, 4, report["rows"])

	rr, body = s.do(t, call{method: http.MethodGet, path: "/api/admin/users/u1/transactions", auth: admin})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, body["transactions"], 4)

	rr, _ = s.do(t, call{method: http.MethodGet, path: "/api/admin/credits/audit/ghost", auth: admin})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	cfg := map[string]any{
		"signupGrant":  map[string]any{"s": 10, "e": 1},
		"monthlyGrant": map[string]any{"s": 5, "e": 0},
		"featureCosts": map[string]any{"ai_title": map[string]any{"currency": "s", "amount": 2}},
		"maxBalance":   1000,
	}
	rr, body = s.do(t, call{method: http.MethodPut, path: "/api/admin/credit-config", auth: admin, body: cfg})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	saved := body["config"].(map[string]any)
	assert.Equal(t, "root", saved["updatedBy"])

	rr, body = s.do(t, call{method: http.MethodGet, path: "/api/credits", auth: user})
	require.Equal(t, http.StatusOK, rr.Code)
	costs := body["featureCosts"].(map[string]any)
	assert.Len(t, costs, 1)
	assert.Equal(t, "S", costs["ai_title"].(map[string]any)["currency"])
}

func TestPublicAPIKeys(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "u1", false)
	s.do(t, call{method: http.MethodGet, path: "/api/me", auth: tok})

	rr, body := s.do(t, call{method: http.MethodPost, path: "/api/api-keys", auth: tok, body: map[string]any{"name": "ci"}})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	plaintext := body["plaintext"].(string)
	require.True(t, apikeys.Valid(plaintext))
	keyID := body["key"].(map[string]any)["id"].(string)

	rr, body = s.do(t, call{method: http.MethodGet, path: "/api/public/credits", headers: map[string]string{"X-API-Key": plaintext}})
	require.Equal(t, http.StatusOK, rr.Code)
	sBal, _ := balanceOf(t, body)
	assert.EqualValues(t, 100, sBal)

	deduct := call{method: http.MethodPost, path: "/api/public/credits/deduct", auth: plaintext, body: map[string]any{"currency": "S", "amount": 3}}
	rr, _ = s.do(t, deduct)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "idempotency key is mandatory")

	deduct.headers = map[string]string{"Idempotency-Key": "job-1", "CF-IPCountry": "id"}
	deduct.body = map[string]any{
		"currency": "S",
		"amount":   3,
		"metadata": map[string]string{"source": "dashboard", "apiKeyId": "k-other", "country": "US", "job": "nightly"},
	}
	rr, body = s.do(t, deduct)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	meta := body["transaction"].(map[string]any)["metadata"].(map[string]any)
	assert.Equal(t, "api", meta["source"])
	assert.Equal(t, "ID", meta["country"])
	assert.Equal(t, keyID, meta["apiKeyId"])
	assert.Equal(t, "nightly", meta["job"])

	rr, _ = s.do(t, call{method: http.MethodDelete, path: "/api/api-keys/" + keyID, auth: tok})
	require.Equal(t, http.StatusOK, rr.Code)

	rr, body = s.do(t, call{method: http.MethodGet, path: "/api/public/credits", headers: map[string]string{"X-API-Key": plaintext}})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr, _ = s.do(t, call{method: http.MethodGet, path: "/api/public/credits", headers: map[string]string{"X-API-Key": "bp_nothex"}})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestPostsRoutes(t *testing.T) {
	s := newTestServer(t)
	owner := s.token(t, "u1", false)
	other := s.token(t, "u2", false)
	s.do(t, call{method: http.MethodGet, path: "/api/me", auth: owner})

	rr, body := s.do(t, call{method: http.MethodPost, path: "/api/posts", auth: owner, body: map[string]any{"title": "Hello", "content": "<p>hi</p><script>x</script>"}})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	post := body["post"].(map[string]any)
	id := post["id"].(string)
	assert.Equal(t, "<p>hi</p>", post["content"])

	rr, _ = s.do(t, call{method: http.MethodGet, path: "/api/posts/" + id, auth: other})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, body = s.do(t, call{method: http.MethodPut, path: "/api/posts/" + id, auth: owner, body: map[string]any{"title": "Hello again"}})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "hello-again", body["post"].(map[string]any)["slug"])

	rr, _ = s.do(t, call{method: http.MethodPost, path: "/api/posts/" + id + "/schedule", auth: owner, body: map[string]any{"publishAt": time.Now().Add(-time.Hour)}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, body = s.do(t, call{method: http.MethodPost, path: "/api/posts/" + id + "/publish", auth: owner})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "published", body["post"].(map[string]any)["status"])

	rr, body = s.do(t, call{method: http.MethodPost, path: "/api/posts/" + id + "/wordpress", auth: owner})
	assert.Equal(t, http.StatusPreconditionFailed, rr.Code)
	assert.Equal(t, "integration_missing", body["code"])

	rr, body = s.do(t, call{method: http.MethodGet, path: "/api/posts?status=published", auth: owner})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, body["posts"], 1)

	rr, _ = s.do(t, call{method: http.MethodGet, path: "/api/posts/export", auth: owner})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/zip", rr.Header().Get("Content-Type"))
	assert.Equal(t, "1", rr.Header().Get("X-Post-Count"))

	rr, _ = s.do(t, call{method: http.MethodPost, path: "/api/posts", auth: owner, body: map[string]any{"title": "x", "bogus": 1}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = s.do(t, call{method: http.MethodDelete, path: "/api/posts/" + id, auth: owner})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestUploadSniffsContent(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "u1", false)

	send := func(data []byte, declared string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="file"; filename="pic.png"`}
		h["Content-Type"] = []string{declared}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, _ = part.Write(data)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/uploads", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+tok)
		rr := httptest.NewRecorder()
		s.handler.ServeHTTP(rr, req)
		return rr
	}

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	rr := send(png, "application/octet-stream")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"contentType":"image/png"`)
	assert.Contains(t, rr.Body.String(), "uploads/u1/")

	rr = send([]byte("<html>not an image</html>"), "image/png")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
