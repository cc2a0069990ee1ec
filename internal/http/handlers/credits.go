package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"blogpilot/internal/domain"
	"blogpilot/internal/ledger"
	"blogpilot/internal/middleware"
	"blogpilot/pkg/dates"
)

type deductRequest struct {
	Feature        string            `json:"feature" validate:"required_without=Currency,max=64"`
	Currency       string            `json:"currency" validate:"omitempty,oneof=S E s e"`
	Amount         int64             `json:"amount" validate:"omitempty,gt=0"`
	IdempotencyKey string            `json:"idempotencyKey" validate:"omitempty,max=200"`
	Metadata       map[string]string `json:"metadata" validate:"omitempty,max=20"`
}

// Credits returns the caller's balance and the feature price list.
func (a *App) Credits(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	balance, err := a.Ledger.Balance(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	cfg, err := a.Ledger.Config().Get(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"balance":      balance,
		"featureCosts": cfg.FeatureCosts,
	})
}

func (a *App) Transactions(w http.ResponseWriter, r *http.Request) {
	a.history(w, r, a.currentUserID(r))
}

func (a *App) history(w http.ResponseWriter, r *http.Request, userID string) {
	q, err := historyQuery(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	rows, err := a.Ledger.History(r.Context(), userID, q)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	resp := map[string]any{"transactions": rows}
	if len(rows) > 0 && len(rows) == ledger.ClampLimit(q.Limit) {
		resp["nextBeforeSeq"] = rows[len(rows)-1].Seq
	}
	a.json(w, http.StatusOK, resp)
}

func historyQuery(r *http.Request) (ledger.HistoryQuery, error) {
	var q ledger.HistoryQuery
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return q, fmt.Errorf("%w: limit must be a positive integer", domain.ErrInvalidInput)
		}
		q.Limit = n
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("beforeSeq")); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			return q, fmt.Errorf("%w: beforeSeq must be a positive integer", domain.ErrInvalidInput)
		}
		q.BeforeSeq = n
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("before")); raw != "" {
		t, ok := dates.Coerce(raw)
		if !ok {
			return q, fmt.Errorf("%w: before must be an RFC3339 timestamp", domain.ErrInvalidInput)
		}
		q.Before = t
	}
	return q, nil
}

// Deduct charges the caller, either for a named feature or an explicit
// currency and amount.
func (a *App) Deduct(w http.ResponseWriter, r *http.Request) {
	var req deductRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	userID := a.currentUserID(r)
	res, err := a.deduct(r, userID, userID, req, idempotencyKey(r, req.IdempotencyKey), req.Metadata)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, resultBody(res))
}

// PublicBalance serves API key holders.
func (a *App) PublicBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := a.Ledger.Balance(r.Context(), a.currentUserID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"balance": balance})
}

// PublicDeduct requires an idempotency key and stamps the key id and caller
// country onto the ledger row.
func (a *App) PublicDeduct(w http.ResponseWriter, r *http.Request) {
	var req deductRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	key := idempotencyKey(r, req.IdempotencyKey)
	if key == "" {
		a.fail(w, r, fmt.Errorf("%w: idempotency key is required", domain.ErrInvalidInput))
		return
	}
	userID := a.currentUserID(r)
	meta := make(map[string]string, len(req.Metadata)+3)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	delete(meta, "apiKeyId")
	delete(meta, "country")
	meta["source"] = "api"
	actor := userID
	if apiKey, ok := middleware.APIKeyFromContext(r.Context()); ok {
		meta["apiKeyId"] = apiKey.ID
		actor = "apikey:" + apiKey.ID
	}
	if country := middleware.CountryFromContext(r.Context()); country != "" {
		meta["country"] = country
	}
	res, err := a.deduct(r, userID, actor, req, key, meta)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, resultBody(res))
}

func (a *App) deduct(r *http.Request, userID, actor string, req deductRequest, key string, meta map[string]string) (*ledger.Result, error) {
	if req.Feature != "" {
		if req.Currency != "" || req.Amount != 0 {
			return nil, fmt.Errorf("%w: send either feature or currency and amount", domain.ErrInvalidInput)
		}
		return a.Ledger.DeductForFeature(r.Context(), ledger.FeatureRequest{
			UserID:         userID,
			Feature:        req.Feature,
			Actor:          actor,
			IdempotencyKey: key,
			Metadata:       meta,
		})
	}
	return a.Ledger.Deduct(r.Context(), ledger.DeductRequest{
		UserID:         userID,
		Currency:       domain.Currency(strings.ToUpper(req.Currency)),
		Amount:         req.Amount,
		Feature:        "manual",
		Actor:          actor,
		IdempotencyKey: key,
		Metadata:       meta,
	})
}

func resultBody(res *ledger.Result) map[string]any {
	return map[string]any{
		"transaction": res.Transaction,
		"balance":     res.Balance,
		"replayed":    res.Replayed,
	}
}
