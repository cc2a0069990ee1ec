package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type createAPIKeyRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

func (a *App) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := a.APIKeys.List(r.Context(), a.currentUserID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"keys": keys})
}

// CreateAPIKey returns the plaintext key once.
func (a *App) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	created, err := a.APIKeys.Create(r.Context(), a.currentUserID(r), req.Name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, map[string]any{"key": created.Key, "plaintext": created.Plaintext})
}

func (a *App) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	if err := a.APIKeys.Revoke(r.Context(), a.currentUserID(r), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"revoked": true})
}
