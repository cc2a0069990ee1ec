package handlers

import (
	"net/http"

	"blogpilot/internal/http/respond"
	"blogpilot/internal/middleware"
)

// Me refreshes the caller's profile from the token, makes sure the signup
// grant exists and returns the profile with its balance.
func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		a.error(w, http.StatusUnauthorized, respond.CodeUnauthorized, "missing authorization")
		return
	}
	user, created, err := a.Store.UpsertProfile(r.Context(), id.Profile())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	balance, granted, err := a.Ledger.EnsureSignupGrant(r.Context(), user.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	user.Credits = balance
	if created {
		a.Logger.Info().Str("user_id", user.ID).Bool("signup_grant", granted).Msg("user registered")
	}
	a.json(w, http.StatusOK, map[string]any{
		"user":    user,
		"balance": balance,
		"created": created,
	})
}
