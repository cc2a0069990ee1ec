package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"blogpilot/internal/apikeys"
	"blogpilot/internal/auth"
	"blogpilot/internal/domain"
	"blogpilot/internal/http/respond"
)

type identityKey struct{}
type apiKeyKey struct{}

// Authenticate requires a valid bearer token and stores the Identity in the
// request context.
func Authenticate(v auth.Verifier, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.BearerToken(r.Header.Get("Authorization"))
			if token == "" {
				respond.Error(w, http.StatusUnauthorized, respond.CodeUnauthorized, "missing authorization")
				return
			}
			id, err := v.Verify(r.Context(), token)
			if err != nil {
				logger.Debug().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("token rejected")
				respond.Error(w, http.StatusUnauthorized, respond.CodeUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), *id)))
		})
	}
}

// RequireAdmin must run after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			respond.Error(w, http.StatusUnauthorized, respond.CodeUnauthorized, "missing authorization")
			return
		}
		if !id.Admin {
			respond.Error(w, http.StatusForbidden, respond.CodeForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// APIKeyAuth authenticates public API requests with a bp_ key.
func APIKeyAuth(keys *apikeys.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			plain := apikeys.FromRequest(r)
			if plain == "" {
				respond.Error(w, http.StatusUnauthorized, respond.CodeUnauthorized, "missing api key")
				return
			}
			key, err := keys.Authenticate(r.Context(), plain)
			if err != nil {
				if errors.Is(err, domain.ErrUnauthorized) {
					respond.Error(w, http.StatusUnauthorized, respond.CodeUnauthorized, "invalid api key")
					return
				}
				respond.Err(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), apiKeyKey{}, *key)
			ctx = ContextWithIdentity(ctx, auth.Identity{UserID: key.UserID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ContextWithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(auth.Identity)
	return id, ok
}

// UserIDFromContext returns the authenticated user id or "".
func UserIDFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.UserID
}

func APIKeyFromContext(ctx context.Context) (domain.APIKey, bool) {
	k, ok := ctx.Value(apiKeyKey{}).(domain.APIKey)
	return k, ok
}
