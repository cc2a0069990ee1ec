package handlers

import (
	"net/http"
	"time"

	"blogpilot/internal/http/respond"
	"blogpilot/pkg/timeout"
)

const readyTimeout = 3 * time.Second

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"status": "ok"})
}

// Ready pings the backing store. Some drivers ignore cancellation while
// dialing, so the ping is bounded by timeout.Do rather than the context alone.
func (a *App) Ready(w http.ResponseWriter, r *http.Request) {
	if err := timeout.Do(r.Context(), readyTimeout, a.Store.Ping); err != nil {
		a.Logger.Warn().Err(err).Msg("readiness check failed")
		a.error(w, http.StatusServiceUnavailable, respond.CodeInternal, "store unavailable")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"status": "ready"})
}
