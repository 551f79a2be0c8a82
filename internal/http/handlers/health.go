package handlers

import (
	"context"
	"net/http"
	"time"
)

const readyTimeout = 2 * time.Second

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready fails while the database cannot be reached, so the webhook is not
// routed to an instance that would only record persistence failures.
func (a *App) Ready(w http.ResponseWriter, r *http.Request) {
	if a.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := a.DB.Ping(ctx); err != nil {
			a.log(r).Warn().Err(err).Msg("readiness: database ping failed")
			a.error(w, http.StatusServiceUnavailable, "not_ready", "database unavailable")
			return
		}
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ready"})
}
