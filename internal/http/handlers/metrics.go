package handlers

import "net/http"

// PrometheusMetrics serves the ledger's metric registry.
func (a *App) PrometheusMetrics(w http.ResponseWriter, r *http.Request) {
	a.Metrics.Handler().ServeHTTP(w, r)
}
