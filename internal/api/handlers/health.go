package handlers

import (
	"net/http"
)

type HealthHandler struct {
	// Degraded reports whether the batch store is running without its durable medium.
	Degraded func() bool
}

// Health provides a minimal liveness check endpoint.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	storage := "ok"
	if h.Degraded != nil && h.Degraded() {
		storage = "degraded"
	}

	res := map[string]string{"status": "ok", "storage": storage}
	writeJSON(w, r, http.StatusOK, res)
}
