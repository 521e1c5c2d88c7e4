package handlers

import (
	"net/http"
	"time"

	"myrient-search/internal/startup"
)

// Health handles GET /health with a summary of service state.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	entries, err := h.db.EntryCount(r.Context())
	status := "ok"
	if err != nil {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"uptime":  time.Since(h.startTime).Round(time.Second).String(),
		"entries": entries,
		"version": startup.GetBuildInfo().Version,
	})
}

// Livez handles GET /livez. The process is alive if it can answer at all.
func (h *Handlers) Livez(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz handles GET /readyz. Ready means the database answers queries.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := h.db.EntryCount(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Version handles GET /version.
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, startup.GetBuildInfo())
}
