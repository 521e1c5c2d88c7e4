package handlers

import (
	"context"
	"net/http"

	"myrient-search/internal/database"
	"myrient-search/internal/logging"
)

// Stats handles GET /api/stats.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// StartSync handles POST /api/sync. A sync runs in the background; the
// response is 202 Accepted immediately. Only one crawl runs at a time, a
// second request while one is active gets 409 Conflict. ?full=true forces
// a full recrawl that ignores stored fingerprints.
func (h *Handlers) StartSync(w http.ResponseWriter, r *http.Request) {
	state, err := h.db.GetCrawlState(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read crawl state")
		return
	}
	if state.Status == database.CrawlStatusCrawling {
		writeError(w, http.StatusConflict, "a sync is already in progress")
		return
	}

	full := r.URL.Query().Get("full") == "true"

	// The crawl outlives this request, so it gets its own context.
	go func() {
		if err := h.syncer.Run(context.Background(), full); err != nil {
			logging.Error("Sync failed: %v", err)
		}
	}()

	mode := "incremental"
	if full {
		mode = "full"
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
		"mode":   mode,
	})
}

// SyncStatus handles GET /api/sync/status.
func (h *Handlers) SyncStatus(w http.ResponseWriter, r *http.Request) {
	state, err := h.db.GetCrawlState(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read crawl state")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Cleanup handles POST /api/cleanup, removing malformed index rows left by
// older crawler versions and reporting what was deleted.
func (h *Handlers) Cleanup(w http.ResponseWriter, r *http.Request) {
	report, err := h.db.CleanupMalformedPaths(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
