package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"myrient-search/internal/database"
	"myrient-search/internal/logging"
)

// Syncer starts a crawl run. Satisfied by *crawler.Crawler.
type Syncer interface {
	Run(ctx context.Context, full bool) error
}

type Handlers struct {
	db        *database.Database
	syncer    Syncer
	startTime time.Time
}

func New(db *database.Database, syncer Syncer) *Handlers {
	return &Handlers{
		db:        db,
		syncer:    syncer,
		startTime: time.Now(),
	}
}

// Register attaches all API and health routes to the router.
func (h *Handlers) Register(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/search", h.Search).Methods(http.MethodGet)
	api.HandleFunc("/browse", h.Browse).Methods(http.MethodGet)
	api.HandleFunc("/collections", h.Collections).Methods(http.MethodGet)
	api.HandleFunc("/platforms", h.Platforms).Methods(http.MethodGet)
	api.HandleFunc("/manufacturers", h.Manufacturers).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.Stats).Methods(http.MethodGet)
	api.HandleFunc("/recently-added", h.RecentlyAdded).Methods(http.MethodGet)
	api.HandleFunc("/sync", h.StartSync).Methods(http.MethodPost)
	api.HandleFunc("/sync/status", h.SyncStatus).Methods(http.MethodGet)
	api.HandleFunc("/cleanup", h.Cleanup).Methods(http.MethodPost)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.Livez).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.Readyz).Methods(http.MethodGet)
	r.HandleFunc("/version", h.Version).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
