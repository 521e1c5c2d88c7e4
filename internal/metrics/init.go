package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	// --- Crawler runs (per mode × outcome) ---
	for _, mode := range []string{"full", "incremental"} {
		for _, status := range []string{"success", "error"} {
			CrawlerRunsTotal.WithLabelValues(mode, status)
		}
	}

	for _, status := range []string{"2xx", "3xx", "4xx", "5xx", "error"} {
		CrawlerHTTPRequests.WithLabelValues(status)
	}

	// --- DB query operations ---
	for _, op := range []string{"initialize_schema", "upsert_entries", "remove_missing",
		"get_fingerprint", "put_fingerprint", "search", "browse", "get_collections",
		"get_platforms", "get_manufacturers", "get_stats", "recently_added",
		"cleanup_malformed", "rebuild_fts", "vacuum"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, t := range []string{"commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(t)
	}
}
