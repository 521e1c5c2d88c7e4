package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myrient_search_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "myrient_search_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "myrient_search_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myrient_search_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "myrient_search_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "myrient_search_db_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"result"}, // "commit", "rollback"
	)

	DBRowsAffected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "myrient_search_db_rows_affected",
			Help:    "Rows affected by write operations",
			Buckets: []float64{1, 10, 100, 1000, 10000},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "myrient_search_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Crawler metrics
var (
	CrawlerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myrient_search_crawler_runs_total",
			Help: "Total number of crawl runs",
		},
		[]string{"mode", "status"}, // mode: "full", "incremental"
	)

	CrawlerLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "myrient_search_crawler_last_run_timestamp",
			Help: "Timestamp of the last crawl run",
		},
	)

	CrawlerLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "myrient_search_crawler_last_run_duration_seconds",
			Help: "Duration of the last crawl run in seconds",
		},
	)

	CrawlerDirsCrawled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "myrient_search_crawler_dirs_crawled_total",
			Help: "Total number of directory listings fetched and parsed",
		},
	)

	CrawlerDirsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "myrient_search_crawler_dirs_skipped_total",
			Help: "Total number of directories skipped by fingerprint match",
		},
	)

	CrawlerFilesFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "myrient_search_crawler_files_found_total",
			Help: "Total number of file entries found by the crawler",
		},
	)

	CrawlerErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "myrient_search_crawler_errors_total",
			Help: "Total number of crawl errors",
		},
	)

	CrawlerHTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myrient_search_crawler_http_requests_total",
			Help: "Total number of upstream HTTP requests made by the crawler",
		},
		[]string{"status"},
	)

	CrawlerIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "myrient_search_crawler_running",
			Help: "Whether a crawl is currently running (1 = running, 0 = idle)",
		},
	)

	CrawlerWriteQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "myrient_search_crawler_write_queue_depth",
			Help: "Number of directory results waiting for the database writer",
		},
	)
)

// Search metrics
var (
	SearchQueriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "myrient_search_queries_total",
			Help: "Total number of search queries served",
		},
	)

	SearchQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "myrient_search_query_duration_seconds",
			Help:    "Search query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)
)
