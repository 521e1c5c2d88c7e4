package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"myrient-search/internal/crawler"
	"myrient-search/internal/database"
	"myrient-search/internal/handlers"
	"myrient-search/internal/logging"
	"myrient-search/internal/metrics"
	"myrient-search/internal/middleware"
	"myrient-search/internal/startup"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

func main() {
	startTime := time.Now()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		logging.Fatal("Configuration error: %v", err)
	}

	// Initialize database
	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath)
	if err != nil {
		logging.Fatal("Failed to initialize database: %v", err)
	}
	defer db.Close()
	startup.LogDatabaseInit(time.Since(dbStart))

	// A crash mid-crawl leaves the state row stuck on "crawling".
	if err := db.RecoverStaleCrawl(context.Background()); err != nil {
		logging.Warn("Failed to recover stale crawl state: %v", err)
	}

	startupCleanup(db)

	if config.MetricsEnabled {
		metrics.InitializeMetrics()
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			for range ticker.C {
				db.UpdateDBMetrics()
			}
		}()
	}

	// Initialize crawler
	c, err := crawler.New(db, crawler.Config{
		BaseURL:     config.BaseURL,
		UserAgent:   config.UserAgent,
		Concurrency: config.Concurrency,
		Delay:       config.CrawlDelay,
		Timeout:     config.CrawlTimeout,
	})
	if err != nil {
		logging.Fatal("Failed to initialize crawler: %v", err)
	}

	// Scheduled incremental syncs
	startup.LogSchedulerInit(config.SyncSchedule)
	scheduler := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := scheduler.AddFunc(config.SyncSchedule, func() {
		logging.Info("Scheduled sync starting")
		if err := c.Run(context.Background(), false); err != nil {
			if errors.Is(err, database.ErrCrawlInProgress) {
				logging.Warn("Scheduled sync skipped: a crawl is already running")
				return
			}
			logging.Error("Scheduled sync failed: %v", err)
		}
	}); err != nil {
		logging.Fatal("Invalid SYNC_SCHEDULE %q: %v", config.SyncSchedule, err)
	}
	scheduler.Start()

	// Initialize handlers
	h := handlers.New(db, c)

	// Setup router
	router := mux.NewRouter()
	h.Register(router)

	// Log routes dynamically
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	// Apply metrics middleware, then logging (outermost)
	var handler http.Handler = router
	if config.MetricsEnabled {
		handler = middleware.Metrics()(handler)
	}
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler = middleware.Logger(loggingConfig)(handler)

	// Create server
	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Prometheus scrapes a separate listener so the metrics port can stay
	// off the public ingress.
	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:    ":" + config.MetricsPort,
			Handler: metricsMux,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	// A fresh deployment fills itself without waiting for the schedule.
	go runInitialCrawl(db, c)

	// Start graceful shutdown handler
	go handleShutdown(srv, metricsSrv, scheduler, db)

	// Start server
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("Server error: %v", err)
	}
}

// startupCleanup sweeps malformed rows left by older crawler versions.
// The sweep is idempotent and quick when there is nothing to do, so it
// runs on every boot.
func startupCleanup(db *database.Database) {
	report, err := db.CleanupMalformedPaths(context.Background())
	if err != nil {
		logging.Warn("Startup cleanup failed: %v", err)
		return
	}
	if report.TotalRemoved > 0 {
		logging.Info("Startup cleanup removed %d malformed entries", report.TotalRemoved)
	}
}

// runInitialCrawl starts a full crawl when the index holds no files yet.
func runInitialCrawl(db *database.Database, syncer handlers.Syncer) {
	stats, err := db.GetStats(context.Background())
	if err != nil {
		logging.Warn("Initial crawl check failed: %v", err)
		return
	}
	if stats.TotalFiles > 0 {
		return
	}
	logging.Info("Index is empty, starting initial full crawl")
	if err := syncer.Run(context.Background(), true); err != nil {
		logging.Error("Initial crawl failed: %v", err)
	}
}

func handleShutdown(srv, metricsSrv *http.Server, scheduler *cron.Cron, db *database.Database) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Stopping sync scheduler")
	<-scheduler.Stop().Done()
	startup.LogShutdownStepComplete("Scheduler stopped")

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Checkpointing database")
	if err := db.Optimize(); err != nil {
		logging.Warn("Database checkpoint error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Database checkpointed")
	}

	startup.LogShutdownComplete()
}
