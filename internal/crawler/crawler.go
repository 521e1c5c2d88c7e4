package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/semaphore"

	"myrient-search/internal/database"
	"myrient-search/internal/extract"
	"myrient-search/internal/listing"
	"myrient-search/internal/logging"
	"myrient-search/internal/metrics"
)

const (
	// Number of entries to buffer before committing a batch
	defaultBatchSize = 1000

	// Cached directory fingerprints; the archive has on the order of
	// tens of thousands of directories.
	fingerprintCacheSize = 65536

	// Progress is persisted every this many directories.
	progressInterval = 100
)

// Config holds the crawler's tunables. Zero values fall back to safe
// defaults in New.
type Config struct {
	BaseURL     string
	UserAgent   string
	Concurrency int
	Delay       time.Duration
	Timeout     time.Duration
	BatchSize   int
}

// Crawler walks a remote directory-listing tree breadth-first and feeds
// what it finds to a single database writer. Fetches run under a global
// concurrency limit with a pacing delay per request.
type Crawler struct {
	db        *database.Database
	client    *http.Client
	base      *url.URL
	userAgent string
	delay     time.Duration
	batchSize int

	sem   *semaphore.Weighted
	cache *lru.Cache[string, string]

	dirsCrawled atomic.Int64
	dirsSkipped atomic.Int64
	filesFound  atomic.Int64
	errorCount  atomic.Int64
}

// New creates a Crawler for the given base listing URL.
func New(db *database.Database, cfg Config) (*Crawler, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q is not http(s)", cfg.BaseURL)
	}

	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = defaultBatchSize
	}

	cache, err := lru.New[string, string](fingerprintCacheSize)
	if err != nil {
		return nil, err
	}

	return &Crawler{
		db:        db,
		client:    &http.Client{Timeout: cfg.Timeout},
		base:      base,
		userAgent: cfg.UserAgent,
		delay:     cfg.Delay,
		batchSize: cfg.BatchSize,
		sem:       semaphore.NewWeighted(int64(cfg.Concurrency)),
		cache:     cache,
	}, nil
}

// Run executes one crawl. full forces a re-crawl of every directory;
// otherwise directories whose listing fingerprint is unchanged are skipped
// along with their entire subtree.
//
// Returns database.ErrCrawlInProgress when another crawl is already
// running.
func (c *Crawler) Run(ctx context.Context, full bool) error {
	if err := c.db.StartCrawl(ctx); err != nil {
		return err
	}

	mode := "incremental"
	if full {
		mode = "full"
	}

	allowed, err := c.robotsAllowed(ctx)
	if err != nil {
		logging.Warn("robots.txt check failed, proceeding: %v", err)
	}
	if !allowed {
		msg := "crawl disallowed by robots.txt"
		logging.Error("%s", msg)
		metrics.CrawlerRunsTotal.WithLabelValues(mode, "error").Inc()
		if finishErr := c.db.FinishCrawl(ctx, database.CrawlStatusError, 0, 0, 1, msg); finishErr != nil {
			return finishErr
		}
		return fmt.Errorf("%s", msg)
	}

	logging.Info("Starting %s crawl of %s", mode, c.base)
	start := time.Now()

	metrics.CrawlerIsRunning.Set(1)
	defer metrics.CrawlerIsRunning.Set(0)

	c.dirsCrawled.Store(0)
	c.dirsSkipped.Store(0)
	c.filesFound.Store(0)
	c.errorCount.Store(0)
	if full {
		c.cache.Purge()
	}

	// The cache learns a hash only once its transaction has committed; a
	// failed flush must not leave the cache claiming the directory is
	// stored, or the next incremental run would skip it.
	w := newWriter(c.db, c.batchSize, progressInterval, !full, func(path, hash string) {
		c.cache.Add(path, hash)
	})
	go w.run()

	var wg sync.WaitGroup
	wg.Add(1)
	go c.crawlDir(ctx, &wg, w, "", full)
	wg.Wait()

	w.close()

	dirs := int(c.dirsCrawled.Load())
	skipped := int(c.dirsSkipped.Load())
	files := int(c.filesFound.Load())
	errCount := int(c.errorCount.Load())
	elapsed := time.Since(start)

	status := database.CrawlStatusIdle
	runErr := w.err()
	if ctx.Err() != nil {
		runErr = ctx.Err()
	}
	if runErr != nil {
		status = database.CrawlStatusError
		errCount++
	}

	msg := fmt.Sprintf("crawled %d dirs (%d skipped), %d files, %d errors in %s",
		dirs, skipped, files, errCount, elapsed.Round(time.Second))
	if runErr != nil {
		msg = fmt.Sprintf("%s; aborted: %v", msg, runErr)
	}
	logging.Info("Crawl finished: %s", msg)

	result := "success"
	if runErr != nil {
		result = "error"
	}
	metrics.CrawlerRunsTotal.WithLabelValues(mode, result).Inc()
	metrics.CrawlerLastRunTimestamp.Set(float64(time.Now().Unix()))
	metrics.CrawlerLastRunDuration.Set(elapsed.Seconds())

	if err := c.db.FinishCrawl(context.Background(), status, dirs, files, errCount, msg); err != nil {
		return err
	}
	return runErr
}

// crawlDir fetches and processes one directory, then recurses into its
// subdirectories. Errors are isolated to the branch: they are counted and
// logged, and the rest of the tree continues.
func (c *Crawler) crawlDir(ctx context.Context, wg *sync.WaitGroup, w *writer, dirPath string, full bool) {
	defer wg.Done()

	if ctx.Err() != nil {
		return
	}

	rows, etag, lastModified, err := c.fetchListing(ctx, dirPath)
	if err != nil {
		if ctx.Err() == nil {
			logging.Warn("Failed to crawl %q: %v", dirPath, err)
			c.errorCount.Add(1)
			metrics.CrawlerErrors.Inc()
		}
		return
	}

	hash := extract.Fingerprint(rows)

	if !full && hash == c.storedHash(ctx, dirPath) {
		// Unchanged listing: nothing to write, and since any change below
		// would have changed a child's size or date here, the subtree is
		// skipped too.
		c.dirsSkipped.Add(1)
		metrics.CrawlerDirsSkipped.Inc()
		return
	}

	entries := make([]database.Entry, 0, len(rows))
	keep := make(map[string]struct{}, len(rows))
	var subdirs []string
	fileCount := 0

	for _, row := range rows {
		if suspiciousName(row.Name) {
			logging.Warn("Skipping suspicious name %q under %q", row.Name, dirPath)
			continue
		}

		entry := extract.BuildEntry(row, dirPath)
		if entry.Path == "" || entry.Path == dirPath {
			continue
		}
		entries = append(entries, entry)
		keep[row.Name] = struct{}{}

		if row.IsDirectory {
			subdirs = append(subdirs, entry.Path)
		} else {
			fileCount++
		}
	}

	w.submit(dirResult{
		path:    dirPath,
		entries: entries,
		keep:    keep,
		fingerprint: &database.Fingerprint{
			Path:         dirPath,
			ETag:         etag,
			LastModified: lastModified,
			EntryCount:   len(rows),
			ContentHash:  hash,
		},
	})

	c.filesFound.Add(int64(fileCount))
	metrics.CrawlerFilesFound.Add(float64(fileCount))
	metrics.CrawlerDirsCrawled.Inc()

	if dirs := c.dirsCrawled.Add(1); dirs%progressInterval == 0 {
		logging.Info("Crawl progress: %d dirs, %d files, %d skipped",
			dirs, c.filesFound.Load(), c.dirsSkipped.Load())
		if err := c.db.UpdateCrawlProgress(context.Background(),
			int(dirs), int(c.filesFound.Load()), int(c.errorCount.Load())); err != nil {
			logging.Warn("Failed to persist crawl progress: %v", err)
		}
	}

	for _, sub := range subdirs {
		wg.Add(1)
		go c.crawlDir(ctx, wg, w, sub, full)
	}
}

// fetchListing GETs one directory listing under the global concurrency
// limit, applying the pacing delay while the permit is held.
func (c *Crawler) fetchListing(ctx context.Context, dirPath string) (rows []listing.Row, etag, lastModified string, err error) {
	if err = c.sem.Acquire(ctx, 1); err != nil {
		return nil, "", "", err
	}
	defer c.sem.Release(1)

	if c.delay > 0 {
		time.Sleep(c.delay)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.listingURL(dirPath), nil)
	if err != nil {
		return nil, "", "", err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.CrawlerHTTPRequests.WithLabelValues("error").Inc()
		return nil, "", "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	metrics.CrawlerHTTPRequests.WithLabelValues(statusBucket(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		return nil, "", "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	rows, err = listing.Parse(resp.Body)
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to parse listing: %w", err)
	}

	return rows, resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), nil
}

// listingURL builds the request URL for a canonical directory path.
func (c *Crawler) listingURL(dirPath string) string {
	u := *c.base
	if dirPath != "" {
		u.Path = path.Join(u.Path, dirPath) + "/"
	}
	return u.String()
}

// storedHash returns the last stored content hash for a directory, reading
// through the LRU cache to the fingerprints table. "" means never crawled.
func (c *Crawler) storedHash(ctx context.Context, dirPath string) string {
	if hash, ok := c.cache.Get(dirPath); ok {
		return hash
	}

	fp, err := c.db.GetFingerprint(ctx, dirPath)
	if err != nil {
		logging.Warn("Failed to load fingerprint for %q: %v", dirPath, err)
		return ""
	}
	if fp == nil {
		return ""
	}

	c.cache.Add(dirPath, fp.ContentHash)
	return fp.ContentHash
}

// suspiciousName reports directory names that would corrupt the path
// hierarchy if followed, like "." links some listings emit.
func suspiciousName(name string) bool {
	return name == "" || strings.HasPrefix(name, ".") || strings.Contains(name, "/")
}

func statusBucket(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// CrawlCounts exposes the live counters for status reporting.
func (c *Crawler) CrawlCounts() (dirs, skipped, files, errors int) {
	return int(c.dirsCrawled.Load()), int(c.dirsSkipped.Load()),
		int(c.filesFound.Load()), int(c.errorCount.Load())
}
