package crawler

import (
	"fmt"
	"sync"

	"myrient-search/internal/database"
	"myrient-search/internal/logging"
	"myrient-search/internal/metrics"
)

// dirResult is everything the crawl of one directory produced. The fetch
// goroutines send these to the writer; only the writer touches the database
// write path, so no lock guards the batch buffer.
type dirResult struct {
	// path is the canonical directory path, "" for the root.
	path string
	// entries are the directory's direct children, ready to upsert.
	entries []database.Entry
	// keep is the set of child names present in the fresh listing.
	keep map[string]struct{}
	// fingerprint is written after the entries it covers.
	fingerprint *database.Fingerprint
}

// writer drains dirResults into batched transactions. Entries accumulate
// until batchSize is reached, then one transaction commits the buffered
// entries, the fingerprints of every fully-buffered directory, and — on
// incremental runs — the removal of children that vanished from those
// directories. Fingerprints ride in the same transaction as their entries,
// so a crash can lose work but never record a directory as crawled ahead of
// its rows. committed is invoked per directory only after its transaction
// has committed, so callers never learn a hash that isn't on disk.
type writer struct {
	db          *database.Database
	batchSize   int
	incremental bool
	committed   func(path, hash string)

	results chan dirResult
	done    chan struct{}

	buffer  []database.Entry
	pending []dirResult

	mu       sync.Mutex
	firstErr error
	written  int
	removed  int
}

func newWriter(db *database.Database, batchSize, queueDepth int, incremental bool, committed func(path, hash string)) *writer {
	return &writer{
		db:          db,
		batchSize:   batchSize,
		incremental: incremental,
		committed:   committed,
		results:     make(chan dirResult, queueDepth),
		done:        make(chan struct{}),
	}
}

// run is the writer goroutine body. It exits when the results channel is
// closed and the final flush has committed.
func (w *writer) run() {
	defer close(w.done)

	for result := range w.results {
		metrics.CrawlerWriteQueueDepth.Set(float64(len(w.results)))

		w.buffer = append(w.buffer, result.entries...)
		w.pending = append(w.pending, result)

		if len(w.buffer) >= w.batchSize {
			w.flush()
		}
	}

	w.flush()
	metrics.CrawlerWriteQueueDepth.Set(0)
}

// submit hands one directory's results to the writer.
func (w *writer) submit(result dirResult) {
	w.results <- result
}

// close stops accepting results and blocks until everything buffered has
// been committed.
func (w *writer) close() {
	close(w.results)
	<-w.done
}

func (w *writer) flush() {
	if len(w.pending) == 0 {
		return
	}

	tx, err := w.db.BeginBatch()
	if err != nil {
		w.fail(fmt.Errorf("failed to begin write batch: %w", err))
		w.discard()
		return
	}

	err = w.db.UpsertEntries(tx, w.buffer)

	if err == nil {
		for _, result := range w.pending {
			if err = w.db.PutFingerprint(tx, result.fingerprint); err != nil {
				err = fmt.Errorf("failed to store fingerprint for %q: %w", result.path, err)
				break
			}

			// Full crawls re-enumerate everything anyway; reconciling
			// vanished children is the incremental run's job.
			if !w.incremental {
				continue
			}
			var removed []string
			if removed, err = w.db.RemoveMissing(tx, result.path, result.keep); err != nil {
				err = fmt.Errorf("failed to remove stale children of %q: %w", result.path, err)
				break
			}
			for _, path := range removed {
				logging.Info("Removed vanished entry: %s", path)
			}
			w.removed += len(removed)
		}
	}

	if endErr := w.db.EndBatch(tx, err); endErr != nil {
		w.fail(endErr)
		w.discard()
		return
	}

	if w.committed != nil {
		for _, result := range w.pending {
			w.committed(result.path, result.fingerprint.ContentHash)
		}
	}

	w.written += len(w.buffer)
	logging.Debug("Committed batch: %d entries across %d directories", len(w.buffer), len(w.pending))
	w.discard()
}

func (w *writer) discard() {
	w.buffer = w.buffer[:0]
	w.pending = w.pending[:0]
}

func (w *writer) fail(err error) {
	logging.Error("Writer: %v", err)
	metrics.CrawlerErrors.Inc()

	w.mu.Lock()
	if w.firstErr == nil {
		w.firstErr = err
	}
	w.mu.Unlock()
}

// err returns the first write failure, if any.
func (w *writer) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.firstErr
}
