package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"myrient-search/internal/logging"
	"myrient-search/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Database manages all storage operations for the archive index.
type Database struct {
	db      *sql.DB
	dbPath  string
	mu      sync.RWMutex
	txStart time.Time // Track transaction start time for metrics
}

// New creates a new Database instance.
// IMPORTANT: dbPath should be the full path to the database FILE (e.g., "/data/index.db"),
// and the parent directory must already exist and be writable.
// Use startup.LoadConfig() to ensure proper directory validation before calling this.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	// Diagnose potential permission issues
	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// Use WAL mode and other optimizations
	// busy_timeout helps prevent "database is locked" errors
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Allow multiple readers - increased for better concurrency under load
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("initialize_schema", start, err) }()

	schema := `
	-- Main entries table: one row per file or directory in the archive
	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		is_directory INTEGER NOT NULL DEFAULT 0,
		file_size TEXT,
		last_modified TEXT,
		collection TEXT,
		platform TEXT,
		region TEXT,
		file_type TEXT,
		parent_path TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_entries_parent_path ON entries(parent_path);
	CREATE INDEX IF NOT EXISTS idx_entries_collection ON entries(collection);
	CREATE INDEX IF NOT EXISTS idx_entries_platform ON entries(platform);
	CREATE INDEX IF NOT EXISTS idx_entries_region ON entries(region);
	CREATE INDEX IF NOT EXISTS idx_entries_file_type ON entries(file_type);
	CREATE INDEX IF NOT EXISTS idx_entries_name ON entries(name COLLATE NOCASE);

	-- Composite index for the browse and aggregate queries
	CREATE INDEX IF NOT EXISTS idx_entries_dir_collection ON entries(is_directory, collection);

	-- Full-text search shadow table, kept in sync by triggers
	CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
		name,
		path,
		collection,
		platform,
		region,
		content='entries',
		content_rowid='id',
		tokenize='unicode61 remove_diacritics 2'
	);

	CREATE TRIGGER IF NOT EXISTS entries_ai AFTER INSERT ON entries BEGIN
		INSERT INTO entries_fts(rowid, name, path, collection, platform, region)
		VALUES (new.id, new.name, new.path, new.collection, new.platform, new.region);
	END;

	CREATE TRIGGER IF NOT EXISTS entries_ad AFTER DELETE ON entries BEGIN
		INSERT INTO entries_fts(entries_fts, rowid, name, path, collection, platform, region)
		VALUES('delete', old.id, old.name, old.path, old.collection, old.platform, old.region);
	END;

	CREATE TRIGGER IF NOT EXISTS entries_au AFTER UPDATE ON entries BEGIN
		INSERT INTO entries_fts(entries_fts, rowid, name, path, collection, platform, region)
		VALUES('delete', old.id, old.name, old.path, old.collection, old.platform, old.region);
		INSERT INTO entries_fts(rowid, name, path, collection, platform, region)
		VALUES (new.id, new.name, new.path, new.collection, new.platform, new.region);
	END;

	-- Per-directory change detection records
	CREATE TABLE IF NOT EXISTS fingerprints (
		path TEXT PRIMARY KEY,
		etag TEXT,
		last_modified TEXT,
		entry_count INTEGER NOT NULL DEFAULT 0,
		last_crawled TEXT
	);

	-- Singleton crawl status row
	CREATE TABLE IF NOT EXISTS crawl_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		status TEXT NOT NULL DEFAULT 'idle',
		started_at TEXT,
		finished_at TEXT,
		dirs_crawled INTEGER NOT NULL DEFAULT 0,
		files_found INTEGER NOT NULL DEFAULT 0,
		errors INTEGER NOT NULL DEFAULT 0,
		message TEXT
	);

	INSERT OR IGNORE INTO crawl_state (id, status) VALUES (1, 'idle');

	-- Metadata table
	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	_, err = d.db.ExecContext(ctx, schema)
	if err != nil {
		return err
	}

	// Run migrations
	err = d.runMigrations(ctx)
	return err
}

// runMigrations applies database schema migrations
func (d *Database) runMigrations(ctx context.Context) error {
	// Migration 1: Add content_hash column to fingerprints if it doesn't exist
	var columnExists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('fingerprints')
		WHERE name='content_hash'
	`).Scan(&columnExists)

	if err != nil {
		return fmt.Errorf("failed to check for content_hash column: %w", err)
	}

	if !columnExists {
		logging.Info("Migrating database: adding content_hash column to fingerprints table")

		_, err = d.db.ExecContext(ctx, `
			ALTER TABLE fingerprints ADD COLUMN content_hash TEXT NOT NULL DEFAULT ''
		`)
		if err != nil {
			return fmt.Errorf("failed to add content_hash column: %w", err)
		}

		logging.Info("Migration complete: content_hash column added")
	}

	// Migration 2: Index on last_modified for date sorting
	_, err = d.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_entries_last_modified ON entries(last_modified)
	`)
	if err != nil {
		return fmt.Errorf("failed to create last_modified index: %w", err)
	}

	// Migration 3: Normalize legacy "YYYY-MM-DD HH:MM" dates to ISO 8601.
	// Gated on a metadata flag so the rewrite runs once.
	var done string
	err = d.db.QueryRowContext(ctx, `
		SELECT value FROM metadata WHERE key = 'dates_normalized'
	`).Scan(&done)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check dates_normalized flag: %w", err)
	}

	if done != "1" {
		result, err := d.db.ExecContext(ctx, `
			UPDATE entries
			SET last_modified = replace(last_modified, ' ', 'T') || ':00'
			WHERE last_modified GLOB '[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9] [0-9][0-9]:[0-9][0-9]'
		`)
		if err != nil {
			return fmt.Errorf("failed to normalize legacy dates: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows > 0 {
			logging.Info("Migration: normalized %d legacy date values", rows)
		}

		_, err = d.db.ExecContext(ctx, `
			INSERT INTO metadata (key, value) VALUES ('dates_normalized', '1')
			ON CONFLICT(key) DO UPDATE SET value = '1'
		`)
		if err != nil {
			return fmt.Errorf("failed to set dates_normalized flag: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// BeginBatch starts a transaction for batch operations.
// The caller is responsible for calling EndBatch when done.
// Note: Acquires write lock only during transaction begin, not for entire duration.
func (d *Database) BeginBatch() (*sql.Tx, error) {
	// Use shorter-lived lock - only protect transaction creation
	d.mu.Lock()
	txStart := time.Now()

	// Use background context - transaction lifetime is managed by EndBatch, not a timeout.
	// The timeout context pattern doesn't work here because defer cancel() would
	// cancel the transaction immediately when this function returns.
	tx, err := d.db.BeginTx(context.Background(), nil)
	d.mu.Unlock() // Release lock immediately after transaction starts

	if err != nil {
		return nil, err
	}

	d.txStart = txStart

	return tx, nil
}

// EndBatch commits or rolls back a transaction.
func (d *Database) EndBatch(tx *sql.Tx, err error) error {
	// Record transaction duration (txStart set by BeginBatch)
	duration := time.Since(d.txStart).Seconds()

	if err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(duration)
		rbErr := tx.Rollback()
		if rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(duration)
	return tx.Commit()
}

// RebuildFTS rebuilds the full-text search index from the entries table.
func (d *Database) RebuildFTS() error {
	start := time.Now()
	var err error
	defer func() { recordQuery("rebuild_fts", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "INSERT INTO entries_fts(entries_fts) VALUES('rebuild')")
	return err
}

// Optimize refreshes the query planner statistics and truncates the WAL.
func (d *Database) Optimize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if _, err := d.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return fmt.Errorf("analyze failed: %w", err)
	}
	if _, err := d.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint failed: %w", err)
	}
	return nil
}

// Vacuum optimizes the database.
func (d *Database) Vacuum() error {
	start := time.Now()
	var err error
	defer func() { recordQuery("vacuum", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "VACUUM")
	return err
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	// Check if directory is writable by testing
	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile) // Explicitly ignore cleanup error
	logging.Debug("Database directory is writable")

	if dbInfo, err := os.Stat(dbPath); err == nil {
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", dbPath, dbInfo.Mode(), dbInfo.Size())
		if dbInfo.Mode().Perm()&0o200 == 0 {
			logging.Warn("Database file is read-only! Mode: %v", dbInfo.Mode())
		}
	}

	return nil
}
