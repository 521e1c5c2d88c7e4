package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"myrient-search/internal/logging"
)

// ErrCrawlInProgress is returned by StartCrawl when the state row already
// says "crawling". Handlers map it to 409 Conflict.
var ErrCrawlInProgress = errors.New("a crawl is already in progress")

// GetCrawlState returns the singleton crawl status row.
func (d *Database) GetCrawlState(ctx context.Context) (*CrawlState, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var (
		state      CrawlState
		startedAt  sql.NullString
		finishedAt sql.NullString
		message    sql.NullString
	)
	err := d.db.QueryRowContext(ctx, `
	SELECT status, started_at, finished_at, dirs_crawled, files_found, errors, message
	FROM crawl_state WHERE id = 1
	`).Scan(&state.Status, &startedAt, &finishedAt,
		&state.DirsCrawled, &state.FilesFound, &state.Errors, &message)
	if err != nil {
		return nil, fmt.Errorf("failed to read crawl state: %w", err)
	}

	state.StartedAt = startedAt.String
	state.FinishedAt = finishedAt.String
	state.Message = message.String
	return &state, nil
}

// StartCrawl transitions the crawl state to "crawling" and resets the run
// counters. It fails when a crawl is already marked running, which is how
// concurrent sync requests are rejected.
func (d *Database) StartCrawl(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, `
	UPDATE crawl_state
	SET status = ?, started_at = datetime('now'), finished_at = NULL,
		dirs_crawled = 0, files_found = 0, errors = 0, message = NULL
	WHERE id = 1 AND status != ?
	`, CrawlStatusCrawling, CrawlStatusCrawling)
	if err != nil {
		return fmt.Errorf("failed to start crawl: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrCrawlInProgress
	}
	return nil
}

// UpdateCrawlProgress updates the running counters of an active crawl.
func (d *Database) UpdateCrawlProgress(ctx context.Context, dirs, files, errCount int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, `
	UPDATE crawl_state SET dirs_crawled = ?, files_found = ?, errors = ? WHERE id = 1
	`, dirs, files, errCount)
	return err
}

// FinishCrawl records the terminal state of a crawl run.
func (d *Database) FinishCrawl(ctx context.Context, status string, dirs, files, errCount int, message string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, `
	UPDATE crawl_state
	SET status = ?, finished_at = datetime('now'),
		dirs_crawled = ?, files_found = ?, errors = ?, message = ?
	WHERE id = 1
	`, status, dirs, files, errCount, nullable(message))
	return err
}

// RecoverStaleCrawl resets a crawl left in "crawling" by an unclean
// shutdown. The row goes back to idle rather than error: a stuck
// "crawling" status would block manual syncs with 409s forever, and the
// interruption itself is not a fault of the current process. Called once
// at startup, before the scheduler is armed.
func (d *Database) RecoverStaleCrawl(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, `
	UPDATE crawl_state
	SET status = ?, finished_at = datetime('now'), message = 'interrupted by restart'
	WHERE id = 1 AND status = ?
	`, CrawlStatusIdle, CrawlStatusCrawling)
	if err != nil {
		return fmt.Errorf("failed to recover crawl state: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		logging.Warn("Previous crawl was interrupted; reset to idle")
	}
	return nil
}
