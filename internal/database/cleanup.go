package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"myrient-search/internal/logging"
)

// CleanupMalformedPaths removes entries whose paths contain "." segments.
// These were produced by older crawls of listings whose hrefs started with
// "./"; current crawls normalize paths before writing, so this sweep only
// has work to do on databases carrying legacy rows.
//
// Deletes run through the normal row triggers, then the FTS index is
// rebuilt from scratch and the planner statistics refreshed. Running it on
// a clean database removes nothing and is safe.
func (d *Database) CleanupMalformedPaths(ctx context.Context) (*CleanupReport, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("cleanup_malformed", start, err) }()

	report := &CleanupReport{}

	if report.TotalBefore, err = d.EntryCount(ctx); err != nil {
		return nil, fmt.Errorf("cleanup precount failed: %w", err)
	}

	tx, err := d.BeginBatch()
	if err != nil {
		return nil, fmt.Errorf("cleanup transaction failed: %w", err)
	}

	steps := []struct {
		what  string
		query string
		count *int
	}{
		{"mid-path dot segments", `DELETE FROM entries WHERE path LIKE '%/./%'`, &report.DotSlashMidRemoved},
		{"leading dot segments", `DELETE FROM entries WHERE path LIKE './%'`, &report.DotSlashLeadRemoved},
		{"dot-named entries", `DELETE FROM entries WHERE name = '.'`, &report.DotEntriesRemoved},
		{"malformed fingerprints", `DELETE FROM fingerprints WHERE path LIKE '%/./%' OR path LIKE './%'`, &report.FingerprintsRemoved},
	}

	for _, step := range steps {
		var result sql.Result
		result, err = tx.ExecContext(context.Background(), step.query)
		if err != nil {
			err = fmt.Errorf("cleanup of %s failed: %w", step.what, err)
			return nil, d.EndBatch(tx, err)
		}
		rows, _ := result.RowsAffected()
		*step.count = int(rows)
		if rows > 0 {
			logging.Info("Cleanup: removed %d rows (%s)", rows, step.what)
		}
	}

	if err = d.EndBatch(tx, nil); err != nil {
		return nil, fmt.Errorf("cleanup commit failed: %w", err)
	}

	removed := report.DotSlashMidRemoved + report.DotSlashLeadRemoved + report.DotEntriesRemoved
	if removed > 0 {
		if err = d.RebuildFTS(); err != nil {
			return nil, fmt.Errorf("cleanup FTS rebuild failed: %w", err)
		}
		if err = d.Optimize(); err != nil {
			return nil, fmt.Errorf("cleanup optimize failed: %w", err)
		}
	}

	if report.TotalAfter, err = d.EntryCount(ctx); err != nil {
		return nil, fmt.Errorf("cleanup postcount failed: %w", err)
	}
	report.TotalRemoved = report.TotalBefore - report.TotalAfter

	logging.Info("Cleanup complete: %d entries removed (%d -> %d)",
		report.TotalRemoved, report.TotalBefore, report.TotalAfter)
	return report, nil
}
