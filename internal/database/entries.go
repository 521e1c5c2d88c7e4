package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"myrient-search/internal/metrics"
)

// UpsertEntries inserts or updates a batch of entries within a transaction.
// Conflicts on path update in place, preserving the rowid so the FTS
// triggers fire as an UPDATE rather than a delete/insert pair.
// Empty optional fields are stored as NULL so the aggregate queries can
// filter on IS NOT NULL.
func (d *Database) UpsertEntries(tx *sql.Tx, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_entries", start, err) }()

	query := `
	INSERT INTO entries (path, name, is_directory, file_size, last_modified,
		collection, platform, region, file_type, parent_path, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, strftime('%s', 'now'))
	ON CONFLICT(path) DO UPDATE SET
		name = excluded.name,
		is_directory = excluded.is_directory,
		file_size = excluded.file_size,
		last_modified = excluded.last_modified,
		collection = excluded.collection,
		platform = excluded.platform,
		region = excluded.region,
		file_type = excluded.file_type,
		parent_path = excluded.parent_path,
		updated_at = strftime('%s', 'now')
	`

	// Use background context since we're within a transaction.
	// The transaction itself controls the operation's lifecycle.
	stmt, err := tx.PrepareContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for i := range entries {
		e := &entries[i]
		_, err = stmt.ExecContext(context.Background(),
			e.Path,
			e.Name,
			boolToInt(e.IsDirectory),
			nullable(e.FileSize),
			nullable(e.LastModified),
			nullable(e.Collection),
			nullable(e.Platform),
			nullable(e.Region),
			nullable(e.FileType),
			e.ParentPath,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert entry %q: %w", e.Path, err)
		}
	}

	metrics.DBRowsAffected.WithLabelValues("upsert_entries").Observe(float64(len(entries)))
	return nil
}

// RemoveMissing deletes direct children of parentPath that are not in the
// keep set, returning the removed paths. Directory children are removed with
// their whole subtree and fingerprint records.
// Must be called within a transaction.
func (d *Database) RemoveMissing(tx *sql.Tx, parentPath string, keep map[string]struct{}) ([]string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("remove_missing", start, err) }()

	rows, err := tx.QueryContext(context.Background(),
		"SELECT id, path, name, is_directory FROM entries WHERE parent_path = ?",
		parentPath,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list children of %q: %w", parentPath, err)
	}

	type victim struct {
		id    int64
		path  string
		isDir bool
	}
	var victims []victim

	for rows.Next() {
		var (
			id    int64
			path  string
			name  string
			isDir int
		)
		if err = rows.Scan(&id, &path, &name, &isDir); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan child row: %w", err)
		}
		if _, ok := keep[name]; !ok {
			victims = append(victims, victim{id: id, path: path, isDir: isDir != 0})
		}
	}
	if err = rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(victims) == 0 {
		return nil, nil
	}

	removed := make([]string, 0, len(victims))
	for _, v := range victims {
		if _, err = tx.ExecContext(context.Background(), "DELETE FROM entries WHERE id = ?", v.id); err != nil {
			return nil, fmt.Errorf("failed to delete %q: %w", v.path, err)
		}
		removed = append(removed, v.path)

		if v.isDir {
			// Row-by-row subtree deletion keeps the FTS delete triggers in
			// step with the primary table.
			prefix := likeEscape(v.path) + "%"
			var sub *sql.Rows
			sub, err = tx.QueryContext(context.Background(),
				"SELECT id FROM entries WHERE path LIKE ? ESCAPE '\\'", prefix)
			if err != nil {
				return nil, fmt.Errorf("failed to list subtree of %q: %w", v.path, err)
			}
			var subIDs []int64
			for sub.Next() {
				var id int64
				if err = sub.Scan(&id); err != nil {
					_ = sub.Close()
					return nil, err
				}
				subIDs = append(subIDs, id)
			}
			if err = sub.Err(); err != nil {
				_ = sub.Close()
				return nil, err
			}
			_ = sub.Close()

			for _, id := range subIDs {
				if _, err = tx.ExecContext(context.Background(), "DELETE FROM entries WHERE id = ?", id); err != nil {
					return nil, err
				}
			}

			if _, err = tx.ExecContext(context.Background(),
				"DELETE FROM fingerprints WHERE path = ? OR path LIKE ? ESCAPE '\\'",
				v.path, prefix); err != nil {
				return nil, fmt.Errorf("failed to purge fingerprints under %q: %w", v.path, err)
			}
		}
	}

	metrics.DBRowsAffected.WithLabelValues("remove_missing").Observe(float64(len(removed)))
	return removed, nil
}

// EntryCount returns the total number of rows in the entries table.
func (d *Database) EntryCount(ctx context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&count)
	return count, err
}

// GetEntryByPath retrieves a single entry by its canonical path.
func (d *Database) GetEntryByPath(ctx context.Context, path string) (*Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `
	SELECT id, path, name, is_directory, file_size, last_modified,
		collection, platform, region, file_type, parent_path
	FROM entries WHERE path = ?
	`, path)

	entry, err := scanEntry(row)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e            Entry
		isDir        int
		fileSize     sql.NullString
		lastModified sql.NullString
		collection   sql.NullString
		platform     sql.NullString
		region       sql.NullString
		fileType     sql.NullString
	)
	err := row.Scan(&e.ID, &e.Path, &e.Name, &isDir, &fileSize, &lastModified,
		&collection, &platform, &region, &fileType, &e.ParentPath)
	if err != nil {
		return nil, err
	}
	e.IsDirectory = isDir != 0
	e.FileSize = fileSize.String
	e.LastModified = lastModified.String
	e.Collection = collection.String
	e.Platform = platform.String
	e.Region = region.String
	e.FileType = fileType.String
	return &e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullable maps "" to NULL so optional columns stay NULL-clean.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// likeEscape escapes LIKE metacharacters in a literal prefix.
func likeEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
