package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetFingerprint returns the stored fingerprint for a directory path, or
// (nil, nil) when none has been recorded yet.
func (d *Database) GetFingerprint(ctx context.Context, path string) (*Fingerprint, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_fingerprint", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var (
		fp           Fingerprint
		etag         sql.NullString
		lastModified sql.NullString
		lastCrawled  sql.NullString
	)
	err = d.db.QueryRowContext(ctx, `
	SELECT path, etag, last_modified, entry_count, content_hash, last_crawled
	FROM fingerprints WHERE path = ?
	`, path).Scan(&fp.Path, &etag, &lastModified, &fp.EntryCount, &fp.ContentHash, &lastCrawled)

	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	fp.ETag = etag.String
	fp.LastModified = lastModified.String
	fp.LastCrawled = lastCrawled.String
	return &fp, nil
}

// PutFingerprint stores or replaces a directory fingerprint within a
// transaction. Callers write it in the same transaction as the directory's
// entries so a crash cannot leave a fingerprint ahead of its entries.
func (d *Database) PutFingerprint(tx *sql.Tx, fp *Fingerprint) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("put_fingerprint", start, err) }()

	_, err = tx.ExecContext(context.Background(), `
	INSERT INTO fingerprints (path, etag, last_modified, entry_count, content_hash, last_crawled)
	VALUES (?, ?, ?, ?, ?, datetime('now'))
	ON CONFLICT(path) DO UPDATE SET
		etag = excluded.etag,
		last_modified = excluded.last_modified,
		entry_count = excluded.entry_count,
		content_hash = excluded.content_hash,
		last_crawled = excluded.last_crawled
	`,
		fp.Path,
		nullable(fp.ETag),
		nullable(fp.LastModified),
		fp.EntryCount,
		fp.ContentHash,
	)
	return err
}

// FingerprintCount returns the number of stored directory fingerprints.
func (d *Database) FingerprintCount(ctx context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fingerprints").Scan(&count)
	return count, err
}

// LastCrawled returns the most recent fingerprint timestamp, which doubles
// as the "last synced" value on the stats endpoint.
func (d *Database) LastCrawled(ctx context.Context) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var ts sql.NullString
	err := d.db.QueryRowContext(ctx, "SELECT MAX(last_crawled) FROM fingerprints").Scan(&ts)
	if err != nil {
		return "", err
	}
	return ts.String, nil
}
