// Package database provides SQLite-backed storage for the archive index:
// the entries table with its FTS5 shadow index, per-directory crawl
// fingerprints, and the singleton crawl status row. All full-text queries,
// filter aggregates and the browse listing live here.
package database
