package main

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"myrient-search/internal/database"
)

type recordingSyncer struct {
	runs atomic.Int32
	full atomic.Bool
}

func (s *recordingSyncer) Run(ctx context.Context, full bool) error {
	s.runs.Add(1)
	s.full.Store(full)
	return nil
}

func newBootDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedBootEntries(t *testing.T, db *database.Database, entries []database.Entry) {
	t.Helper()
	tx, err := db.BeginBatch()
	if err != nil {
		t.Fatalf("BeginBatch: %v", err)
	}
	err = db.UpsertEntries(tx, entries)
	if err := db.EndBatch(tx, err); err != nil {
		t.Fatalf("EndBatch: %v", err)
	}
}

func TestRunInitialCrawlOnEmptyIndex(t *testing.T) {
	db := newBootDB(t)
	syncer := &recordingSyncer{}

	runInitialCrawl(db, syncer)

	if syncer.runs.Load() != 1 {
		t.Fatalf("runs = %d, want 1", syncer.runs.Load())
	}
	if !syncer.full.Load() {
		t.Error("initial crawl should be full")
	}
}

func TestRunInitialCrawlSkipsPopulatedIndex(t *testing.T) {
	db := newBootDB(t)
	seedBootEntries(t, db, []database.Entry{
		{Path: "No-Intro/a.zip", Name: "a.zip", ParentPath: "No-Intro/", FileType: "zip"},
	})
	syncer := &recordingSyncer{}

	runInitialCrawl(db, syncer)

	if syncer.runs.Load() != 0 {
		t.Errorf("runs = %d, want 0 for a populated index", syncer.runs.Load())
	}
}

func TestStartupCleanupRemovesMalformedRows(t *testing.T) {
	db := newBootDB(t)
	seedBootEntries(t, db, []database.Entry{
		{Path: "No-Intro/", Name: "No-Intro", IsDirectory: true, ParentPath: ""},
		{Path: "No-Intro/./bad.zip", Name: "bad.zip", ParentPath: "No-Intro/./", FileType: "zip"},
	})

	startupCleanup(db)

	if _, err := db.GetEntryByPath(context.Background(), "No-Intro/./bad.zip"); err == nil {
		t.Error("malformed row survived startup cleanup")
	}
	if _, err := db.GetEntryByPath(context.Background(), "No-Intro/"); err != nil {
		t.Errorf("well-formed row removed: %v", err)
	}

	// Running again on a clean index is a no-op.
	startupCleanup(db)
}
