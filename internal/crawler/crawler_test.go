package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"myrient-search/internal/database"
)

// fakeArchive serves a mutable nginx-style listing tree and counts the
// requests it sees.
type fakeArchive struct {
	mu     sync.Mutex
	pages  map[string]string // request path -> listing HTML
	fail   map[string]int    // request path -> status to return
	hits   map[string]int
	robots string
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		pages: map[string]string{},
		fail:  map[string]int{},
		hits:  map[string]int{},
	}
}

func (f *fakeArchive) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.hits[req.URL.Path]++

	if req.URL.Path == "/robots.txt" {
		if f.robots == "" {
			http.NotFound(rw, req)
			return
		}
		_, _ = rw.Write([]byte(f.robots))
		return
	}

	if status, ok := f.fail[req.URL.Path]; ok {
		rw.WriteHeader(status)
		return
	}

	page, ok := f.pages[req.URL.Path]
	if !ok {
		http.NotFound(rw, req)
		return
	}
	_, _ = rw.Write([]byte(page))
}

func (f *fakeArchive) set(path, page string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[path] = page
}

func (f *fakeArchive) hitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

type listingRow struct {
	name string
	size string
	date string
}

func listingPage(rows []listingRow) string {
	var b strings.Builder
	b.WriteString(`<html><body><table id="list">`)
	b.WriteString(`<tr><td class="link"><a href="../">../</a></td><td class="size">-</td><td class="date"></td></tr>`)
	for _, r := range rows {
		href := strings.ReplaceAll(r.name, " ", "%20")
		b.WriteString(fmt.Sprintf(
			`<tr><td class="link"><a href="%s">%s</a></td><td class="size">%s</td><td class="date">%s</td></tr>`,
			href, r.name, r.size, r.date))
	}
	b.WriteString(`</table></body></html>`)
	return b.String()
}

// seedArchive installs a small two-collection tree.
func seedArchive(f *fakeArchive) {
	f.set("/files/", listingPage([]listingRow{
		{"No-Intro/", "-", "2024-01-15 10:30"},
		{"Redump/", "-", "2024-02-01 08:00"},
	}))
	f.set("/files/No-Intro/", listingPage([]listingRow{
		{"Nintendo - Game Boy/", "-", "2024-01-15 10:30"},
	}))
	f.set("/files/No-Intro/Nintendo - Game Boy/", listingPage([]listingRow{
		{"Legend of Zelda, The (USA).zip", "512.3 KiB", "2024-01-15 10:30"},
		{"Super Mario Land (World).zip", "101.2 KiB", "2024-01-10 09:00"},
	}))
	f.set("/files/Redump/", listingPage([]listingRow{
		{"Sony - PlayStation/", "-", "2024-02-01 08:00"},
	}))
	f.set("/files/Redump/Sony - PlayStation/", listingPage([]listingRow{
		{"Gran Turismo (Europe).zip", "350.0 MiB", "2023-11-05 19:45"},
	}))
}

func setupCrawler(t *testing.T) (*Crawler, *database.Database, *fakeArchive) {
	t.Helper()

	archive := newFakeArchive()
	seedArchive(archive)
	srv := httptest.NewServer(archive)
	t.Cleanup(srv.Close)

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	c, err := New(db, Config{
		BaseURL:     srv.URL + "/files/",
		UserAgent:   "test-crawler/1.0",
		Concurrency: 4,
		Timeout:     5 * time.Second,
		BatchSize:   3, // small batch to exercise mid-crawl flushes
	})
	if err != nil {
		t.Fatalf("failed to create crawler: %v", err)
	}
	return c, db, archive
}

func TestFullCrawl(t *testing.T) {
	c, db, _ := setupCrawler(t)

	if err := c.Run(context.Background(), true); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	count, err := db.EntryCount(context.Background())
	if err != nil {
		t.Fatalf("EntryCount failed: %v", err)
	}
	// 4 directories + 3 files
	if count != 7 {
		t.Errorf("entry count = %d, want 7", count)
	}

	entry, err := db.GetEntryByPath(context.Background(),
		"No-Intro/Nintendo - Game Boy/Legend of Zelda, The (USA).zip")
	if err != nil {
		t.Fatalf("expected entry missing: %v", err)
	}
	if entry.Collection != "No-Intro" || entry.Platform != "Nintendo - Game Boy" ||
		entry.Region != "USA" || entry.FileType != "zip" {
		t.Errorf("metadata not extracted: %+v", entry)
	}
	if entry.LastModified != "2024-01-15T10:30:00" {
		t.Errorf("date not normalized: %q", entry.LastModified)
	}

	// Every crawled directory, including the root, has a fingerprint, and
	// the in-process cache learned it once the write committed.
	for _, dir := range []string{"", "No-Intro/", "Redump/Sony - PlayStation/"} {
		fp, err := db.GetFingerprint(context.Background(), dir)
		if err != nil {
			t.Fatalf("GetFingerprint(%q) failed: %v", dir, err)
		}
		if fp == nil || fp.ContentHash == "" {
			t.Errorf("no fingerprint for %q", dir)
		}
		if cached, ok := c.cache.Get(dir); !ok || cached != fp.ContentHash {
			t.Errorf("cache for %q = %q, want stored hash %q", dir, cached, fp.ContentHash)
		}
	}

	state, err := db.GetCrawlState(context.Background())
	if err != nil {
		t.Fatalf("GetCrawlState failed: %v", err)
	}
	if state.Status != database.CrawlStatusIdle {
		t.Errorf("status = %q, want idle", state.Status)
	}
	if state.DirsCrawled != 5 {
		t.Errorf("dirs crawled = %d, want 5", state.DirsCrawled)
	}
	if state.FilesFound != 3 {
		t.Errorf("files found = %d, want 3", state.FilesFound)
	}
}

func TestIncrementalSkipsUnchangedSubtrees(t *testing.T) {
	c, db, archive := setupCrawler(t)

	if err := c.Run(context.Background(), true); err != nil {
		t.Fatalf("initial crawl failed: %v", err)
	}
	childHits := archive.hitCount("/files/No-Intro/Nintendo - Game Boy/")

	// A cold cache forces unchanged detection to work from the stored
	// fingerprints alone.
	c.cache.Purge()

	if err := c.Run(context.Background(), false); err != nil {
		t.Fatalf("incremental crawl failed: %v", err)
	}

	// Nothing changed: the root fingerprint matches, so no child listing
	// is fetched again.
	if got := archive.hitCount("/files/No-Intro/Nintendo - Game Boy/"); got != childHits {
		t.Errorf("unchanged subtree was refetched: hits %d -> %d", childHits, got)
	}

	state, err := db.GetCrawlState(context.Background())
	if err != nil {
		t.Fatalf("GetCrawlState failed: %v", err)
	}
	if state.DirsCrawled != 0 {
		t.Errorf("incremental run crawled %d dirs, want 0", state.DirsCrawled)
	}
	if !strings.Contains(state.Message, "1 skipped") {
		t.Errorf("message = %q, want a skip count of 1", state.Message)
	}
}

func TestIncrementalFollowsChangedBranch(t *testing.T) {
	c, db, archive := setupCrawler(t)

	if err := c.Run(context.Background(), true); err != nil {
		t.Fatalf("initial crawl failed: %v", err)
	}
	psxHits := archive.hitCount("/files/Redump/Sony - PlayStation/")

	// A new file lands in the Game Boy directory. Listing servers bump the
	// parent chain's dates, which is what makes the change visible at the
	// root.
	archive.set("/files/No-Intro/Nintendo - Game Boy/", listingPage([]listingRow{
		{"Legend of Zelda, The (USA).zip", "512.3 KiB", "2024-01-15 10:30"},
		{"Super Mario Land (World).zip", "101.2 KiB", "2024-01-10 09:00"},
		{"Tetris (World).zip", "45.8 KiB", "2024-03-01 12:00"},
	}))
	archive.set("/files/No-Intro/", listingPage([]listingRow{
		{"Nintendo - Game Boy/", "-", "2024-03-01 12:00"},
	}))
	archive.set("/files/", listingPage([]listingRow{
		{"No-Intro/", "-", "2024-03-01 12:00"},
		{"Redump/", "-", "2024-02-01 08:00"},
	}))

	c.cache.Purge()
	if err := c.Run(context.Background(), false); err != nil {
		t.Fatalf("incremental crawl failed: %v", err)
	}

	if _, err := db.GetEntryByPath(context.Background(),
		"No-Intro/Nintendo - Game Boy/Tetris (World).zip"); err != nil {
		t.Errorf("new file not indexed: %v", err)
	}

	// Redump itself is fetched to compare fingerprints, but its unchanged
	// subtree is not descended into.
	if got := archive.hitCount("/files/Redump/Sony - PlayStation/"); got != psxHits {
		t.Errorf("unchanged subtree was refetched: hits %d -> %d", psxHits, got)
	}
}

// dropMarioListing removes Super Mario Land from the Game Boy directory and
// bumps the parent chain's dates to the given one, the way a listing server
// surfaces a change below.
func dropMarioListing(archive *fakeArchive, date string) {
	archive.set("/files/No-Intro/Nintendo - Game Boy/", listingPage([]listingRow{
		{"Legend of Zelda, The (USA).zip", "512.3 KiB", date},
	}))
	archive.set("/files/No-Intro/", listingPage([]listingRow{
		{"Nintendo - Game Boy/", "-", date},
	}))
	archive.set("/files/", listingPage([]listingRow{
		{"No-Intro/", "-", date},
		{"Redump/", "-", "2024-02-01 08:00"},
	}))
}

func TestIncrementalRemovesVanishedEntries(t *testing.T) {
	c, db, archive := setupCrawler(t)

	if err := c.Run(context.Background(), true); err != nil {
		t.Fatalf("initial crawl failed: %v", err)
	}

	dropMarioListing(archive, "2024-03-10 14:00")

	if err := c.Run(context.Background(), false); err != nil {
		t.Fatalf("incremental crawl failed: %v", err)
	}

	if _, err := db.GetEntryByPath(context.Background(),
		"No-Intro/Nintendo - Game Boy/Super Mario Land (World).zip"); err == nil {
		t.Error("vanished entry still present")
	}
	if _, err := db.GetEntryByPath(context.Background(),
		"No-Intro/Nintendo - Game Boy/Legend of Zelda, The (USA).zip"); err != nil {
		t.Errorf("surviving entry removed: %v", err)
	}
}

// Full crawls re-enumerate the whole tree and leave reconciliation of
// vanished rows to incremental runs.
func TestFullCrawlLeavesReconciliationToIncremental(t *testing.T) {
	c, db, archive := setupCrawler(t)

	if err := c.Run(context.Background(), true); err != nil {
		t.Fatalf("initial crawl failed: %v", err)
	}

	dropMarioListing(archive, "2024-03-10 14:00")

	if err := c.Run(context.Background(), true); err != nil {
		t.Fatalf("full recrawl failed: %v", err)
	}
	if _, err := db.GetEntryByPath(context.Background(),
		"No-Intro/Nintendo - Game Boy/Super Mario Land (World).zip"); err != nil {
		t.Errorf("full crawl removed the vanished entry: %v", err)
	}

	// The full recrawl refreshed every fingerprint, so the listing has to
	// change again for an incremental run to revisit the directory.
	dropMarioListing(archive, "2024-04-01 09:00")

	if err := c.Run(context.Background(), false); err != nil {
		t.Fatalf("incremental crawl failed: %v", err)
	}
	if _, err := db.GetEntryByPath(context.Background(),
		"No-Intro/Nintendo - Game Boy/Super Mario Land (World).zip"); err == nil {
		t.Error("incremental crawl did not remove the vanished entry")
	}
}

func TestErrorBranchIsolation(t *testing.T) {
	c, db, archive := setupCrawler(t)

	archive.mu.Lock()
	archive.fail["/files/Redump/"] = http.StatusInternalServerError
	archive.mu.Unlock()

	if err := c.Run(context.Background(), true); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// The failing branch is counted but the rest of the tree is indexed.
	if _, err := db.GetEntryByPath(context.Background(),
		"No-Intro/Nintendo - Game Boy/Legend of Zelda, The (USA).zip"); err != nil {
		t.Errorf("healthy branch not indexed: %v", err)
	}

	state, err := db.GetCrawlState(context.Background())
	if err != nil {
		t.Fatalf("GetCrawlState failed: %v", err)
	}
	if state.Errors != 1 {
		t.Errorf("errors = %d, want 1", state.Errors)
	}
	if state.Status != database.CrawlStatusIdle {
		t.Errorf("status = %q, want idle (branch errors are not fatal)", state.Status)
	}
}

func TestRobotsDisallowAbortsCrawl(t *testing.T) {
	c, db, archive := setupCrawler(t)

	archive.mu.Lock()
	archive.robots = "User-agent: *\nDisallow: /\n"
	archive.mu.Unlock()

	if err := c.Run(context.Background(), true); err == nil {
		t.Fatal("Run succeeded despite robots.txt disallow")
	}

	count, err := db.EntryCount(context.Background())
	if err != nil {
		t.Fatalf("EntryCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("disallowed crawl wrote %d entries", count)
	}

	state, err := db.GetCrawlState(context.Background())
	if err != nil {
		t.Fatalf("GetCrawlState failed: %v", err)
	}
	if state.Status != database.CrawlStatusError {
		t.Errorf("status = %q, want error", state.Status)
	}
}

func TestConcurrentRunRejected(t *testing.T) {
	c, db, _ := setupCrawler(t)

	if err := db.StartCrawl(context.Background()); err != nil {
		t.Fatalf("StartCrawl failed: %v", err)
	}

	if err := c.Run(context.Background(), false); !errors.Is(err, database.ErrCrawlInProgress) {
		t.Errorf("Run error = %v, want ErrCrawlInProgress", err)
	}
}

func TestSuspiciousName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want bool
	}{
		{".", true},
		{"..", true},
		{".hidden", true},
		{"", true},
		{"a/b", true},
		{"No-Intro", false},
		{"Nintendo - Game Boy", false},
	}
	for _, tt := range tests {
		if got := suspiciousName(tt.name); got != tt.want {
			t.Errorf("suspiciousName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestListingURL(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://example.org/files/")
	if err != nil {
		t.Fatal(err)
	}
	c := &Crawler{base: base}

	tests := []struct {
		dirPath  string
		expected string
	}{
		{"", "https://example.org/files/"},
		{"No-Intro/", "https://example.org/files/No-Intro/"},
		{"No-Intro/Nintendo - Game Boy/", "https://example.org/files/No-Intro/Nintendo%20-%20Game%20Boy/"},
	}
	for _, tt := range tests {
		if got := c.listingURL(tt.dirPath); got != tt.expected {
			t.Errorf("listingURL(%q) = %q, want %q", tt.dirPath, got, tt.expected)
		}
	}
}

func TestWriterFailedFlushIsNotReportedCommitted(t *testing.T) {
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	// Closing the handle makes every batch fail to begin.
	_ = db.Close()

	var mu sync.Mutex
	var committed []string
	w := newWriter(db, 1, 4, true, func(path, hash string) {
		mu.Lock()
		committed = append(committed, path)
		mu.Unlock()
	})
	go w.run()

	w.submit(dirResult{
		path: "No-Intro/",
		entries: []database.Entry{
			{Path: "No-Intro/a.zip", Name: "a.zip", ParentPath: "No-Intro/"},
		},
		keep: map[string]struct{}{"a.zip": {}},
		fingerprint: &database.Fingerprint{
			Path:        "No-Intro/",
			EntryCount:  1,
			ContentHash: "deadbeef",
		},
	})
	w.close()

	if w.err() == nil {
		t.Fatal("expected a write failure")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(committed) != 0 {
		t.Errorf("failed flush reported as committed: %v", committed)
	}
}
