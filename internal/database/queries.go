package database

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"myrient-search/internal/metrics"
)

const (
	// DefaultPageSize is used when a request doesn't specify one.
	DefaultPageSize = 50
	// MaxPageSize caps per_page to keep result pages bounded.
	MaxPageSize = 200
)

// ftsStripPattern removes characters that are FTS5 query syntax. Everything
// the user types is treated as literal terms, never as operators.
var ftsStripPattern = regexp.MustCompile(`[+&|/\\~^{}()\[\]<>:;!@#$%]`)

// ftsOperators are bare words FTS5 would parse as operators.
var ftsOperators = map[string]struct{}{
	"AND": {}, "OR": {}, "NOT": {}, "NEAR": {},
}

// prepareSearchTerm turns free text into a safe FTS5 query: strip syntax
// characters, drop operator words, then quote each remaining term as a
// prefix match and require all of them.
//
//	`mario "kart" (USA)` -> `"mario"* AND "kart"* AND "USA"*`
//
// Returns "" when nothing searchable remains.
func prepareSearchTerm(query string) string {
	cleaned := ftsStripPattern.ReplaceAllString(query, " ")
	cleaned = strings.ReplaceAll(cleaned, `"`, " ")

	var terms []string
	for _, word := range strings.Fields(cleaned) {
		if _, isOp := ftsOperators[strings.ToUpper(word)]; isOp {
			continue
		}
		terms = append(terms, `"`+word+`"*`)
	}
	return strings.Join(terms, " AND ")
}

// sortColumns maps the public sort fields to ORDER BY expressions.
// Size and date sort lexicographically on the stored display strings;
// dates are ISO 8601 so that ordering is chronological.
var sortColumns = map[SortField]string{
	SortByName:     "e.name COLLATE NOCASE",
	SortBySize:     "e.file_size",
	SortByType:     "e.file_type",
	SortByRegion:   "e.region",
	SortByPlatform: "e.platform",
	SortByDate:     "e.last_modified",
}

// Search runs a ranked full-text query over the index.
//
// Relevance uses bm25 with heavy weight on the entry name and lighter
// weights on path, collection, platform and region. bm25 returns lower
// values for better matches, so relevance ordering is always ascending no
// matter what sort order the caller asked for.
func (d *Database) Search(ctx context.Context, opts SearchOptions) (*SearchResult, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("search", start, err) }()
	defer func() {
		metrics.SearchQueriesTotal.Inc()
		metrics.SearchQueryDuration.Observe(time.Since(start).Seconds())
	}()

	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = DefaultPageSize
	}
	if opts.PageSize > MaxPageSize {
		opts.PageSize = MaxPageSize
	}

	searchTerm := prepareSearchTerm(opts.Query)
	if searchTerm == "" {
		return &SearchResult{
			Page:    opts.Page,
			PerPage: opts.PageSize,
			Results: []Entry{},
		}, nil
	}

	where := []string{"entries_fts MATCH ?"}
	args := []any{searchTerm}

	addMulti := func(column, values string) {
		vals := splitMulti(values)
		if len(vals) == 0 {
			return
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(vals)), ",")
		where = append(where, fmt.Sprintf("e.%s IN (%s)", column, placeholders))
		for _, v := range vals {
			args = append(args, v)
		}
	}

	addMulti("collection", opts.Collection)
	addMulti("platform", opts.Platform)
	addMulti("region", opts.Region)
	if opts.FileType != "" {
		where = append(where, "e.file_type = ?")
		args = append(args, strings.ToLower(opts.FileType))
	}
	if opts.FilesOnly {
		where = append(where, "e.is_directory = 0")
	}

	whereClause := strings.Join(where, " AND ")

	countQuery := fmt.Sprintf(`
	SELECT COUNT(*)
	FROM entries e
	INNER JOIN entries_fts ON e.id = entries_fts.rowid
	WHERE %s
	`, whereClause)

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var total int
	if err = d.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("search count failed: %w", err)
	}

	pages := (total + opts.PageSize - 1) / opts.PageSize

	orderBy := "rank"
	if col, ok := sortColumns[opts.SortField]; ok && opts.SortField != SortByRelevance {
		dir := "ASC"
		if opts.SortOrder == SortDesc {
			dir = "DESC"
		}
		orderBy = fmt.Sprintf("%s %s, e.name COLLATE NOCASE ASC", col, dir)
	}

	selectQuery := fmt.Sprintf(`
	SELECT e.id, e.path, e.name, e.is_directory, e.file_size, e.last_modified,
		e.collection, e.platform, e.region, e.file_type, e.parent_path,
		bm25(entries_fts, 10.0, 1.0, 5.0, 5.0, 2.0) AS rank
	FROM entries e
	INNER JOIN entries_fts ON e.id = entries_fts.rowid
	WHERE %s
	ORDER BY %s
	LIMIT ? OFFSET ?
	`, whereClause, orderBy)

	offset := (opts.Page - 1) * opts.PageSize
	selectArgs := append(append([]any{}, args...), opts.PageSize, offset)

	rows, err := d.db.QueryContext(ctx, selectQuery, selectArgs...)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	results := []Entry{}
	for rows.Next() {
		var rank float64
		entry, scanErr := scanEntryWith(rows, &rank)
		if scanErr != nil {
			err = scanErr
			return nil, fmt.Errorf("failed to scan search row: %w", scanErr)
		}
		results = append(results, *entry)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return &SearchResult{
		Total:   total,
		Page:    opts.Page,
		PerPage: opts.PageSize,
		Pages:   pages,
		Results: results,
	}, nil
}

// scanEntryWith scans an entry row with one trailing extra column.
func scanEntryWith(row rowScanner, extra ...any) (*Entry, error) {
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
	dest := []any{&e.ID, &e.Path, &e.Name, &isDir, &fileSize, &lastModified,
		&collection, &platform, &region, &fileType, &e.ParentPath}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
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

// splitMulti parses a comma-separated multi-select filter value.
func splitMulti(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Browse lists the direct children of a directory path, directories first,
// each group sorted by name.
func (d *Database) Browse(ctx context.Context, parentPath string, page, pageSize int) (*SearchResult, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("browse", start, err) }()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > 1000 {
		pageSize = 1000
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var total int
	err = d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entries WHERE parent_path = ?", parentPath).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("browse count failed: %w", err)
	}

	pages := (total + pageSize - 1) / pageSize

	rows, err := d.db.QueryContext(ctx, `
	SELECT id, path, name, is_directory, file_size, last_modified,
		collection, platform, region, file_type, parent_path
	FROM entries
	WHERE parent_path = ?
	ORDER BY is_directory DESC, name COLLATE NOCASE ASC
	LIMIT ? OFFSET ?
	`, parentPath, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("browse query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	results := []Entry{}
	for rows.Next() {
		entry, scanErr := scanEntry(rows)
		if scanErr != nil {
			err = scanErr
			return nil, fmt.Errorf("failed to scan browse row: %w", scanErr)
		}
		results = append(results, *entry)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return &SearchResult{
		Total:   total,
		Page:    page,
		PerPage: pageSize,
		Pages:   pages,
		Results: results,
	}, nil
}

// GetCollections returns all collections with their file counts, most
// populous first.
func (d *Database) GetCollections(ctx context.Context) ([]CollectionInfo, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_collections", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
	SELECT collection, COUNT(*) AS cnt
	FROM entries
	WHERE is_directory = 0 AND collection IS NOT NULL
	GROUP BY collection
	ORDER BY cnt DESC, collection ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("collections query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := []CollectionInfo{}
	for rows.Next() {
		var c CollectionInfo
		if err = rows.Scan(&c.Collection, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	err = rows.Err()
	return out, err
}

// GetPlatforms returns platforms with their file counts, most populous
// first. collection may be empty, one value, or a comma-separated set.
func (d *Database) GetPlatforms(ctx context.Context, collection string) ([]PlatformInfo, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_platforms", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	query := `
	SELECT platform, collection, COUNT(*) AS cnt
	FROM entries
	WHERE is_directory = 0 AND platform IS NOT NULL
	`
	args := []any{}
	if vals := splitMulti(collection); len(vals) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(vals)), ",")
		query += fmt.Sprintf(" AND collection IN (%s)", placeholders)
		for _, v := range vals {
			args = append(args, v)
		}
	}
	query += `
	GROUP BY platform, collection
	ORDER BY cnt DESC, platform ASC
	`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("platforms query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := []PlatformInfo{}
	for rows.Next() {
		var (
			p          PlatformInfo
			collection sql.NullString
		)
		if err = rows.Scan(&p.Platform, &collection, &p.Count); err != nil {
			return nil, err
		}
		p.Collection = collection.String
		out = append(out, p)
	}
	err = rows.Err()
	return out, err
}

// GetManufacturers aggregates platforms into a two-tier manufacturer tree.
// Platform names follow the "Manufacturer - Platform" convention; names
// without the separator fall into an "Other" bucket. Manufacturers are
// ordered by total file count, platforms within each by their own count.
func (d *Database) GetManufacturers(ctx context.Context) ([]ManufacturerInfo, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_manufacturers", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
	SELECT platform, COUNT(*) AS cnt
	FROM entries
	WHERE is_directory = 0 AND platform IS NOT NULL
	GROUP BY platform
	ORDER BY cnt DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("manufacturers query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	groups := map[string]*ManufacturerInfo{}
	var order []string

	for rows.Next() {
		var (
			platform string
			count    int
		)
		if err = rows.Scan(&platform, &count); err != nil {
			return nil, err
		}

		manufacturer := "Other"
		if i := strings.Index(platform, " - "); i > 0 {
			manufacturer = platform[:i]
		}

		g, ok := groups[manufacturer]
		if !ok {
			g = &ManufacturerInfo{Manufacturer: manufacturer}
			groups[manufacturer] = g
			order = append(order, manufacturer)
		}
		g.TotalCount += count
		g.Platforms = append(g.Platforms, PlatformInfo{Platform: platform, Count: count})
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	out := make([]ManufacturerInfo, 0, len(order))
	for _, name := range order {
		out = append(out, *groups[name])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalCount > out[j].TotalCount
	})
	return out, nil
}

// GetStats summarizes the index.
func (d *Database) GetStats(ctx context.Context) (*Stats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_stats", start, err) }()

	d.mu.RLock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var (
		stats      Stats
		totalFiles sql.NullInt64
		totalDirs  sql.NullInt64
	)
	err = d.db.QueryRowContext(ctx, `
	SELECT
		SUM(CASE WHEN is_directory = 0 THEN 1 ELSE 0 END),
		SUM(CASE WHEN is_directory = 1 THEN 1 ELSE 0 END),
		COUNT(DISTINCT collection),
		COUNT(DISTINCT platform)
	FROM entries
	`).Scan(&totalFiles, &totalDirs, &stats.Collections, &stats.Platforms)
	d.mu.RUnlock()
	stats.TotalFiles = int(totalFiles.Int64)
	stats.TotalDirs = int(totalDirs.Int64)
	if err != nil {
		return nil, fmt.Errorf("stats query failed: %w", err)
	}

	if stats.LastSynced, err = d.LastCrawled(ctx); err != nil {
		return nil, err
	}
	if stats.CrawlStatus, err = d.GetCrawlState(ctx); err != nil {
		return nil, err
	}
	return &stats, nil
}

// RecentlyAdded returns files modified within the last `days` days, newest
// first. Normalized dates are ISO 8601 text, so a lexicographic comparison
// against the cutoff is a correct time comparison; rows whose dates were in
// an unrecognized listing format fall outside the window.
func (d *Database) RecentlyAdded(ctx context.Context, days, page, pageSize int) (*SearchResult, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("recently_added", start, err) }()

	if days < 1 {
		days = 30
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02T15:04:00")

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var total int
	err = d.db.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM entries
	WHERE is_directory = 0 AND last_modified >= ?
	`, cutoff).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("recently-added count failed: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, `
	SELECT id, path, name, is_directory, file_size, last_modified,
		collection, platform, region, file_type, parent_path
	FROM entries
	WHERE is_directory = 0 AND last_modified >= ?
	ORDER BY last_modified DESC
	LIMIT ? OFFSET ?
	`, cutoff, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("recently-added query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	results := []Entry{}
	for rows.Next() {
		entry, scanErr := scanEntry(rows)
		if scanErr != nil {
			err = scanErr
			return nil, scanErr
		}
		results = append(results, *entry)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	pages := (total + pageSize - 1) / pageSize
	return &SearchResult{
		Total:   total,
		Page:    page,
		PerPage: pageSize,
		Pages:   pages,
		Results: results,
	}, nil
}
