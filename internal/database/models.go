package database

// Entry is one file or directory in the archive index.
//
// Paths are canonical: slash-separated, no "." segments, trailing slash on
// directories. FileSize is the display string from the listing ("64.1 KiB"),
// not a byte count. LastModified is ISO 8601 when the listing date was in a
// recognized format, otherwise the raw text is kept as-is.
type Entry struct {
	ID           int64  `json:"-"`
	Path         string `json:"path"`
	Name         string `json:"name"`
	IsDirectory  bool   `json:"is_directory"`
	FileSize     string `json:"file_size,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	Collection   string `json:"collection,omitempty"`
	Platform     string `json:"platform,omitempty"`
	Region       string `json:"region,omitempty"`
	FileType     string `json:"file_type,omitempty"`
	ParentPath   string `json:"parent_path"`
}

// Fingerprint is the change-detection record for one crawled directory.
// ContentHash is derived from the directory's direct children only; ETag and
// LastModified are the response headers at crawl time, kept for diagnostics.
type Fingerprint struct {
	Path         string `json:"path"`
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	EntryCount   int    `json:"entry_count"`
	ContentHash  string `json:"content_hash"`
	LastCrawled  string `json:"last_crawled,omitempty"`
}

// Crawl status values held in the singleton crawl_state row.
const (
	CrawlStatusIdle     = "idle"
	CrawlStatusCrawling = "crawling"
	CrawlStatusError    = "error"
)

// CrawlState describes the most recent or ongoing crawl run.
type CrawlState struct {
	Status      string `json:"status"`
	StartedAt   string `json:"started_at,omitempty"`
	FinishedAt  string `json:"finished_at,omitempty"`
	DirsCrawled int    `json:"dirs_crawled"`
	FilesFound  int    `json:"files_found"`
	Errors      int    `json:"errors"`
	Message     string `json:"message,omitempty"`
}

type SortField string
type SortOrder string

const (
	SortByRelevance SortField = "relevance"
	SortByName      SortField = "name"
	SortBySize      SortField = "size"
	SortByType      SortField = "type"
	SortByRegion    SortField = "region"
	SortByPlatform  SortField = "platform"
	SortByDate      SortField = "date"
	SortAsc         SortOrder = "asc"
	SortDesc        SortOrder = "desc"
)

// SearchOptions are the parameters of one search call. Collection, Platform
// and Region accept comma-separated multi-select values (OR within the
// field). FilesOnly excludes directory rows.
type SearchOptions struct {
	Query      string
	Collection string
	Platform   string
	FileType   string
	Region     string
	FilesOnly  bool
	SortField  SortField
	SortOrder  SortOrder
	Page       int
	PageSize   int
}

// SearchResult is one page of ranked results.
type SearchResult struct {
	Total   int     `json:"total"`
	Page    int     `json:"page"`
	PerPage int     `json:"per_page"`
	Pages   int     `json:"pages"`
	Results []Entry `json:"results"`
}

// CollectionInfo is a collection with its file count.
type CollectionInfo struct {
	Collection string `json:"collection"`
	Count      int    `json:"count"`
}

// PlatformInfo is a platform/collection pair with its file count.
type PlatformInfo struct {
	Platform   string `json:"platform"`
	Collection string `json:"collection,omitempty"`
	Count      int    `json:"count"`
}

// ManufacturerInfo groups platforms under their manufacturer for the
// two-tier filter. Platform names follow the "Manufacturer - Platform"
// convention; anything that doesn't lands in the "Other" bucket.
type ManufacturerInfo struct {
	Manufacturer string         `json:"manufacturer"`
	TotalCount   int            `json:"total_count"`
	Platforms    []PlatformInfo `json:"platforms"`
}

// Stats summarizes the index for the stats endpoint.
type Stats struct {
	TotalFiles  int         `json:"total_files"`
	TotalDirs   int         `json:"total_dirs"`
	Collections int         `json:"collections"`
	Platforms   int         `json:"platforms"`
	LastSynced  string      `json:"last_synced,omitempty"`
	CrawlStatus *CrawlState `json:"crawl_status,omitempty"`
}

// CleanupReport counts what the malformed-path sweep removed.
type CleanupReport struct {
	DotSlashMidRemoved  int `json:"dotslash_mid_removed"`
	DotSlashLeadRemoved int `json:"dotslash_lead_removed"`
	DotEntriesRemoved   int `json:"dot_entries_removed"`
	FingerprintsRemoved int `json:"fingerprints_removed"`
	TotalBefore         int `json:"total_before"`
	TotalAfter          int `json:"total_after"`
	TotalRemoved        int `json:"total_removed"`
}
