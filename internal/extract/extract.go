package extract

import (
	"regexp"
	"strings"
	"time"

	"myrient-search/internal/database"
	"myrient-search/internal/listing"
)

// NormalizePath removes "."-only segments and empty segments from a
// slash-separated path, preserving a trailing slash when the input had one
// and the result is non-empty. It is idempotent.
func NormalizePath(p string) string {
	parts := strings.Split(p, "/")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		cleaned = append(cleaned, part)
	}

	result := strings.Join(cleaned, "/")
	if strings.HasSuffix(p, "/") && result != "" {
		result += "/"
	}
	return result
}

// Collection returns the top-level path segment,
// e.g. "No-Intro/Nintendo - Game Boy/game.zip" -> "No-Intro".
func Collection(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return ""
	}
	if i := strings.Index(trimmed, "/"); i >= 0 {
		return trimmed[:i]
	}
	return trimmed
}

// Platform matches the path against the known platform table, longest
// candidate first, and returns the matched platform string. When nothing
// matches it falls back to the second path segment, or "" for shallow paths.
func Platform(path string) string {
	lower := strings.ToLower(path)
	for _, c := range platformCandidates() {
		if strings.Contains(lower, c.lower) {
			return c.match
		}
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}

var knownRegions = []string{
	"USA", "Europe", "Japan", "World", "Germany", "France", "Spain",
	"Italy", "Korea", "Brazil", "UK", "Asia", "Australia", "Netherlands",
	"Sweden", "Norway", "Denmark", "Finland", "Portugal", "Russia",
	"China", "Taiwan", "Hong Kong", "Canada",
}

var regionPattern = func() *regexp.Regexp {
	alt := "(?:" + strings.Join(knownRegions, "|") + ")"
	return regexp.MustCompile(`(?i)\((` + alt + `(?:\s*,\s*` + alt + `)*)\)`)
}()

// Region extracts the parenthesized region list from a filename,
// e.g. "Game (USA, Europe).zip" -> "USA, Europe". Empty when absent.
func Region(name string) string {
	m := regionPattern.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[1]
}

// FileType returns the lowercased extension of a filename, without the dot,
// or "" when the name has no extension.
func FileType(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

var (
	isoSpaceDate = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\s+(\d{2}:\d{2})$`)
	dayMonDate   = regexp.MustCompile(`^\d{1,2}-[A-Za-z]{3}-\d{4}\s+\d{2}:\d{2}$`)
)

// NormalizeDate converts the two listing date formats to ISO 8601:
//
//	"2024-01-15 10:30"  -> "2024-01-15T10:30:00"  (nginx autoindex)
//	"18-Feb-2025 10:57" -> "2025-02-18T10:57:00"  (fancyindex)
//
// Already-ISO values pass through unchanged, empty input yields "", and an
// unrecognized format is returned as-is rather than dropped.
func NormalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if strings.Contains(raw, "T") {
		return raw
	}

	if m := isoSpaceDate.FindStringSubmatch(raw); m != nil {
		return m[1] + "T" + m[2] + ":00"
	}

	if dayMonDate.MatchString(raw) {
		if t, err := time.Parse("2-Jan-2006 15:04", raw); err == nil {
			return t.Format("2006-01-02T15:04") + ":00"
		}
	}

	// Unknown format: keep the raw text rather than losing the value.
	return raw
}

// BuildEntry turns one parsed listing row into a normalized index entry.
// parentPath is the canonical path of the directory the row was listed in
// ("" for the root, trailing slash otherwise).
func BuildEntry(row listing.Row, parentPath string) database.Entry {
	parent := NormalizePath(parentPath)
	if parent != "" && !strings.HasSuffix(parent, "/") {
		parent += "/"
	}

	fullPath := parent + row.Name
	if row.IsDirectory {
		fullPath += "/"
	}
	fullPath = NormalizePath(strings.TrimPrefix(fullPath, "/"))

	entry := database.Entry{
		Path:         fullPath,
		Name:         row.Name,
		IsDirectory:  row.IsDirectory,
		FileSize:     row.Size,
		LastModified: NormalizeDate(row.Date),
		Collection:   Collection(fullPath),
		Platform:     Platform(fullPath),
		ParentPath:   parent,
	}

	if !row.IsDirectory {
		entry.Region = Region(row.Name)
		entry.FileType = FileType(row.Name)
	}

	return entry
}
