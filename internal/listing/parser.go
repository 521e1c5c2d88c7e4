package listing

import (
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Row is one raw row of a directory listing page, before any metadata
// extraction. Size and Date hold the displayed text and are empty when the
// listing shows no value (or "-", which nginx uses for directories).
type Row struct {
	Name        string
	Href        string
	Size        string
	Date        string
	IsDirectory bool
}

// Parse extracts the rows of a single directory listing page.
//
// Myrient serves nginx autoindex pages with a <table id="list">; a few pages
// fall back to a plain <pre> block of anchors. The table strategy is tried
// first, the anchor strategy only when the table yields nothing. Parent and
// current directory rows are filtered out. A malformed row is skipped, never
// fatal for the page.
func Parse(r io.Reader) ([]Row, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	rows := parseTable(doc)
	if len(rows) == 0 {
		rows = parseAnchors(doc)
	}
	return rows, nil
}

func parseTable(doc *goquery.Document) []Row {
	var rows []Row

	doc.Find("table#list tr").Each(func(_ int, tr *goquery.Selection) {
		link := tr.Find("td.link a, td:first-child a").First()
		if link.Length() == 0 {
			return
		}

		href, _ := link.Attr("href")
		name := strings.TrimSpace(link.Text())

		size := strings.TrimSpace(tr.Find("td.size, td:nth-child(2)").First().Text())
		date := strings.TrimSpace(tr.Find("td.date, td:nth-child(3)").First().Text())

		// nginx renders "-" (or nothing) in the size column for directories.
		isDir := strings.HasSuffix(href, "/") || size == "-" || size == ""

		row, ok := buildRow(name, href, size, date, isDir)
		if !ok {
			return
		}
		rows = append(rows, row)
	})

	return rows
}

func parseAnchors(doc *goquery.Document) []Row {
	var rows []Row

	doc.Find("pre a").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		name := strings.TrimSpace(link.Text())

		// No size column here; the trailing slash is all we have.
		row, ok := buildRow(name, href, "", "", strings.HasSuffix(href, "/"))
		if !ok {
			return
		}
		rows = append(rows, row)
	})

	return rows
}

// buildRow normalizes one raw listing row. It reports false for navigation
// artifacts (parent/current directory links) and rows that fail to decode.
func buildRow(name, href, size, date string, isDir bool) (Row, bool) {
	if isNavigation(name, href) {
		return Row{}, false
	}

	decoded, err := url.PathUnescape(strings.TrimSuffix(name, "/"))
	if err != nil {
		// Undecodable name, drop the row and keep the page.
		return Row{}, false
	}
	if decoded == "" || decoded == "." || decoded == ".." {
		return Row{}, false
	}

	if size == "-" {
		size = ""
	}

	return Row{
		Name:        decoded,
		Href:        href,
		Size:        size,
		Date:        date,
		IsDirectory: isDir,
	}, true
}

// isNavigation reports whether a row is a parent- or current-directory link
// rather than a real entry.
func isNavigation(name, href string) bool {
	switch name {
	case "../", "..", ".", "./", "Parent Directory":
		return true
	}
	if strings.HasPrefix(strings.ToLower(name), "parent dir") {
		return true
	}
	switch href {
	case "../", "/", "./", ".":
		return true
	}
	return false
}
