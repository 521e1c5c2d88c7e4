package listing

import (
	"strings"
	"testing"
)

const tablePage = `<!DOCTYPE html>
<html><body>
<table id="list">
<thead><tr><th>File Name</th><th>File Size</th><th>Date</th></tr></thead>
<tbody>
<tr><td class="link"><a href="../">Parent directory/</a></td><td class="size">-</td><td class="date">-</td></tr>
<tr><td class="link"><a href="No-Intro/">No-Intro/</a></td><td class="size">-</td><td class="date">2024-01-15 10:30</td></tr>
<tr><td class="link"><a href="Legend%20of%20Zelda%2C%20The%20%28USA%29.zip">Legend%20of%20Zelda%2C%20The%20%28USA%29.zip</a></td><td class="size">64.1 KiB</td><td class="date">18-Feb-2025 10:57</td></tr>
<tr><td class="link"><a href="./">./</a></td><td class="size">-</td><td class="date">-</td></tr>
</tbody>
</table>
</body></html>`

const prePage = `<html><body><pre>
<a href="../">../</a>
<a href="Sony/">Sony/</a>
<a href="readme.txt">readme.txt</a>
</pre></body></html>`

func TestParseTableListing(t *testing.T) {
	t.Parallel()

	rows, err := Parse(strings.NewReader(tablePage))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows (parent/current filtered), got %d: %+v", len(rows), rows)
	}

	dir := rows[0]
	if dir.Name != "No-Intro" || !dir.IsDirectory {
		t.Errorf("expected directory row No-Intro, got %+v", dir)
	}
	if dir.Size != "" {
		t.Errorf("directory size should be empty, got %q", dir.Size)
	}
	if dir.Date != "2024-01-15 10:30" {
		t.Errorf("unexpected date: %q", dir.Date)
	}

	file := rows[1]
	if file.Name != "Legend of Zelda, The (USA).zip" {
		t.Errorf("name not percent-decoded: %q", file.Name)
	}
	if file.IsDirectory {
		t.Error("file row flagged as directory")
	}
	if file.Size != "64.1 KiB" {
		t.Errorf("unexpected size: %q", file.Size)
	}
}

func TestParsePreFallback(t *testing.T) {
	t.Parallel()

	rows, err := Parse(strings.NewReader(prePage))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %+v", len(rows), rows)
	}
	if rows[0].Name != "Sony" || !rows[0].IsDirectory {
		t.Errorf("expected Sony directory, got %+v", rows[0])
	}
	if rows[1].Name != "readme.txt" {
		t.Errorf("expected readme.txt, got %+v", rows[1])
	}
	// In the pre fallback files have no size column; only the trailing
	// slash on the href distinguishes directories.
	if rows[1].IsDirectory {
		t.Errorf("readme.txt should not be a directory: %+v", rows[1])
	}
}

func TestParseMalformedRowIsSkipped(t *testing.T) {
	t.Parallel()

	page := `<table id="list">
<tr><td class="link"><a href="bad%zz">bad%zz</a></td><td class="size">1 KiB</td><td class="date">2024-01-15 10:30</td></tr>
<tr><td class="link"><a href="good.zip">good.zip</a></td><td class="size">1 KiB</td><td class="date">2024-01-15 10:30</td></tr>
</table>`

	rows, err := Parse(strings.NewReader(page))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "good.zip" {
		t.Fatalf("expected only good.zip to survive, got %+v", rows)
	}
}

func TestParseNavigationSynonyms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		href string
		text string
	}{
		{name: "dotdot slash", href: "../", text: "../"},
		{name: "parent directory label", href: "/files/", text: "Parent Directory"},
		{name: "parent dir lowercase", href: "/files/", text: "parent dir"},
		{name: "current dir", href: "./", text: "./"},
		{name: "bare dot", href: ".", text: "."},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			page := `<table id="list"><tr><td class="link"><a href="` + tt.href + `">` + tt.text + `</a></td><td class="size">-</td><td class="date">-</td></tr></table>`
			rows, err := Parse(strings.NewReader(page))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if len(rows) != 0 {
				t.Errorf("navigation row %q should be filtered, got %+v", tt.text, rows)
			}
		})
	}
}

func TestParseEmptyPage(t *testing.T) {
	t.Parallel()

	rows, err := Parse(strings.NewReader("<html><body><p>nothing here</p></body></html>"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %+v", rows)
	}
}
