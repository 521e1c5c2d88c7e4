package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"myrient-search/internal/listing"
)

// Fingerprint computes a stable digest of a directory's current listing.
// Only the displayed (name, size, date) triples participate, sorted so that
// server-side row ordering cannot affect the result. Two listings with the
// same rows in any order produce the same fingerprint; any change to a row
// produces a different one. This is change detection, not integrity.
func Fingerprint(rows []listing.Row) string {
	triples := make([]string, 0, len(rows))
	for _, row := range rows {
		triples = append(triples, row.Name+"\x00"+row.Size+"\x00"+row.Date)
	}
	sort.Strings(triples)

	sum := sha256.Sum256([]byte(strings.Join(triples, "\x1e")))
	return hex.EncodeToString(sum[:])
}
