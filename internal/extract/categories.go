package extract

import (
	_ "embed"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"myrient-search/internal/logging"
)

//go:embed categories.json
var categoriesJSON []byte

type categoriesFile struct {
	Categories map[string][]string `json:"Categories"`
}

// platformCandidate is one matchable platform string with the manufacturer
// it belongs to.
type platformCandidate struct {
	match        string
	lower        string
	manufacturer string
}

var (
	candidatesOnce sync.Once
	candidates     []platformCandidate
)

// platformCandidates returns the flattened platform table, sorted longest
// match first so that greedy matching never picks "Game Boy" over
// "Game Boy Advance".
func platformCandidates() []platformCandidate {
	candidatesOnce.Do(func() {
		var cats categoriesFile
		if err := json.Unmarshal(categoriesJSON, &cats); err != nil {
			// The table is compiled in; this only fires if the bundled
			// JSON is edited into something invalid.
			logging.Error("invalid embedded categories table: %v", err)
			return
		}

		for manufacturer, platforms := range cats.Categories {
			candidates = append(candidates, platformCandidate{
				match:        manufacturer,
				lower:        strings.ToLower(manufacturer),
				manufacturer: manufacturer,
			})
			for _, platform := range platforms {
				if platform != manufacturer {
					// The full string as it appears in archive paths,
					// e.g. "Nintendo - Game Boy Advance".
					full := manufacturer + " - " + platform
					candidates = append(candidates, platformCandidate{
						match:        full,
						lower:        strings.ToLower(full),
						manufacturer: manufacturer,
					})
				}
				candidates = append(candidates, platformCandidate{
					match:        platform,
					lower:        strings.ToLower(platform),
					manufacturer: manufacturer,
				})
			}
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			return len(candidates[i].match) > len(candidates[j].match)
		})
	})
	return candidates
}
