package workers

import (
	"os"
	"runtime"
	"strconv"
)

// ForIO returns the fetch worker count for I/O-bound crawling: two workers
// per available CPU, capped at limit (0 means no cap). GOMAXPROCS tracks
// container CPU limits (Go 1.19+), so the count follows the pod's
// allowance rather than the host's core count.
//
// The CRAWL_WORKERS environment variable overrides the computed count; the
// cap still applies.
func ForIO(limit int) int {
	return count(2.0, limit)
}

func count(multiplier float64, limit int) int {
	if override := os.Getenv("CRAWL_WORKERS"); override != "" {
		if n, err := strconv.Atoi(override); err == nil && n > 0 {
			if limit > 0 && n > limit {
				return limit
			}
			return n
		}
	}

	workers := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}
	return workers
}
