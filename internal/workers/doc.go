/*
Package workers sizes the crawl worker pool for containerized environments.

Go 1.19+ sets GOMAXPROCS from container CPU limits, but runtime.NumCPU()
still reports the host's core count. Sizing pools from NumCPU on a limited
pod wastes memory on goroutine stacks and invites CPU throttling, so the
count here derives from GOMAXPROCS instead:

	// Crawler fetches are I/O bound: 2 workers per available CPU
	concurrency := workers.ForIO(16)

The CRAWL_WORKERS environment variable is an operator override.
*/
package workers
