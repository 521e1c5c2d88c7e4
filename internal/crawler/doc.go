// Package crawler walks a remote HTTP directory-listing tree and keeps the
// archive index in sync with it. Directory fetches run concurrently under a
// global permit pool with per-request pacing; all database writes funnel
// through a single writer goroutine that batches them into transactions.
// Incremental runs skip unchanged directories, and their subtrees, by
// comparing listing fingerprints.
package crawler
