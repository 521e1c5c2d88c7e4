// Package handlers contains the HTTP API: search and browse over the
// index, aggregate filter endpoints, sync control, and health probes.
// Handlers are thin; query logic lives in internal/database and crawl
// logic in internal/crawler.
package handlers
