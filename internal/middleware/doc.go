// Package middleware provides the HTTP middleware chain: W3C Extended Log
// Format request logging with injection-safe field sanitization, and
// Prometheus request instrumentation keyed by mux route template.
package middleware
