package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"myrient-search/internal/metrics"
)

// Metrics returns middleware that records request counts, latencies and
// in-flight gauge for every handled request. The mux route template is
// used as the path label to keep label cardinality bounded.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			metrics.HTTPRequestsInFlight.Inc()
			defer metrics.HTTPRequestsInFlight.Dec()

			wrapped := newResponseWriter(w)

			timer := startRequestTimer(r)
			next.ServeHTTP(wrapped, r)
			timer(wrapped.statusCode)
		})
	}
}

func startRequestTimer(r *http.Request) func(status int) {
	path := r.URL.Path
	if route := mux.CurrentRoute(r); route != nil {
		if template, err := route.GetPathTemplate(); err == nil {
			path = template
		}
	}

	start := time.Now()

	return func(status int) {
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
	}
}
