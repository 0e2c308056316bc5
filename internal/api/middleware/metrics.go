package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/felixge/httpsnoop"

	"github.com/VampKunal/IdeaRoom/internal/metrics"
)

// Metrics returns middleware that records Prometheus metrics. httpsnoop keeps
// the optional interfaces of the wrapped writer, so websocket upgrades can
// still hijack the connection.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		path := normalizePath(r.URL.Path)

		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, path, strconv.Itoa(m.Code),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, path,
		).Observe(m.Duration.Seconds())
	})
}

// normalizePath normalizes paths to avoid high cardinality in metrics.
func normalizePath(path string) string {
	rest, ok := strings.CutPrefix(path, "/rooms/")
	if !ok || rest == "" {
		return path
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return "/rooms/:id" + rest[i:]
	}
	return "/rooms/:id"
}
