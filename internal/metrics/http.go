package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPMiddleware wraps an HTTP handler to collect request count, duration and
// in-flight metrics.
//
// Usage:
//
//	handler := metrics.HTTPMiddleware(m, mux)
func HTTPMiddleware(m *Metrics, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		m.RecordHTTP(r.Method, normalizePath(r.URL.Path), wrapped.statusCode, time.Since(start))
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader captures the status code and calls the underlying WriteHeader.
func (w *responseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Write ensures status code is set before writing.
func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(w.statusCode)
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// normalizePath replaces report IDs with a placeholder to bound label
// cardinality. Unknown paths collapse into one label.
//
// Examples:
//   - /v1/reports/6f1c... -> /v1/reports/{id}
//   - /favicon.ico -> other
func normalizePath(path string) string {
	switch path {
	case "/", "/healthz", "/metrics", "/v1/reports",
		"/v1/fairness/evaluate", "/v1/fairness/evaluate/batch":
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/v1/reports/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/v1/reports/{id}"
	}
	return "other"
}

// statusCode converts an HTTP status code to a metric label, grouping rare
// codes by class.
func statusCode(code int) string {
	switch code {
	case 200, 201, 204, 400, 404, 405, 422, 429, 500, 503:
		return strconv.Itoa(code)
	}
	if code >= 100 && code < 600 {
		return strconv.Itoa(code/100) + "xx"
	}
	return strconv.Itoa(code)
}
