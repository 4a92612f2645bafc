package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	unmatchedRoute = "unmatched"
	metricsRoute   = "/metrics"
)

// Middleware records request counts and latency keyed by the chi route
// pattern, so /api/runs/{run_id} is one series regardless of the id.
// Scrapes of /metrics are not counted.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		if route == metricsRoute {
			return
		}
		ObserveHTTPRequest(r.Method, route, rec.code(), time.Since(start))
	})
}

// statusRecorder captures the first status written. Handlers that only call
// Write get an implicit 200.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *statusRecorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

func (rw *statusRecorder) code() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}
