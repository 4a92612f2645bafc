package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/fraud-detection/internal/stats"
	"github.com/JakeFAU/fraud-detection/internal/tracking"
)

// StatsServer serves dataset aggregates and training run history.
type StatsServer struct {
	router   chi.Router
	snapshot *stats.Snapshot
	runs     *RunsHandler
}

// NewStatsServer wires routes. repo may be nil, in which case the run
// endpoints answer 503.
func NewStatsServer(snapshot *stats.Snapshot, repo tracking.Repository, opts Options) *StatsServer {
	s := &StatsServer{
		snapshot: snapshot,
		runs:     NewRunsHandler(repo, opts.logger().Named("runs")),
	}
	s.router = NewRouter(opts, func() bool { return s.snapshot != nil }, func(r chi.Router) {
		r.Route("/api", func(r chi.Router) {
			r.Get("/summary", s.summary)
			r.Get("/fraud_trends", s.fraudTrends)
			r.Get("/fraud_browser_source", s.fraudBrowserSource)
			r.Route("/runs", func(r chi.Router) {
				r.Get("/", s.runs.ListRuns)
				r.Route("/{run_id}", func(r chi.Router) {
					r.Get("/", s.runs.GetRun)
					r.Get("/metrics", s.runs.ListMetrics)
				})
			})
		})
	})
	return s
}

// Handler returns the Router for use with http.Server.
func (s *StatsServer) Handler() http.Handler {
	return s.router
}

func (s *StatsServer) summary(w http.ResponseWriter, _ *http.Request) {
	if s.snapshot == nil {
		WriteError(w, http.StatusServiceUnavailable, "dataset not loaded")
		return
	}
	WriteJSON(w, http.StatusOK, s.snapshot.Summary())
}

// fraudTrends relies on encoding/json sorting map keys, so months come out in order.
func (s *StatsServer) fraudTrends(w http.ResponseWriter, _ *http.Request) {
	if s.snapshot == nil {
		WriteError(w, http.StatusServiceUnavailable, "dataset not loaded")
		return
	}
	WriteJSON(w, http.StatusOK, s.snapshot.FraudTrends())
}

func (s *StatsServer) fraudBrowserSource(w http.ResponseWriter, _ *http.Request) {
	if s.snapshot == nil {
		WriteError(w, http.StatusServiceUnavailable, "dataset not loaded")
		return
	}
	WriteJSON(w, http.StatusOK, s.snapshot.FraudByBrowserSource())
}
