package server

import (
	"expvar"

	"github.com/go-chi/chi/v5"

	"github.com/dwsmith1983/tfgate/internal/server/handlers"
)

func (s *Server) registerRoutes(r chi.Router) {
	h := handlers.New(s.orch, s.store)

	r.Route("/api", func(r chi.Router) {
		// Health
		r.Get("/health", h.Health)

		// Runs
		r.Post("/runs", h.StartRun)
		r.Get("/runs", h.ListRuns)
		r.Get("/runs/{runID}", h.GetRun)
		r.Post("/runs/{runID}/resume", h.ResumeRun)

		// Approvals
		r.Post("/runs/{runID}/approvals", h.RecordApproval)
		r.Get("/runs/{runID}/approvals", h.ListApprovals)

		// Environments
		r.Get("/environments/{env}/runs", h.ListEnvironmentRuns)
		r.Get("/environments/{env}/events", h.ListEnvironmentEvents)
	})

	// Runtime counters.
	r.Method("GET", "/debug/vars", expvar.Handler())
}
