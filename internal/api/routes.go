package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		RequestID(),
		Recovery(h.logger),
		Logging(h.logger),
	)

	mux.Handle("GET /healthz", http.HandlerFunc(h.Health))

	// Tasks
	mux.Handle("POST /api/v1/tasks", chain(http.HandlerFunc(h.EnqueueTask)))
	mux.Handle("GET /api/v1/tasks/{id}", chain(http.HandlerFunc(h.GetTask)))

	// Runs
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))

	// Ops
	mux.Handle("GET /api/v1/stats", chain(http.HandlerFunc(h.Stats)))
	mux.Handle("GET /api/v1/scheduled", chain(http.HandlerFunc(h.ListScheduled)))
	mux.Handle("POST /api/v1/scheduled/sweep", chain(http.HandlerFunc(h.Sweep)))
	mux.Handle("POST /api/v1/counters/reset", chain(http.HandlerFunc(h.ResetCounters)))
}
