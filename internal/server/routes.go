package server

import "github.com/go-chi/chi/v5"

// setupRoutes wires spec.md §6's administrative REST surface exactly:
// GET /health, GET /agents, GET /agents/{session}/current,
// GET /sessions (accepts ?limit=&offset= per spec.md §4.2's list operation),
// POST /sessions, GET /sessions/{id}/history,
// GET /sessions/{id}/pending-approvals, POST /sessions/{id}/hitl-decision,
// GET /events/metrics, GET /events/audit-log.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)

		r.Get("/agents", s.handleListAgents)
		r.Get("/agents/{session}/current", s.handleCurrentAgent)

		r.Get("/sessions", s.handleListSessions)
		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions/{id}/history", s.handleSessionHistory)
		r.Get("/sessions/{id}/pending-approvals", s.handlePendingApprovals)
		r.Post("/sessions/{id}/hitl-decision", s.handleHITLDecision)

		r.Get("/events/metrics", s.handleMetrics)
		r.Get("/events/audit-log", s.handleAuditLog)
	})
}
