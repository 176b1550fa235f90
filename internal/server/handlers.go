package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentrt/runtime/internal/apperr"
	"github.com/agentrt/runtime/pkg/types"
)

// handleHealth is unauthenticated liveness: it never touches the store or
// any dependency so it stays responsive even if those degrade.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListAgents returns the fixed agent roster (internal/agent.Registry).
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agents.List())
}

// handleCurrentAgent returns the agent currently handling a session, per
// its AgentContext.
func (s *Server) handleCurrentAgent(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session")
	agentCtx, err := s.sessions.GetContext(r.Context(), sessionID)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"currentAgent": agentCtx.CurrentAgent})
}

// handleListSessions lists non-deleted session ids, paginated by the
// optional ?limit= and ?offset= query parameters (spec.md §4.2's
// list(active_only, limit, offset); active_only is always true on this
// surface — soft-deleted sessions are only visible via the audit log).
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := parseQueryInt(r, "limit", 0)
	offset := parseQueryInt(r, "offset", 0)
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.sessions.List(r.Context(), false, limit, offset)})
}

// parseQueryInt parses the named query parameter as an int, returning
// def if it is absent or malformed.
func parseQueryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

type createSessionRequest struct {
	SystemPrompt string `json:"systemPrompt"`
}

// handleCreateSession creates a session with an optional system prompt.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
			return
		}
	}
	sess, err := s.svc.Create(r.Context(), req.SystemPrompt)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// handleSessionHistory returns a session's full message log.
func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	messages, err := s.sessions.ListMessages(r.Context(), sessionID)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// handlePendingApprovals lists every currently-pending HITL approval for a
// session — unaffected by process restarts, since PendingApproval rows
// are durable in the Session Store (spec.md §8 scenario 6).
func (s *Server) handlePendingApprovals(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	pending, err := s.approvals.ListPending(r.Context(), sessionID)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pendingApprovals": pending})
}

type hitlDecisionRequest struct {
	RequestID string `json:"requestID"`
	Decision  string `json:"decision"` // "approve" | "reject"
	Feedback  string `json:"feedback,omitempty"`
}

// handleHITLDecision records an operator's approve/reject decision on a
// pending approval. The Engine (blocked in awaitApproval) observes the
// resulting approval_decided event and resumes the paused tool_call.
func (s *Server) handleHITLDecision(w http.ResponseWriter, r *http.Request) {
	var req hitlDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.RequestID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "requestID is required")
		return
	}

	var (
		decided *types.PendingApproval
		err     error
	)
	switch req.Decision {
	case "approve":
		decided, err = s.approvals.Approve(r.Context(), req.RequestID)
	case "reject":
		decided, err = s.approvals.Reject(r.Context(), req.RequestID)
	default:
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, `decision must be "approve" or "reject"`)
		return
	}
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decided)
}

// handleMetrics exposes the Collector's Prometheus registry in the
// standard exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(s.collector.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// handleAuditLog returns the most recent observed events, newest first,
// bounded by an optional ?limit= query parameter.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := parseQueryInt(r, "limit", 0)
	writeJSON(w, http.StatusOK, map[string]any{"entries": s.collector.AuditLog(limit)})
}

// writeAppErr maps an apperr.Kind to its spec.md §7 HTTP status and writes
// the response; errors that aren't an *apperr.Error fall back to 500.
func writeAppErr(w http.ResponseWriter, err error) {
	kind, ok := apperr.KindOf(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	switch kind {
	case apperr.NotFound:
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case apperr.AlreadyExists:
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case apperr.Validation:
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
	case apperr.PolicyDenied:
		writeError(w, http.StatusForbidden, ErrCodePermissionDenied, err.Error())
	case apperr.Timeout:
		writeError(w, http.StatusGatewayTimeout, ErrCodeInternalError, err.Error())
	case apperr.Upstream:
		writeError(w, http.StatusBadGateway, ErrCodeProviderError, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}
