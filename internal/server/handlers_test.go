package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/runtime/internal/agent"
	"github.com/agentrt/runtime/internal/approval"
	"github.com/agentrt/runtime/internal/eventbus"
	"github.com/agentrt/runtime/internal/metrics"
	"github.com/agentrt/runtime/internal/orchestrator"
	"github.com/agentrt/runtime/internal/store"
	"github.com/agentrt/runtime/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	sessions := store.NewStore(store.DefaultConfig(t.TempDir()))
	bus := eventbus.New(zerolog.Nop())
	policy := approval.NewStaticPolicyStore(types.ApprovalPolicy{DefaultRequiresApproval: false})
	approvals := approval.NewManager(policy, sessions, bus, zerolog.Nop())
	agents := agent.NewRegistry()
	collector := metrics.NewCollector(prometheus.NewRegistry(), 100)
	collector.Attach(bus)
	svc := orchestrator.NewService(sessions, store.New(t.TempDir()), nil)

	return New(DefaultConfig(), sessions, svc, agents, approvals, collector, zerolog.Nop())
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestHandleListAgents(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/agents", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var defs []types.AgentDefinition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &defs))
	assert.NotEmpty(t, defs)
}

func TestHandleCreateAndHistory(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{"systemPrompt":"be helpful"}`))
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var sess types.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.NotEmpty(t, sess.ID)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/sessions/"+sess.ID+"/history", nil)
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleSessionHistory_UnknownSessionIs404(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sessions/does-not-exist/history", nil)
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequireAPIKey_RejectsMissingToken(t *testing.T) {
	s := newTestServer(t)
	s.cfg.InternalAPIKey = "secret"

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("Authorization", "Bearer secret")
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlePendingApprovalsEmpty(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sessions", nil)
	s.Router().ServeHTTP(rec, req)
	var sess types.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/sessions/"+sess.ID+"/pending-approvals", nil)
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pendingApprovals")
}

func TestHandleMetricsAndAuditLog(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/events/metrics", nil)
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/events/audit-log", nil)
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
