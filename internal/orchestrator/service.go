package orchestrator

import (
	"context"
	"time"

	"github.com/agentrt/runtime/internal/store"
	"github.com/agentrt/runtime/pkg/types"
)

// Service is the administrative REST surface's session facade (spec.md
// §6: GET/POST /sessions, GET /sessions/{id}/history). It wraps
// internal/store.Store for session CRUD and the Engine for driving turns,
// so handlers never touch either subsystem's lower-level API directly.
type Service struct {
	sessions *store.Store
	raw      *store.Storage
	engine   *Engine
}

// NewService constructs a Service. raw is the ad-hoc KV store used for
// todo lists (see internal/orchestrator/todo.go) — a separate instance
// from sessions since Store and Storage are constructed independently.
func NewService(sessions *store.Store, raw *store.Storage, engine *Engine) *Service {
	return &Service{sessions: sessions, raw: raw, engine: engine}
}

// Create starts a new session with the given system prompt, generating its
// ID.
func (s *Service) Create(ctx context.Context, systemPrompt string) (*types.Session, error) {
	return s.sessions.Create(ctx, newID(), systemPrompt)
}

// Get retrieves a session by ID.
func (s *Service) Get(ctx context.Context, sessionID string) (*types.Session, error) {
	return s.sessions.Get(ctx, sessionID, false)
}

// List returns non-deleted session ids, paginated by limit and offset
// (limit <= 0 means unbounded).
func (s *Service) List(ctx context.Context, limit, offset int) []string {
	return s.sessions.List(ctx, false, limit, offset)
}

// Delete soft-deletes a session.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	return s.sessions.SoftDelete(ctx, sessionID)
}

// History returns a session's full message log.
func (s *Service) History(ctx context.Context, sessionID string) ([]types.Message, error) {
	return s.sessions.ListMessages(ctx, sessionID)
}

// Context returns a session's routing state.
func (s *Service) Context(ctx context.Context, sessionID string) (*types.AgentContext, error) {
	return s.sessions.GetContext(ctx, sessionID)
}

// Fork branches a session at a given message sequence number into a new
// session with its own id.
func (s *Service) Fork(ctx context.Context, sessionID string, atSeq int) (*types.Session, error) {
	return s.sessions.Fork(ctx, sessionID, newID(), atSeq)
}

// Revert truncates a session's log back to a given sequence number.
func (s *Service) Revert(ctx context.Context, sessionID string, toSeq int) error {
	return s.sessions.Revert(ctx, sessionID, toSeq)
}

// SendMessage runs one full turn for sessionID via the Engine, then
// fires off title generation in the background if the session has none
// yet — title generation never blocks the turn it accompanies (spec.md's
// Session entity has no title field of its own; see GenerateTitle).
func (s *Service) SendMessage(ctx context.Context, sessionID, content, titleModel string) error {
	if err := s.engine.Run(ctx, sessionID, content); err != nil {
		return err
	}
	if titleModel != "" {
		go func() {
			titleCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = GenerateTitle(titleCtx, s.engine.client, s.sessions, sessionID, titleModel, content)
		}()
	}
	return nil
}

// Todos returns a session's current todo list.
func (s *Service) Todos(ctx context.Context, sessionID string) ([]types.TodoInfo, error) {
	return GetTodos(ctx, s.raw, sessionID)
}

// SetAgent pins sessionID's routing state to agentName, bypassing
// classification. Used by internal/executor to hand a subagent task
// session straight to its target specialist, since Engine.route only
// classifies while a session's CurrentAgent is still "orchestrator".
func (s *Service) SetAgent(ctx context.Context, sessionID, agentName string) error {
	agentCtx, err := s.sessions.GetContext(ctx, sessionID)
	if err != nil {
		return err
	}
	_, err = s.sessions.SwitchAgent(ctx, sessionID, types.AgentSwitch{
		From: agentCtx.CurrentAgent, To: agentName, Reason: "pinned for subagent task", Confidence: 1,
	})
	return err
}
