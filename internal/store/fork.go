package store

import (
	"context"
	"time"

	"github.com/agentrt/runtime/internal/apperr"
	"github.com/agentrt/runtime/pkg/types"
)

// Fork branches sessionID into a new session newID, copying every message
// up to and including atSeq. The new session starts on the source's current
// agent (recorded as one switch); the source's switch history and metadata
// are not copied. Supplements spec.md's data model (which never forbids branching a
// conversation) the way the teacher's Service.Fork treats branching as core
// session management.
func (s *Store) Fork(ctx context.Context, sessionID, newID string, atSeq int) (*types.Session, error) {
	src, ok := s.stateFor(sessionID)
	if !ok {
		return nil, apperr.New(apperr.NotFound, "store.Fork", "session "+sessionID+" not found")
	}

	msgs, err := s.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	src.mu.Lock()
	systemPrompt := src.session.SystemPrompt
	agentContext := src.agentContext
	src.mu.Unlock()

	forked, err := s.Create(ctx, newID, systemPrompt)
	if err != nil {
		return nil, err
	}

	for _, m := range msgs {
		if m.Seq > atSeq {
			break
		}
		m.SessionID = newID
		if _, err := s.AppendMessage(ctx, m); err != nil {
			return nil, apperr.Wrap(apperr.Storage, "store.Fork", "failed to copy message", err)
		}
	}

	agentContext.SessionID = newID
	if _, err := s.SwitchAgent(ctx, newID, types.AgentSwitch{
		From: agentContext.CurrentAgent, To: agentContext.CurrentAgent,
		Reason: "forked from " + sessionID, Timestamp: time.Now().UnixMilli(),
	}); err != nil {
		return nil, err
	}

	return forked, nil
}

// Revert truncates sessionID's message log back to toSeq (inclusive),
// discarding later messages and resetting NextSeq. Mirrors the teacher's
// Service.Revert.
func (s *Store) Revert(ctx context.Context, sessionID string, toSeq int) error {
	st, ok := s.stateFor(sessionID)
	if !ok {
		return apperr.New(apperr.NotFound, "store.Revert", "session "+sessionID+" not found")
	}

	msgs, err := s.ListMessages(ctx, sessionID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	for _, m := range msgs {
		if m.Seq <= toSeq {
			continue
		}
		if err := s.fs.delete([]string{"sessions", sessionID, "messages", seqKey(m.Seq)}); err != nil {
			return apperr.Wrap(apperr.Storage, "store.Revert", "failed to remove message", err)
		}
		if m.Role == types.RoleAssistant {
			for _, tc := range m.ToolCalls {
				delete(st.pendingToolCalls, tc.ID)
			}
		}
	}

	st.session.NextSeq = toSeq + 1
	st.session.UpdatedAt = time.Now().UnixMilli()
	return s.w.writeSession(st.session)
}
