package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agentrt/runtime/internal/apperr"
	"github.com/agentrt/runtime/pkg/types"
)

// Recover rehydrates in-memory state from on-disk records after a process
// restart: every session's metadata (soft-deleted ones included), routing context, and
// pending-tool-call set (recomputed from its message log, since that set is
// never itself persisted); and every still-pending approval whose
// ExpiresAt is in the future. Approvals already past their ExpiresAt are
// swept straight to Expired rather than being rehydrated as pending, so a
// long process outage can never resurrect a stale approval as actionable.
func (s *Store) Recover(ctx context.Context, now time.Time) error {
	ids, err := s.fs.list([]string{"sessions"})
	if err != nil {
		return apperr.Wrap(apperr.Storage, "store.Recover", "failed to list sessions", err)
	}

	for _, id := range ids {
		var sess types.Session
		if err := s.fs.get([]string{"sessions", id}, &sess); err != nil {
			continue // corrupt or partially-written record; skip rather than abort recovery
		}

		var agentContext types.AgentContext
		_ = s.fs.get([]string{"sessions", id, "context"}, &agentContext)
		if agentContext.SessionID == "" {
			agentContext = types.AgentContext{SessionID: id, CurrentAgent: "orchestrator"}
		}

		st := &sessionState{session: sess, agentContext: agentContext, pendingToolCalls: make(map[string]bool)}

		var assistantCalls = make(map[string]bool)
		replied := make(map[string]bool)
		_ = s.fs.scan([]string{"sessions", id, "messages"}, func(key string, data json.RawMessage) error {
			var msg types.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				return nil // skip a corrupt message rather than abort recovery
			}
			if msg.Role == types.RoleAssistant {
				for _, tc := range msg.ToolCalls {
					assistantCalls[tc.ID] = true
				}
			}
			if msg.Role == types.RoleTool {
				replied[msg.ToolCallID] = true
			}
			return nil
		})
		for callID := range assistantCalls {
			if !replied[callID] {
				st.pendingToolCalls[callID] = true
			}
		}

		s.mu.Lock()
		s.sessions[sess.ID] = st
		s.mu.Unlock()
	}

	return s.recoverApprovals(ctx, now)
}

func (s *Store) recoverApprovals(ctx context.Context, now time.Time) error {
	approvals, err := s.ListApprovals(ctx, "")
	if err != nil {
		return err
	}

	for _, a := range approvals {
		if a.Status != types.ApprovalPending {
			continue
		}
		if a.ExpiresAt <= now.UnixMilli() {
			a.Status = types.ApprovalExpired
			decided := now.UnixMilli()
			a.DecidedAt = &decided
			if err := s.PutApproval(ctx, a); err != nil {
				return err
			}
		}
	}
	return nil
}
