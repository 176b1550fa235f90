package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/runtime/internal/apperr"
	"github.com/agentrt/runtime/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	cfg := DefaultConfig(t.TempDir())
	return NewStore(cfg)
}

func TestStore_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.Create(ctx, "s1", "be helpful")
	require.NoError(t, err)
	assert.Equal(t, "s1", sess.ID)
	assert.Equal(t, 0, sess.NextSeq)

	got, err := s.Get(ctx, "s1", false)
	require.NoError(t, err)
	assert.Equal(t, "be helpful", got.SystemPrompt)
}

func TestStore_AppendMessage_AssignsDenseSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "s1", "")
	require.NoError(t, err)

	m1, err := s.AppendMessage(ctx, types.Message{SessionID: "s1", Role: types.RoleUser, Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 0, m1.Seq)

	m2, err := s.AppendMessage(ctx, types.Message{SessionID: "s1", Role: types.RoleAssistant, Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, 1, m2.Seq)

	msgs, err := s.ListMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, 0, msgs[0].Seq)
	assert.Equal(t, 1, msgs[1].Seq)
}

func TestStore_ToolReply_RequiresPendingToolCall(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "s1", "")
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, types.Message{SessionID: "s1", Role: types.RoleTool, ToolCallID: "call-1", Content: "result"})
	require.Error(t, err)
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.Validation, kind)

	_, err = s.AppendMessage(ctx, types.Message{
		SessionID: "s1", Role: types.RoleAssistant,
		ToolCalls: []types.ToolCall{{ID: "call-1", Name: "read_file"}},
	})
	require.NoError(t, err)

	reply, err := s.AppendMessage(ctx, types.Message{SessionID: "s1", Role: types.RoleTool, ToolCallID: "call-1", Content: "result"})
	require.NoError(t, err)
	assert.Equal(t, "call-1", reply.ToolCallID)

	// Replying twice to the same tool call must fail — it is no longer pending.
	_, err = s.AppendMessage(ctx, types.Message{SessionID: "s1", Role: types.RoleTool, ToolCallID: "call-1", Content: "again"})
	require.Error(t, err)
}

func TestStore_SwitchAgent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "s1", "")
	require.NoError(t, err)

	agentContext, err := s.SwitchAgent(ctx, "s1", types.AgentSwitch{From: "orchestrator", To: "coder", Reason: "implement", Confidence: 0.95, Timestamp: 1})
	require.NoError(t, err)
	assert.Equal(t, "coder", agentContext.CurrentAgent)
	assert.Equal(t, 1, agentContext.SwitchCount)

	reloaded, err := s.GetContext(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "coder", reloaded.CurrentAgent)
}

func TestStore_SoftDelete_HidesFromListAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "s1", "")
	require.NoError(t, err)

	require.NoError(t, s.SoftDelete(ctx, "s1"))

	_, err = s.Get(ctx, "s1", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	got, err := s.Get(ctx, "s1", true)
	require.NoError(t, err)
	assert.True(t, got.Deleted)

	assert.NotContains(t, s.List(ctx, false, 0, 0), "s1")
	assert.Contains(t, s.List(ctx, true, 0, 0), "s1")
}

func TestStore_Create_FailsIfNonDeletedSessionExists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "s1", "be helpful")
	require.NoError(t, err)

	_, err = s.Create(ctx, "s1", "different prompt")
	require.Error(t, err)
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.AlreadyExists, kind)
	assert.True(t, errors.Is(err, apperr.ErrAlreadyExists))

	// The original session is untouched by the rejected overwrite.
	got, err := s.Get(ctx, "s1", false)
	require.NoError(t, err)
	assert.Equal(t, "be helpful", got.SystemPrompt)
}

func TestStore_Create_SucceedsOverASoftDeletedSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "s1", "first")
	require.NoError(t, err)
	require.NoError(t, s.SoftDelete(ctx, "s1"))

	sess, err := s.Create(ctx, "s1", "second")
	require.NoError(t, err)
	assert.Equal(t, "second", sess.SystemPrompt)
	assert.False(t, sess.Deleted)
}

func TestStore_List_Pagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := s.Create(ctx, id, "")
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"a", "b", "c", "d"}, s.List(ctx, false, 0, 0))
	assert.Equal(t, []string{"a", "b"}, s.List(ctx, false, 2, 0))
	assert.Equal(t, []string{"c", "d"}, s.List(ctx, false, 2, 2))
	assert.Equal(t, []string{}, s.List(ctx, false, 2, 10))
}

func TestStore_Cleanup_PurgesOnlyExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "old", "")
	require.NoError(t, err)
	_, err = s.Create(ctx, "recent", "")
	require.NoError(t, err)

	require.NoError(t, s.SoftDelete(ctx, "old"))
	require.NoError(t, s.SoftDelete(ctx, "recent"))

	// Backdate "old"'s DeletedAt past the TTL.
	st, _ := s.stateFor("old")
	st.mu.Lock()
	past := time.Now().Add(-s.cfg.SessionAuditTTL - time.Hour).UnixMilli()
	st.session.DeletedAt = &past
	st.mu.Unlock()

	purged, err := s.Cleanup(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, purged)

	_, err = s.Get(ctx, "recent", true)
	assert.NoError(t, err)
}

func TestStore_Fork_CopiesMessagesUpToSeq(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "src", "")
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, types.Message{SessionID: "src", Role: types.RoleUser, Content: "one"})
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, types.Message{SessionID: "src", Role: types.RoleAssistant, Content: "two"})
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, types.Message{SessionID: "src", Role: types.RoleUser, Content: "three"})
	require.NoError(t, err)

	_, err = s.Fork(ctx, "src", "fork1", 1)
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, "fork1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "two", msgs[1].Content)
}

func TestStore_Revert_TruncatesLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "s1", "")
	require.NoError(t, err)
	for _, c := range []string{"a", "b", "c"} {
		_, err := s.AppendMessage(ctx, types.Message{SessionID: "s1", Role: types.RoleUser, Content: c})
		require.NoError(t, err)
	}

	require.NoError(t, s.Revert(ctx, "s1", 0))

	msgs, err := s.ListMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "a", msgs[0].Content)

	next, err := s.AppendMessage(ctx, types.Message{SessionID: "s1", Role: types.RoleUser, Content: "d"})
	require.NoError(t, err)
	assert.Equal(t, 1, next.Seq)
}

func TestStore_Recover_RehydratesAndSweepsExpiredApprovals(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	s1 := NewStore(cfg)
	ctx := context.Background()

	_, err := s1.Create(ctx, "s1", "prompt")
	require.NoError(t, err)
	_, err = s1.AppendMessage(ctx, types.Message{
		SessionID: "s1", Role: types.RoleAssistant,
		ToolCalls: []types.ToolCall{{ID: "call-1", Name: "bash"}},
	})
	require.NoError(t, err)

	require.NoError(t, s1.PutApproval(ctx, types.PendingApproval{
		RequestID: "req-expired", SessionID: "s1", Status: types.ApprovalPending,
		CreatedAt: 1, ExpiresAt: 2, // already in the past relative to "now" below
	}))
	require.NoError(t, s1.PutApproval(ctx, types.PendingApproval{
		RequestID: "req-live", SessionID: "s1", Status: types.ApprovalPending,
		CreatedAt: 1, ExpiresAt: time.Now().Add(time.Hour).UnixMilli(),
	}))

	s2 := NewStore(cfg)
	require.NoError(t, s2.Recover(ctx, time.Now()))

	sess, err := s2.Get(ctx, "s1", false)
	require.NoError(t, err)
	assert.Equal(t, "prompt", sess.SystemPrompt)

	st, ok := s2.stateFor("s1")
	require.True(t, ok)
	assert.True(t, st.pendingToolCalls["call-1"], "pending tool call must be rebuilt from the message log")

	expired, err := s2.GetApproval(ctx, "req-expired")
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalExpired, expired.Status)

	live, err := s2.GetApproval(ctx, "req-live")
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalPending, live.Status)
}

func TestStore_DebouncedPersistence_BypassesForToolCalls(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.UseEventDrivenPersistence = true
	cfg.DebounceWindow = time.Hour // long enough that only the bypass path can make it durable in this test
	s := NewStore(cfg)
	ctx := context.Background()

	_, err := s.Create(ctx, "s1", "")
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, types.Message{
		SessionID: "s1", Role: types.RoleAssistant,
		ToolCalls: []types.ToolCall{{ID: "call-1", Name: "bash"}},
	})
	require.NoError(t, err)

	// A fresh Store reading the same basePath must see the assistant
	// message immediately — it bypassed the debounce queue.
	s2 := NewStore(cfg)
	msgs, err := func() ([]types.Message, error) {
		require.NoError(t, s2.Recover(ctx, time.Now()))
		return s2.ListMessages(ctx, "s1")
	}()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, types.RoleAssistant, msgs[0].Role)
}
