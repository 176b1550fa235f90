// Package store is the Session Store (spec §4.2): the durable home for
// sessions, their append-only message logs, agent routing state, approvals,
// and plans. All mutation to a given session is serialized through a
// per-session mutex; persistence is delegated to a writer (immediate or
// debounced, see persistence.go).
package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/agentrt/runtime/internal/apperr"
	"github.com/agentrt/runtime/pkg/types"
)

// sessionState is the Store's in-memory view of one session: its metadata,
// its routing context, and the set of tool_call ids awaiting a reply — kept
// in memory rather than recomputed from the log on every append, but
// rebuildable from the log at startup (see recovery.go).
type sessionState struct {
	mu               sync.Mutex
	session          types.Session
	agentContext     types.AgentContext
	pendingToolCalls map[string]bool // tool_call id -> awaiting a RoleTool reply
}

// Store is the Session Store.
type Store struct {
	cfg Config
	fs  *fileStore
	w   writer

	mu       sync.RWMutex
	sessions map[string]*sessionState

	// approvalsMu serializes CreateApproval's check-then-write so that two
	// concurrent add_pending calls with the same request_id can't both
	// observe "not found" and both write (spec.md §8).
	approvalsMu sync.Mutex
}

// NewStore constructs a Store from cfg. Callers should follow NewStore
// with Recover to rehydrate state from a prior process's on-disk records.
// Named distinctly from New (the raw Storage constructor in storage.go) since both
// live in this package.
func NewStore(cfg Config) *Store {
	fs := newFileStore(cfg.BasePath)
	var w writer
	if cfg.UseEventDrivenPersistence {
		w = newDebouncedWriter(fs, cfg.DebounceWindow, cfg.DebounceMaxBatch)
	} else {
		w = newImmediateWriter(fs)
	}
	return &Store{cfg: cfg, fs: fs, w: w, sessions: make(map[string]*sessionState)}
}

// Close flushes any queued writes (a no-op under immediate persistence).
func (s *Store) Close() error { return s.w.close() }

func (s *Store) stateFor(id string) (*sessionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	return st, ok
}

// Create creates a new, empty session. It fails with AlreadyExists if a
// non-deleted session already exists at id; a soft-deleted session at the
// same id is silently superseded (its prior on-disk record is overwritten).
func (s *Store) Create(ctx context.Context, id string, systemPrompt string) (*types.Session, error) {
	if st, ok := s.stateFor(id); ok {
		st.mu.Lock()
		deleted := st.session.Deleted
		st.mu.Unlock()
		if !deleted {
			return nil, apperr.New(apperr.AlreadyExists, "store.Create", "session "+id+" already exists")
		}
	}

	now := time.Now().UnixMilli()
	sess := types.Session{
		ID:           id,
		CreatedAt:    now,
		UpdatedAt:    now,
		SystemPrompt: systemPrompt,
		NextSeq:      0,
	}
	st := &sessionState{
		session:          sess,
		agentContext:     types.AgentContext{SessionID: id, CurrentAgent: "orchestrator"},
		pendingToolCalls: make(map[string]bool),
	}

	s.mu.Lock()
	s.sessions[id] = st
	s.mu.Unlock()

	if err := s.w.writeSession(sess); err != nil {
		return nil, apperr.Wrap(apperr.Storage, "store.Create", "failed to persist new session", err)
	}
	if err := s.fs.put([]string{"sessions", id, "context"}, st.agentContext); err != nil {
		return nil, apperr.Wrap(apperr.Storage, "store.Create", "failed to persist agent context", err)
	}
	return sess.Clone(), nil
}

// Get returns a session by id, excluding soft-deleted sessions unless
// includeDeleted is true (used by the admin audit-log surface).
func (s *Store) Get(ctx context.Context, id string, includeDeleted bool) (*types.Session, error) {
	st, ok := s.stateFor(id)
	if !ok {
		return nil, apperr.New(apperr.NotFound, "store.Get", "session "+id+" not found")
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.session.Deleted && !includeDeleted {
		return nil, apperr.New(apperr.NotFound, "store.Get", "session "+id+" is deleted")
	}
	return st.session.Clone(), nil
}

// GetContext returns the AgentContext for a session.
func (s *Store) GetContext(ctx context.Context, id string) (*types.AgentContext, error) {
	st, ok := s.stateFor(id)
	if !ok {
		return nil, apperr.New(apperr.NotFound, "store.GetContext", "session "+id+" not found")
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	cp := st.agentContext
	cp.AgentHistory = append([]types.AgentSwitch(nil), st.agentContext.AgentHistory...)
	return &cp, nil
}

// SwitchAgent records a routing decision on the session's AgentContext and
// persists it immediately (routing state is always immediate — it is read
// by the classifier on every turn and must never be stale).
func (s *Store) SwitchAgent(ctx context.Context, id string, sw types.AgentSwitch) (*types.AgentContext, error) {
	st, ok := s.stateFor(id)
	if !ok {
		return nil, apperr.New(apperr.NotFound, "store.SwitchAgent", "session "+id+" not found")
	}
	st.mu.Lock()
	st.agentContext.RecordSwitch(sw)
	cp := st.agentContext
	st.mu.Unlock()

	if err := s.fs.put([]string{"sessions", id, "context"}, cp); err != nil {
		return nil, apperr.Wrap(apperr.Storage, "store.SwitchAgent", "failed to persist agent context", err)
	}
	return &cp, nil
}

// SetMetadata sets a single key on the session's AgentContext.Metadata and
// persists it immediately, following the same read-modify-persist shape as
// SwitchAgent. Used for out-of-band annotations (e.g. a generated title)
// that don't represent a routing decision.
func (s *Store) SetMetadata(ctx context.Context, id, key string, value any) error {
	st, ok := s.stateFor(id)
	if !ok {
		return apperr.New(apperr.NotFound, "store.SetMetadata", "session "+id+" not found")
	}
	st.mu.Lock()
	if st.agentContext.Metadata == nil {
		st.agentContext.Metadata = make(map[string]any)
	}
	st.agentContext.Metadata[key] = value
	cp := st.agentContext
	st.mu.Unlock()

	if err := s.fs.put([]string{"sessions", id, "context"}, cp); err != nil {
		return apperr.Wrap(apperr.Storage, "store.SetMetadata", "failed to persist agent context", err)
	}
	return nil
}

// AppendMessage assigns msg the session's next sequence number and persists
// it. If msg.Role == RoleTool, msg.ToolCallID must reference a ToolCall id
// introduced by an earlier RoleAssistant message in the same session that
// has not already been replied to — violating this returns a Validation
// error rather than silently accepting an orphaned tool reply.
func (s *Store) AppendMessage(ctx context.Context, msg types.Message) (types.Message, error) {
	st, ok := s.stateFor(msg.SessionID)
	if !ok {
		return types.Message{}, apperr.New(apperr.NotFound, "store.AppendMessage", "session "+msg.SessionID+" not found")
	}

	st.mu.Lock()
	if msg.Role == types.RoleTool {
		if !st.pendingToolCalls[msg.ToolCallID] {
			st.mu.Unlock()
			return types.Message{}, apperr.New(apperr.Validation, "store.AppendMessage",
				"tool_call_id "+msg.ToolCallID+" does not reference a pending tool call")
		}
		delete(st.pendingToolCalls, msg.ToolCallID)
	}

	msg.Seq = st.session.NextSeq
	st.session.NextSeq++
	st.session.UpdatedAt = time.Now().UnixMilli()
	if msg.Timestamp == 0 {
		msg.Timestamp = st.session.UpdatedAt
	}

	bypassDebounce := msg.Role == types.RoleAssistant && len(msg.ToolCalls) > 0
	if msg.Role == types.RoleAssistant {
		for _, tc := range msg.ToolCalls {
			st.pendingToolCalls[tc.ID] = true
		}
	}
	sessSnapshot := st.session
	st.mu.Unlock()

	if err := s.w.writeMessage(msg.SessionID, msg, bypassDebounce); err != nil {
		return types.Message{}, apperr.Wrap(apperr.Storage, "store.AppendMessage", "failed to persist message", err)
	}
	if err := s.w.writeSession(sessSnapshot); err != nil {
		return types.Message{}, apperr.Wrap(apperr.Storage, "store.AppendMessage", "failed to persist session", err)
	}
	return msg, nil
}

// UpdateLastAssistantToolCalls attaches tool_calls to the most recently
// appended assistant message of a session — the one path where the
// append-only log is mutated in place, used when the LLM client finishes
// coalescing streamed tool_call_delta chunks after the assistant message
// has already been durably appended with empty ToolCalls.
func (s *Store) UpdateLastAssistantToolCalls(ctx context.Context, sessionID, messageID string, calls []types.ToolCall) error {
	st, ok := s.stateFor(sessionID)
	if !ok {
		return apperr.New(apperr.NotFound, "store.UpdateLastAssistantToolCalls", "session "+sessionID+" not found")
	}

	msgs, err := s.ListMessages(ctx, sessionID)
	if err != nil {
		return err
	}
	var target *types.Message
	for i := range msgs {
		if msgs[i].ID == messageID && msgs[i].Role == types.RoleAssistant {
			target = &msgs[i]
		}
	}
	if target == nil {
		return apperr.New(apperr.NotFound, "store.UpdateLastAssistantToolCalls", "assistant message "+messageID+" not found")
	}
	target.ToolCalls = calls

	st.mu.Lock()
	for _, tc := range calls {
		st.pendingToolCalls[tc.ID] = true
	}
	st.mu.Unlock()

	return s.fs.put([]string{"sessions", sessionID, "messages", seqKey(target.Seq)}, *target)
}

// ListMessages returns every message of a session, ordered by Seq.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]types.Message, error) {
	if _, ok := s.stateFor(sessionID); !ok {
		return nil, apperr.New(apperr.NotFound, "store.ListMessages", "session "+sessionID+" not found")
	}

	var out []types.Message
	err := s.fs.scan([]string{"sessions", sessionID, "messages"}, func(key string, data json.RawMessage) error {
		var msg types.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		out = append(out, msg)
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "store.ListMessages", "scan failed", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// List returns the ids of sessions known to the store, excluding soft-deleted
// ones unless includeDeleted is true, in sorted order, paginated by limit and
// offset (spec.md §4.2's list(active_only, limit, offset)). offset skips that
// many leading ids; limit <= 0 means unbounded. offset past the end returns
// an empty slice rather than an error.
func (s *Store) List(ctx context.Context, includeDeleted bool, limit, offset int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []string
	for id, st := range s.sessions {
		st.mu.Lock()
		deleted := st.session.Deleted
		st.mu.Unlock()
		if deleted && !includeDeleted {
			continue
		}
		all = append(all, id)
	}
	sort.Strings(all)

	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []string{}
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

// SoftDelete marks a session deleted without removing its on-disk record —
// it becomes invisible to new traffic but stays available to the admin
// audit-log surface until Cleanup purges it after SessionAuditTTL.
func (s *Store) SoftDelete(ctx context.Context, id string) error {
	st, ok := s.stateFor(id)
	if !ok {
		return apperr.New(apperr.NotFound, "store.SoftDelete", "session "+id+" not found")
	}
	st.mu.Lock()
	now := time.Now().UnixMilli()
	st.session.Deleted = true
	st.session.DeletedAt = &now
	st.session.UpdatedAt = now
	sess := st.session
	st.mu.Unlock()

	return s.w.writeSession(sess)
}

// Cleanup physically purges every soft-deleted session whose DeletedAt is
// older than s.cfg.SessionAuditTTL, returning the purged ids.
func (s *Store) Cleanup(ctx context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged []string
	cutoff := now.Add(-s.cfg.SessionAuditTTL).UnixMilli()
	for id, st := range s.sessions {
		st.mu.Lock()
		expired := st.session.Deleted && st.session.DeletedAt != nil && *st.session.DeletedAt < cutoff
		st.mu.Unlock()
		if !expired {
			continue
		}
		if err := s.fs.delete([]string{"sessions", id}); err != nil {
			return purged, apperr.Wrap(apperr.Storage, "store.Cleanup", "failed to purge session "+id, err)
		}
		delete(s.sessions, id)
		purged = append(purged, id)
	}
	return purged, nil
}
