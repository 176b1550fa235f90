// Package approval implements the Human-in-the-Loop gate (spec.md §4.3):
// a glob-pattern policy decides which tool calls and plans require a human
// decision before they may proceed, and a Manager tracks each gated action
// through pending -> {approved, rejected, expired}.
package approval

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentrt/runtime/internal/apperr"
	"github.com/agentrt/runtime/internal/eventbus"
	"github.com/agentrt/runtime/pkg/types"
)

// DefaultExpiry is how long a pending approval remains actionable before a
// sweep marks it Expired, per spec.md §4.3.
const DefaultExpiry = 5 * time.Minute

// store is the subset of *internal/store.Store the Manager needs, kept as
// an interface so it can be faked in tests without spinning up a real
// file-backed Store.
type store interface {
	CreateApproval(ctx context.Context, a types.PendingApproval) error
	PutApproval(ctx context.Context, a types.PendingApproval) error
	GetApproval(ctx context.Context, requestID string) (*types.PendingApproval, error)
	ListApprovals(ctx context.Context, sessionID string) ([]types.PendingApproval, error)
	DeleteApproval(ctx context.Context, requestID string) error
}

// Manager is the HITL gate: it consults a PolicyStore to decide whether an
// action needs a human decision, persists PendingApproval rows via the
// Session Store, and publishes approval_required/decided/expired events.
type Manager struct {
	policy *PolicyStore
	store  store
	bus    *eventbus.Bus
	expiry time.Duration
	log    zerolog.Logger
	now    func() time.Time
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithExpiry overrides DefaultExpiry.
func WithExpiry(d time.Duration) Option {
	return func(m *Manager) { m.expiry = d }
}

// WithClock overrides time.Now, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager constructs a Manager. policy and bus are required; store may
// be any type satisfying the store interface above (normally
// *internal/store.Store).
func NewManager(policy *PolicyStore, st store, bus *eventbus.Bus, log zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		policy: policy,
		store:  st,
		bus:    bus,
		expiry: DefaultExpiry,
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ShouldRequire reports whether subject (a tool name or plan id) of
// requestType needs a human decision under the current policy, along with
// the matched rule's Reason, if any.
func (m *Manager) ShouldRequire(requestType types.RequestType, subject string) (requires bool, reason string) {
	return Evaluate(m.policy.Current(), requestType, subject)
}

// AddPending creates and persists a new PendingApproval keyed by the
// caller-supplied requestID and publishes approval_required. Per spec.md
// §4.3, requestID is the caller's identifier for the gated action (the
// dispatcher passes the tool_call id, so the approval's id matches the
// tool_call it gates); a duplicate requestID fails with AlreadyExists
// rather than silently overwriting the existing row (spec.md §8).
// arguments is the raw JSON of the gated call's arguments, stored for the
// operator's review UI.
func (m *Manager) AddPending(ctx context.Context, requestID, sessionID string, requestType types.RequestType, subject, arguments, reason string) (*types.PendingApproval, error) {
	now := m.now()
	a := types.PendingApproval{
		RequestID:   requestID,
		RequestType: requestType,
		Subject:     subject,
		SessionID:   sessionID,
		Arguments:   arguments,
		Reason:      reason,
		Status:      types.ApprovalPending,
		CreatedAt:   now.UnixMilli(),
		ExpiresAt:   now.Add(m.expiry).UnixMilli(),
	}
	if err := m.store.CreateApproval(ctx, a); err != nil {
		return nil, err
	}

	m.publish(ctx, types.EventApprovalRequired, a)
	return &a, nil
}

// GetPending loads one PendingApproval by id.
func (m *Manager) GetPending(ctx context.Context, requestID string) (*types.PendingApproval, error) {
	return m.store.GetApproval(ctx, requestID)
}

// ListPending returns every approval for a session (or every session, if
// sessionID is empty) currently in ApprovalPending state.
func (m *Manager) ListPending(ctx context.Context, sessionID string) ([]types.PendingApproval, error) {
	all, err := m.store.ListApprovals(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var pending []types.PendingApproval
	for _, a := range all {
		if a.Status == types.ApprovalPending {
			pending = append(pending, a)
		}
	}
	return pending, nil
}

// Approve transitions requestID to ApprovalApproved. Only legal while the
// row is still ApprovalPending; a decision on an expired row is rejected as
// a validation error rather than silently overwritten. An approved or
// rejected row is deleted once decided, so a second decision on it fails
// with the store's not-found error.
func (m *Manager) Approve(ctx context.Context, requestID string) (*types.PendingApproval, error) {
	return m.decide(ctx, requestID, types.ApprovalApproved)
}

// Reject transitions requestID to ApprovalRejected.
func (m *Manager) Reject(ctx context.Context, requestID string) (*types.PendingApproval, error) {
	return m.decide(ctx, requestID, types.ApprovalRejected)
}

func (m *Manager) decide(ctx context.Context, requestID string, status types.ApprovalStatus) (*types.PendingApproval, error) {
	a, err := m.store.GetApproval(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if a.Status != types.ApprovalPending {
		return nil, apperr.New(apperr.Validation, "approval.decide", "approval "+requestID+" is no longer pending")
	}
	now := m.now().UnixMilli()
	a.Status = status
	a.DecidedAt = &now

	if err := m.store.PutApproval(ctx, *a); err != nil {
		return nil, err
	}
	m.publish(ctx, types.EventApprovalDecided, *a)

	// A terminal decision (approved/rejected) has nothing left to track;
	// the persisted row is deleted once the decision event has gone out.
	// Expired rows are left in place for Recover's sweep and any audit
	// surface to see how a stale request was resolved.
	if err := m.store.DeleteApproval(ctx, requestID); err != nil {
		return nil, err
	}
	return a, nil
}

// SweepExpired transitions every ApprovalPending row past its ExpiresAt to
// ApprovalExpired and publishes approval_expired for each. Intended to be
// called on a timer from the composition root, alongside the Session
// Store's own soft-delete Cleanup sweep.
func (m *Manager) SweepExpired(ctx context.Context) ([]string, error) {
	all, err := m.store.ListApprovals(ctx, "")
	if err != nil {
		return nil, err
	}

	now := m.now().UnixMilli()
	var expired []string
	for _, a := range all {
		if a.Status != types.ApprovalPending || a.ExpiresAt > now {
			continue
		}
		a.Status = types.ApprovalExpired
		decided := now
		a.DecidedAt = &decided
		if err := m.store.PutApproval(ctx, a); err != nil {
			return expired, err
		}
		m.publish(ctx, types.EventApprovalExpired, a)
		expired = append(expired, a.RequestID)
	}
	return expired, nil
}

func (m *Manager) publish(ctx context.Context, t types.EventType, a types.PendingApproval) {
	e := eventbus.NewEvent(t)
	e.EventID = uuid.NewString()
	e.Timestamp = m.now().UnixMilli()
	e.SessionID = a.SessionID
	e.Source = "approval"
	e.Payload = map[string]any{
		"requestID":   a.RequestID,
		"requestType": a.RequestType,
		"subject":     a.Subject,
		"arguments":   a.Arguments,
		"status":      a.Status,
		"reason":      a.Reason,
	}
	m.bus.PublishAndWait(ctx, e)
}
