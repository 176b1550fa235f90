package store

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/agentrt/runtime/internal/apperr"
	"github.com/agentrt/runtime/pkg/types"
)

// PutApproval persists a PendingApproval row. The Approval Manager (internal
// /approval) owns the state machine; the Session Store only durably stores
// whatever state it is handed, keyed by RequestID, at
// approvals/<requestID>.json so it survives a restart. Used for updating an
// already-existing row (a decision, an expiry); see CreateApproval for the
// insert path, which additionally rejects a duplicate RequestID.
func (s *Store) PutApproval(ctx context.Context, a types.PendingApproval) error {
	if err := s.fs.put([]string{"approvals", a.RequestID}, a); err != nil {
		return apperr.Wrap(apperr.Storage, "store.PutApproval", "failed to persist approval", err)
	}
	return nil
}

// CreateApproval persists a new PendingApproval row, failing with
// AlreadyExists if a.RequestID already has a row on disk. This is the
// enforcement point for spec.md §4.3/§8's "duplicate request_id is an
// error, exactly one concurrent add_pending succeeds" property — callers
// creating a fresh approval (internal/approval.Manager.AddPending) must use
// this instead of PutApproval.
func (s *Store) CreateApproval(ctx context.Context, a types.PendingApproval) error {
	s.approvalsMu.Lock()
	defer s.approvalsMu.Unlock()

	if _, err := s.GetApproval(ctx, a.RequestID); err == nil {
		return apperr.New(apperr.AlreadyExists, "store.CreateApproval", "approval request "+a.RequestID+" already exists")
	} else if kind, ok := apperr.KindOf(err); !ok || kind != apperr.NotFound {
		return err
	}
	return s.PutApproval(ctx, a)
}

// GetApproval loads a PendingApproval by RequestID.
func (s *Store) GetApproval(ctx context.Context, requestID string) (*types.PendingApproval, error) {
	var a types.PendingApproval
	if err := s.fs.get([]string{"approvals", requestID}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListApprovals returns every PendingApproval on disk, optionally filtered
// to a single session, sorted by CreatedAt.
func (s *Store) ListApprovals(ctx context.Context, sessionID string) ([]types.PendingApproval, error) {
	var out []types.PendingApproval
	err := s.fs.scan([]string{"approvals"}, func(key string, data json.RawMessage) error {
		var a types.PendingApproval
		if err := json.Unmarshal(data, &a); err != nil {
			return err
		}
		if sessionID != "" && a.SessionID != sessionID {
			return nil
		}
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "store.ListApprovals", "scan failed", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

// DeleteApproval removes an approval row. The Approval Manager calls it once
// a request has been approved or rejected; expired rows are kept.
func (s *Store) DeleteApproval(ctx context.Context, requestID string) error {
	return s.fs.delete([]string{"approvals", requestID})
}
