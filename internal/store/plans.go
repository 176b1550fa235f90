package store

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/agentrt/runtime/internal/apperr"
	"github.com/agentrt/runtime/pkg/types"
)

// PutPlan persists a Plan (and its Subtasks, embedded) at
// plans/<id>.json — spec.md §3's ownership rule puts a Plan under exactly
// one Session, so plans are not nested under sessions/ on disk purely to
// keep cross-plan listing (for the admin surface) a flat directory scan.
func (s *Store) PutPlan(ctx context.Context, p types.Plan) error {
	if err := s.fs.put([]string{"plans", p.ID}, p); err != nil {
		return apperr.Wrap(apperr.Storage, "store.PutPlan", "failed to persist plan", err)
	}
	return nil
}

// GetPlan loads a Plan by id.
func (s *Store) GetPlan(ctx context.Context, id string) (*types.Plan, error) {
	var p types.Plan
	if err := s.fs.get([]string{"plans", id}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPlans returns every Plan belonging to sessionID.
func (s *Store) ListPlans(ctx context.Context, sessionID string) ([]types.Plan, error) {
	var out []types.Plan
	err := s.fs.scan([]string{"plans"}, func(key string, data json.RawMessage) error {
		var p types.Plan
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.SessionID != sessionID {
			return nil
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "store.ListPlans", "scan failed", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}
