// Package orchestrator drives the multi-agent turn loop (spec.md §4.6).
package orchestrator

import (
	"context"

	"github.com/agentrt/runtime/internal/store"
	"github.com/agentrt/runtime/pkg/types"
)

// GetTodos retrieves todos for a session.
func GetTodos(ctx context.Context, storage *store.Storage, sessionID string) ([]types.TodoInfo, error) {
	var todos []types.TodoInfo
	err := storage.Get(ctx, []string{"todo", sessionID}, &todos)
	if err == store.ErrNotFound {
		return []types.TodoInfo{}, nil
	}
	if err != nil {
		return nil, err
	}
	return todos, nil
}

// UpdateTodos updates todos for a session. Subscribers watching the
// eventbus's tool_call_finished topic observe todowrite's Result.Metadata
// instead of a dedicated todo-updated event (see internal/tool/todowrite.go).
func UpdateTodos(ctx context.Context, storage *store.Storage, sessionID string, todos []types.TodoInfo) error {
	return storage.Put(ctx, []string{"todo", sessionID}, todos)
}
