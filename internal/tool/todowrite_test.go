package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/agentrt/runtime/internal/store"
	"github.com/agentrt/runtime/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTodoWriteTool_Properties(t *testing.T) {
	tool := NewTodoWriteTool("/tmp", store.New(t.TempDir()))
	assert.Equal(t, "todowrite", tool.ID())
	assert.NotEmpty(t, tool.Description())
	assert.NotNil(t, tool.EinoTool())
}

func TestTodoWriteTool_Execute(t *testing.T) {
	s := store.New(t.TempDir())
	tool := NewTodoWriteTool("/tmp", s)
	toolCtx := testContext()

	input := json.RawMessage(`{
		"todos": [
			{"id": "1", "content": "write tests", "status": "in_progress", "priority": "high"},
			{"id": "2", "content": "ship it", "status": "pending", "priority": "medium"}
		]
	}`)

	result, err := tool.Execute(context.Background(), input, toolCtx)
	require.NoError(t, err)
	assert.Equal(t, "2 todos", result.Title)

	var stored []types.TodoInfo
	require.NoError(t, s.Get(context.Background(), []string{"todo", toolCtx.SessionID}, &stored))
	assert.Len(t, stored, 2)
	assert.Equal(t, "write tests", stored[0].Content)
}

func TestTodoWriteTool_Execute_InvalidInput(t *testing.T) {
	tool := NewTodoWriteTool("/tmp", store.New(t.TempDir()))
	toolCtx := testContext()

	_, err := tool.Execute(context.Background(), json.RawMessage(`{invalid}`), toolCtx)
	assert.Error(t, err)
}

func TestTodoWriteTool_Execute_AllCompleted(t *testing.T) {
	tool := NewTodoWriteTool("/tmp", store.New(t.TempDir()))
	toolCtx := testContext()

	input := json.RawMessage(`{"todos": [{"id": "1", "content": "done", "status": "completed", "priority": "low"}]}`)
	result, err := tool.Execute(context.Background(), input, toolCtx)
	require.NoError(t, err)
	assert.Equal(t, "0 todos", result.Title)
}
