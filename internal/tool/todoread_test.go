package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/agentrt/runtime/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTodoReadTool_Properties(t *testing.T) {
	tool := NewTodoReadTool("/tmp", store.New(t.TempDir()))
	assert.Equal(t, "todoread", tool.ID())
	assert.NotEmpty(t, tool.Description())
	assert.NotNil(t, tool.EinoTool())
}

func TestTodoReadTool_Execute_Empty(t *testing.T) {
	tool := NewTodoReadTool("/tmp", store.New(t.TempDir()))
	toolCtx := testContext()

	result, err := tool.Execute(context.Background(), json.RawMessage(`{}`), toolCtx)
	require.NoError(t, err)
	assert.Equal(t, "0 todos", result.Title)
}

func TestTodoReadTool_Execute_RoundTrip(t *testing.T) {
	s := store.New(t.TempDir())
	writeTool := NewTodoWriteTool("/tmp", s)
	readTool := NewTodoReadTool("/tmp", s)
	toolCtx := testContext()

	writeInput := json.RawMessage(`{"todos": [{"id": "1", "content": "a task", "status": "pending", "priority": "high"}]}`)
	_, err := writeTool.Execute(context.Background(), writeInput, toolCtx)
	require.NoError(t, err)

	result, err := readTool.Execute(context.Background(), json.RawMessage(`{}`), toolCtx)
	require.NoError(t, err)
	assert.Equal(t, "1 todos", result.Title)
	assert.Contains(t, result.Output, "a task")
}
