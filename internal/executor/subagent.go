// Package executor adapts the Orchestrator's Service into the Task tool's
// TaskExecutor interface, so the "task" tool (internal/tool/task.go) can
// actually run a subagent turn instead of returning a placeholder.
package executor

import (
	"fmt"

	"context"

	"github.com/agentrt/runtime/internal/agent"
	"github.com/agentrt/runtime/internal/orchestrator"
	"github.com/agentrt/runtime/internal/tool"
	"github.com/agentrt/runtime/pkg/types"
)

// SubagentExecutor runs a Task tool invocation as a complete, independent
// turn: it creates a child session, pins it to the requested specialist
// agent, and drives one full Engine turn through the same
// orchestrator.Service the admin REST surface and transport edge use.
type SubagentExecutor struct {
	svc    *orchestrator.Service
	agents *agent.Registry
}

// NewSubagentExecutor constructs a SubagentExecutor.
func NewSubagentExecutor(svc *orchestrator.Service, agents *agent.Registry) *SubagentExecutor {
	return &SubagentExecutor{svc: svc, agents: agents}
}

// ExecuteSubtask implements tool.TaskExecutor.
func (e *SubagentExecutor) ExecuteSubtask(ctx context.Context, parentSessionID, agentName, prompt string, opts tool.TaskOptions) (*tool.TaskResult, error) {
	if _, err := e.agents.Get(agentName); err != nil {
		return nil, fmt.Errorf("agent not found: %s: %w", agentName, err)
	}

	child, err := e.svc.Create(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create child session: %w", err)
	}

	if err := e.svc.SetAgent(ctx, child.ID, agentName); err != nil {
		return nil, fmt.Errorf("failed to pin subagent: %w", err)
	}

	if err := e.svc.SendMessage(ctx, child.ID, prompt, ""); err != nil {
		return &tool.TaskResult{
			Output:    "Error executing subtask: " + err.Error(),
			SessionID: child.ID,
			AgentID:   agentName,
			Error:     err.Error(),
			Metadata:  map[string]any{"parentSessionID": parentSessionID},
		}, nil
	}

	history, err := e.svc.History(ctx, child.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read subtask history: %w", err)
	}

	return &tool.TaskResult{
		Output:    lastAssistantText(history),
		SessionID: child.ID,
		AgentID:   agentName,
		Metadata:  map[string]any{"parentSessionID": parentSessionID},
	}, nil
}

// lastAssistantText returns the most recent assistant message's content,
// the subtask's final answer once its turn has finished.
func lastAssistantText(history []types.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == types.RoleAssistant {
			return history[i].Content
		}
	}
	return ""
}
