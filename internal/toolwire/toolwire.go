// Package toolwire adapts internal/tool's built-in tool implementations
// into internal/dispatcher's Declaration/LocalHandler shape, so the
// Orchestrator's Tool Dispatcher has something registered to route
// tool_calls to. This is the one place that bridges the two packages —
// neither imports the other directly.
package toolwire

import (
	"context"
	"encoding/json"

	"github.com/agentrt/runtime/internal/dispatcher"
	"github.com/agentrt/runtime/internal/tool"
	"github.com/agentrt/runtime/pkg/types"
)

// pathArgFields names the argument field holding a file/directory path for
// every built-in tool that takes one, keyed by tool ID. Tools absent from
// this map take no path argument and are never subject to an agent's
// AllowedPaths restriction.
var pathArgFields = map[string][]string{
	"read": {"filePath"},
	"write": {"filePath"},
	"edit": {"filePath"},
	"glob": {"path"},
	"grep": {"path"},
	"list": {"path"},
}

// RegisterBuiltinTools wires every tool in registry into dispatch as a
// local tool, computing each tool's AllowedAgents from the agent
// roster's per-agent Tools map (types.AgentDefinition.Tools == nil means
// that agent may invoke every tool).
func RegisterBuiltinTools(dispatch *dispatcher.Dispatcher, registry *tool.Registry, agentDefs map[string]types.AgentDefinition) error {
	for _, t := range registry.List() {
		decl := dispatcher.Declaration{
			Name:          t.ID(),
			Description:   t.Description(),
			Schema:        t.Parameters(),
			AllowedAgents: allowedAgents(t.ID(), agentDefs),
			PathArgFields: pathArgFields[t.ID()],
		}
		if err := dispatch.RegisterLocal(decl, localHandler(t)); err != nil {
			return err
		}
	}
	return nil
}

// localHandler closes over a tool.Tool and adapts dispatcher's
// CallContext/Result to tool.Context/Result.
func localHandler(t tool.Tool) dispatcher.LocalHandler {
	return func(ctx context.Context, call dispatcher.CallContext, arguments json.RawMessage) (*dispatcher.Result, error) {
		toolCtx := &tool.Context{
			SessionID: call.SessionID,
			MessageID: call.MessageID,
			CallID:    call.CallID,
			Agent:     call.Agent,
		}
		result, err := t.Execute(ctx, arguments, toolCtx)
		if err != nil {
			return nil, err
		}
		return &dispatcher.Result{Title: result.Title, Output: result.Output, Metadata: result.Metadata}, nil
	}
}

// allowedAgents returns the subset of agentDefs permitted to invoke
// toolID, or nil when every agent may (dispatcher.Declaration's
// "empty means every agent may invoke it" convention).
func allowedAgents(toolID string, agentDefs map[string]types.AgentDefinition) []string {
	restricted := false
	var allowed []string
	for name, def := range agentDefs {
		if def.Tools == nil {
			allowed = append(allowed, name)
			continue
		}
		if def.Tools[toolID] {
			allowed = append(allowed, name)
		} else {
			restricted = true
		}
	}
	if !restricted {
		return nil
	}
	return allowed
}
