package llmclient

import (
	"context"
	"encoding/json"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/agentrt/runtime/pkg/types"
)

// Provider wraps one upstream chat-completion API behind eino's
// ToolCallingChatModel. Client is the thing callers use; Provider is the
// per-vendor adapter Client drives.
type Provider interface {
	ID() string
	Name() string
	Models() []types.Model
	ChatModel() model.ToolCallingChatModel
	CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error)
}

// CompletionRequest is a provider-agnostic streaming completion request.
type CompletionRequest struct {
	Model       string
	Messages    []*schema.Message
	Tools       []*schema.ToolInfo
	MaxTokens   int
	Temperature float64
	StopWords   []string
}

// CompletionStream wraps an eino stream reader; Client.Stream consumes one
// of these and re-exposes it as a sequence of Chunks.
type CompletionStream struct {
	reader *schema.StreamReader[*schema.Message]
}

// NewCompletionStream wraps reader in a CompletionStream.
func NewCompletionStream(reader *schema.StreamReader[*schema.Message]) *CompletionStream {
	return &CompletionStream{reader: reader}
}

// Recv receives the next message chunk from the stream.
func (s *CompletionStream) Recv() (*schema.Message, error) {
	return s.reader.Recv()
}

// Close closes the upstream stream; required for spec.md §4.5's
// cancellation-propagation guarantee.
func (s *CompletionStream) Close() {
	s.reader.Close()
}

// ToolInfo is the provider-agnostic tool manifest entry passed into
// StreamRequest.Tools.
type ToolInfo struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON Schema
}

// ConvertToEinoTools converts a tool manifest to eino's schema.ToolInfo.
func ConvertToEinoTools(tools []ToolInfo) []*schema.ToolInfo {
	result := make([]*schema.ToolInfo, len(tools))
	for i, t := range tools {
		var params map[string]*schema.ParameterInfo
		if len(t.Parameters) > 0 {
			params = parseJSONSchemaToParams(t.Parameters)
		}
		result[i] = &schema.ToolInfo{
			Name:        t.Name,
			Desc:        t.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		}
	}
	return result
}

func parseJSONSchemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	var jsonSchema struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schemaJSON, &jsonSchema); err != nil {
		return nil
	}

	requiredSet := make(map[string]bool, len(jsonSchema.Required))
	for _, r := range jsonSchema.Required {
		requiredSet[r] = true
	}

	params := make(map[string]*schema.ParameterInfo, len(jsonSchema.Properties))
	for name, prop := range jsonSchema.Properties {
		paramType := schema.String
		switch prop.Type {
		case "integer":
			paramType = schema.Integer
		case "number":
			paramType = schema.Number
		case "boolean":
			paramType = schema.Boolean
		case "array":
			paramType = schema.Array
		case "object":
			paramType = schema.Object
		}
		params[name] = &schema.ParameterInfo{
			Type:     paramType,
			Desc:     prop.Description,
			Required: requiredSet[name],
		}
	}
	return params
}

// einoRole converts a types.Role to eino's schema.RoleType.
func einoRole(role types.Role) schema.RoleType {
	switch role {
	case types.RoleUser:
		return schema.User
	case types.RoleSystem:
		return schema.System
	case types.RoleTool:
		return schema.Tool
	default:
		return schema.Assistant
	}
}

// roleFromEino converts an eino schema.RoleType back to types.Role.
func roleFromEino(role schema.RoleType) types.Role {
	switch role {
	case schema.User:
		return types.RoleUser
	case schema.System:
		return types.RoleSystem
	case schema.Tool:
		return types.RoleTool
	default:
		return types.RoleAssistant
	}
}

// ConvertToEinoMessages converts the runtime's flat types.Message log to
// eino's schema.Message list. Unlike the teacher's part-based messages,
// types.Message carries its text in Content and its tool requests in
// ToolCalls directly, so there is no separate parts table to join against.
func ConvertToEinoMessages(messages []*types.Message) []*schema.Message {
	result := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		einoMsg := &schema.Message{
			Role:    einoRole(msg.Role),
			Content: msg.Content,
		}
		if msg.Role == types.RoleTool {
			einoMsg.ToolCallID = msg.ToolCallID
		}
		for _, tc := range msg.ToolCalls {
			einoMsg.ToolCalls = append(einoMsg.ToolCalls, schema.ToolCall{
				ID: tc.ID,
				Function: schema.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		result = append(result, einoMsg)
	}
	return result
}

// ConvertFromEinoMessage builds a fully-formed assistant types.Message
// from a complete (non-streaming) eino message, coalescing its tool calls.
func ConvertFromEinoMessage(msg *schema.Message, sessionID string) *types.Message {
	out := &types.Message{
		SessionID: sessionID,
		Role:      roleFromEino(msg.Role),
		Content:   msg.Content,
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}
