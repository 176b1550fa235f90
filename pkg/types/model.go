package types

// Model describes one LLM model available from a configured provider.
type Model struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	ProviderID        string       `json:"providerID"`
	ContextLength     int          `json:"contextLength"`
	MaxOutputTokens   int          `json:"maxOutputTokens,omitempty"`
	SupportsTools     bool         `json:"supportsTools"`
	SupportsVision    bool         `json:"supportsVision"`
	SupportsReasoning bool         `json:"supportsReasoning,omitempty"`
	Options           ModelOptions `json:"options,omitempty"`
}

// ModelOptions contains model-specific generation parameters.
type ModelOptions struct {
	Temperature   *float64 `json:"temperature,omitempty"`
	TopP          *float64 `json:"topP,omitempty"`
	PromptCaching bool     `json:"promptCaching,omitempty"`
}

// AgentDefinition describes one specialist agent available to the
// orchestrator's classifier (orchestrator, coder, architect, debug, ask, and
// an optional universal fallback).
type AgentDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Model       string          `json:"model,omitempty"` // provider/model override, empty = use default
	SystemPrompt string         `json:"systemPrompt,omitempty"`
	Tools       map[string]bool `json:"tools,omitempty"` // nil = all tools allowed
	AllowedPaths []string       `json:"allowedPaths,omitempty"` // glob restrictions, empty = unrestricted
}
