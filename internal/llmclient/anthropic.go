package llmclient

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"

	"github.com/agentrt/runtime/pkg/types"
)

// AnthropicProvider implements Provider for Anthropic Claude models.
type AnthropicProvider struct {
	chatModel model.ToolCallingChatModel
	models    []types.Model
	config    *AnthropicConfig
}

// AnthropicConfig holds configuration for the Anthropic provider.
type AnthropicConfig struct {
	// ID is the provider identifier used in "provider/model" strings. If
	// empty, defaults to "anthropic".
	ID        string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int

	Thinking *claude.Thinking

	UseBedrock bool
	Region     string
	Profile    string
}

// NewAnthropicProvider creates an Anthropic provider, resolving the API
// key from ANTHROPIC_API_KEY when config.APIKey is empty.
func NewAnthropicProvider(ctx context.Context, cfg *AnthropicConfig) (*AnthropicProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" && !cfg.UseBedrock {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	modelID := cfg.Model
	if modelID == "" {
		modelID = "claude-sonnet-4-20250514"
	}

	var chatModel model.ToolCallingChatModel
	var err error

	if cfg.UseBedrock {
		bedrockModel := "anthropic." + modelID + "-v1:0"
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			ByBedrock: true,
			Region:    cfg.Region,
			Profile:   cfg.Profile,
			Model:     bedrockModel,
			MaxTokens: cfg.MaxTokens,
			Thinking:  cfg.Thinking,
		})
	} else {
		ccfg := &claude.Config{
			APIKey:    apiKey,
			Model:     modelID,
			MaxTokens: cfg.MaxTokens,
			Thinking:  cfg.Thinking,
		}
		if cfg.BaseURL != "" {
			ccfg.BaseURL = &cfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, ccfg)
	}
	if err != nil {
		return nil, fmt.Errorf("create claude chat model: %w", err)
	}

	return &AnthropicProvider{chatModel: chatModel, models: anthropicModels(), config: cfg}, nil
}

func (p *AnthropicProvider) ID() string {
	if p.config.ID != "" {
		return p.config.ID
	}
	return "anthropic"
}

func (p *AnthropicProvider) Name() string { return "Anthropic" }

func (p *AnthropicProvider) Models() []types.Model { return p.models }

func (p *AnthropicProvider) ChatModel() model.ToolCallingChatModel { return p.chatModel }

// CreateCompletion creates a streaming completion.
func (p *AnthropicProvider) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error) {
	chatModel := p.chatModel
	if len(req.Tools) > 0 {
		var err error
		chatModel, err = chatModel.WithTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("bind tools: %w", err)
		}
	}

	stream, err := chatModel.Stream(ctx, req.Messages,
		model.WithMaxTokens(req.MaxTokens),
		model.WithTemperature(float32(req.Temperature)),
	)
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}
	return NewCompletionStream(stream), nil
}

func anthropicModels() []types.Model {
	return []types.Model{
		{
			ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ProviderID: "anthropic",
			ContextLength: 200000, MaxOutputTokens: 64000,
			SupportsTools: true, SupportsVision: true,
			Options: types.ModelOptions{PromptCaching: true},
		},
		{
			ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ProviderID: "anthropic",
			ContextLength: 200000, MaxOutputTokens: 32000,
			SupportsTools: true, SupportsVision: true, SupportsReasoning: true,
			Options: types.ModelOptions{PromptCaching: true},
		},
		{
			ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", ProviderID: "anthropic",
			ContextLength: 200000, MaxOutputTokens: 8192,
			SupportsTools: true, SupportsVision: true,
			Options: types.ModelOptions{PromptCaching: true},
		},
		{
			ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", ProviderID: "anthropic",
			ContextLength: 200000, MaxOutputTokens: 8192,
			SupportsTools: true, SupportsVision: true,
		},
		{
			ID: "claude-haiku-4-5-20251001", Name: "Claude 4.5 Haiku", ProviderID: "anthropic",
			ContextLength: 200000, MaxOutputTokens: 8192,
			SupportsTools: true, SupportsVision: true,
		},
		// Alias for claude-haiku-4-5-20251001
		{
			ID: "claude-haiku-4-5", Name: "Claude 4.5 Haiku", ProviderID: "anthropic",
			ContextLength: 200000, MaxOutputTokens: 8192,
			SupportsTools: true, SupportsVision: true,
		},
	}
}
