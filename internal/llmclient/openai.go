package llmclient

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/agentrt/runtime/pkg/types"
)

// OpenAIProvider implements Provider for OpenAI (and OpenAI-compatible)
// chat models.
type OpenAIProvider struct {
	chatModel model.ToolCallingChatModel
	models    []types.Model
	config    *OpenAIConfig
}

// OpenAIConfig holds configuration for the OpenAI provider.
type OpenAIConfig struct {
	// ID is the provider identifier used in "provider/model" strings. If
	// empty, defaults to "openai".
	ID        string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int

	UseAzure   bool
	APIVersion string
}

// NewOpenAIProvider creates an OpenAI provider, resolving the API key
// from OPENAI_API_KEY (or AZURE_OPENAI_API_KEY under UseAzure) when
// config.APIKey is empty.
func NewOpenAIProvider(ctx context.Context, cfg *OpenAIConfig) (*OpenAIProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		if cfg.UseAzure {
			apiKey = os.Getenv("AZURE_OPENAI_API_KEY")
		} else {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	modelID := cfg.Model
	if modelID == "" {
		modelID = os.Getenv("OPENAI_MODEL_ID")
	}
	if modelID == "" {
		modelID = "gpt-4o"
	}

	ocfg := &openai.ChatModelConfig{
		APIKey:              apiKey,
		Model:               modelID,
		MaxCompletionTokens: &maxTokens, // GPT-5 family requires MaxCompletionTokens
	}
	if cfg.BaseURL != "" {
		ocfg.BaseURL = cfg.BaseURL
	}
	if cfg.UseAzure {
		ocfg.ByAzure = true
		if cfg.APIVersion != "" {
			ocfg.APIVersion = cfg.APIVersion
		} else {
			ocfg.APIVersion = "2024-02-15-preview"
		}
	}

	chatModel, err := openai.NewChatModel(ctx, ocfg)
	if err != nil {
		return nil, fmt.Errorf("create openai chat model: %w", err)
	}

	return &OpenAIProvider{chatModel: chatModel, models: openAIModels(), config: cfg}, nil
}

func (p *OpenAIProvider) ID() string {
	if p.config.ID != "" {
		return p.config.ID
	}
	return "openai"
}

func (p *OpenAIProvider) Name() string { return "OpenAI" }

func (p *OpenAIProvider) Models() []types.Model { return p.models }

func (p *OpenAIProvider) ChatModel() model.ToolCallingChatModel { return p.chatModel }

// CreateCompletion creates a streaming completion.
func (p *OpenAIProvider) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error) {
	chatModel := p.chatModel
	if len(req.Tools) > 0 {
		var err error
		chatModel, err = chatModel.WithTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("bind tools: %w", err)
		}
	}

	opts := []model.Option{openai.WithMaxCompletionTokens(req.MaxTokens)}
	if req.Temperature > 0 {
		opts = append(opts, model.WithTemperature(float32(req.Temperature)))
	}

	stream, err := chatModel.Stream(ctx, req.Messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}
	return NewCompletionStream(stream), nil
}

func openAIModels() []types.Model {
	return []types.Model{
		{
			ID: "gpt-5", Name: "GPT-5", ProviderID: "openai",
			ContextLength: 272000, MaxOutputTokens: 128000,
			SupportsTools: true, SupportsVision: true, SupportsReasoning: true,
		},
		{
			ID: "gpt-5-mini", Name: "GPT-5 Mini", ProviderID: "openai",
			ContextLength: 272000, MaxOutputTokens: 128000,
			SupportsTools: true, SupportsVision: true, SupportsReasoning: true,
		},
		{
			ID: "gpt-5-nano", Name: "GPT-5 Nano", ProviderID: "openai",
			ContextLength: 272000, MaxOutputTokens: 128000,
			SupportsTools: true, SupportsVision: true,
		},
		{
			ID: "gpt-4o", Name: "GPT-4o", ProviderID: "openai",
			ContextLength: 128000, MaxOutputTokens: 16384,
			SupportsTools: true, SupportsVision: true,
		},
		{
			ID: "gpt-4o-mini", Name: "GPT-4o Mini", ProviderID: "openai",
			ContextLength: 128000, MaxOutputTokens: 16384,
			SupportsTools: true, SupportsVision: true,
		},
		{
			ID: "o1", Name: "O1", ProviderID: "openai",
			ContextLength: 200000, MaxOutputTokens: 100000,
			SupportsTools: true, SupportsReasoning: true,
		},
		{
			ID: "o1-mini", Name: "O1 Mini", ProviderID: "openai",
			ContextLength: 128000, MaxOutputTokens: 65536,
			SupportsTools: true, SupportsReasoning: true,
		},
	}
}
