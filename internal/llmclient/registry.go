package llmclient

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentrt/runtime/internal/config"
	"github.com/agentrt/runtime/pkg/types"
)

// Registry holds every configured Provider, keyed by provider ID.
type Registry struct {
	mu           sync.RWMutex
	providers    map[string]Provider
	defaultModel string // "provider/model", from config.Config.LLMModel
}

// NewRegistry creates an empty registry that defaults to defaultModel.
func NewRegistry(defaultModel string) *Registry {
	return &Registry{providers: make(map[string]Provider), defaultModel: defaultModel}
}

// Register adds a provider to the registry.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
}

// Get retrieves a provider by ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return p, nil
}

// List returns all registered providers.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	return out
}

// GetModel retrieves a specific model from a provider.
func (r *Registry) GetModel(providerID, modelID string) (*types.Model, error) {
	p, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}
	for _, m := range p.Models() {
		if m.ID == modelID {
			return &m, nil
		}
	}
	return nil, fmt.Errorf("model not found: %s/%s", providerID, modelID)
}

// AllModels returns every model from every registered provider, ordered
// by a rough capability priority (newest/largest models first).
func (r *Registry) AllModels() []types.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var models []types.Model
	for _, p := range r.providers {
		models = append(models, p.Models()...)
	}
	sort.SliceStable(models, func(i, j int) bool {
		return modelPriority(models[i].ID) > modelPriority(models[j].ID)
	})
	return models
}

// DefaultModel resolves the registry's configured default "provider/model"
// string, falling back to the first available model if unset or missing.
func (r *Registry) DefaultModel() (*types.Model, error) {
	if r.defaultModel != "" {
		providerID, modelID := ParseModelString(r.defaultModel)
		if m, err := r.GetModel(providerID, modelID); err == nil {
			return m, nil
		}
	}
	models := r.AllModels()
	if len(models) == 0 {
		return nil, fmt.Errorf("no models available")
	}
	return &models[0], nil
}

// ParseModelString parses a "provider/model" identifier.
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

func modelPriority(modelID string) int {
	switch {
	case strings.Contains(modelID, "gpt-5"):
		return 100
	case strings.Contains(modelID, "claude-sonnet-4"):
		return 90
	case strings.Contains(modelID, "claude-opus"):
		return 85
	case strings.Contains(modelID, "gpt-4o"):
		return 80
	case strings.Contains(modelID, "claude-3-5"), strings.Contains(modelID, "claude-haiku-4-5"):
		return 75
	default:
		return 50
	}
}

// InitializeProviders registers the Anthropic and OpenAI providers from
// environment variables (ANTHROPIC_API_KEY/ANTHROPIC_BASE_URL,
// OPENAI_API_KEY/OPENAI_BASE_URL/OPENAI_MODEL_ID), skipping whichever one
// has no credentials. It never fails outright: an LLM provider being
// unreachable at boot is reported through the circuit breaker at call
// time, not by refusing to start.
func InitializeProviders(ctx context.Context, cfg *config.Config, log zerolog.Logger) *Registry {
	registry := NewRegistry(cfg.LLMModel)

	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		p, err := NewAnthropicProvider(ctx, &AnthropicConfig{
			ID:        "anthropic",
			APIKey:    apiKey,
			BaseURL:   os.Getenv("ANTHROPIC_BASE_URL"),
			MaxTokens: 8192,
		})
		if err != nil {
			log.Warn().Err(err).Msg("anthropic provider unavailable")
		} else {
			registry.Register(p)
		}
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		p, err := NewOpenAIProvider(ctx, &OpenAIConfig{
			ID:        "openai",
			APIKey:    apiKey,
			BaseURL:   os.Getenv("OPENAI_BASE_URL"),
			Model:     os.Getenv("OPENAI_MODEL_ID"),
			MaxTokens: 4096,
		})
		if err != nil {
			log.Warn().Err(err).Msg("openai provider unavailable")
		} else {
			registry.Register(p)
		}
	}

	return registry
}
