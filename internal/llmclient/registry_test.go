package llmclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelString(t *testing.T) {
	providerID, modelID := ParseModelString("anthropic/claude-sonnet-4-20250514")
	assert.Equal(t, "anthropic", providerID)
	assert.Equal(t, "claude-sonnet-4-20250514", modelID)

	providerID, modelID = ParseModelString("bare-model")
	assert.Equal(t, "", providerID)
	assert.Equal(t, "bare-model", modelID)
}

func TestRegistry_GetModelAndAllModels(t *testing.T) {
	registry := NewRegistry("anthropic/claude-sonnet-4-20250514")
	registry.Register(&fakeProvider{id: "anthropic", fakeModels: anthropicModels()})
	registry.Register(&fakeProvider{id: "openai", fakeModels: openAIModels()})

	m, err := registry.GetModel("anthropic", "claude-sonnet-4-20250514")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", m.ProviderID)

	all := registry.AllModels()
	assert.NotEmpty(t, all)
	// gpt-5 outranks claude-sonnet-4 in modelPriority, so it sorts first.
	assert.Equal(t, "gpt-5", all[0].ID)
}

func TestRegistry_DefaultModel(t *testing.T) {
	registry := NewRegistry("anthropic/claude-sonnet-4-20250514")
	registry.Register(&fakeProvider{id: "anthropic", fakeModels: anthropicModels()})

	m, err := registry.DefaultModel()
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-20250514", m.ID)
}

func TestRegistry_DefaultModelFallsBackWhenUnconfigured(t *testing.T) {
	registry := NewRegistry("")
	registry.Register(&fakeProvider{id: "openai", fakeModels: openAIModels()})

	m, err := registry.DefaultModel()
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
}

func TestRegistry_GetUnknownProviderFails(t *testing.T) {
	registry := NewRegistry("")
	_, err := registry.Get("nonexistent")
	require.Error(t, err)
}
