package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/agentrt/runtime/internal/agent"
	"github.com/agentrt/runtime/internal/llmclient"
	"github.com/agentrt/runtime/pkg/types"
)

// classifyFakeProvider returns a single canned completion regardless of
// the request, used to exercise classify's JSON-parsing path directly.
type classifyFakeProvider struct {
	id      string
	content string
	fail    bool
}

func (p *classifyFakeProvider) ID() string                           { return p.id }
func (p *classifyFakeProvider) Name() string                         { return p.id }
func (p *classifyFakeProvider) Models() []types.Model                { return nil }
func (p *classifyFakeProvider) ChatModel() model.ToolCallingChatModel { return nil }

func (p *classifyFakeProvider) CreateCompletion(ctx context.Context, req *llmclient.CompletionRequest) (*llmclient.CompletionStream, error) {
	if p.fail {
		return nil, assert.AnError
	}
	sr, sw := schema.Pipe[*schema.Message](1)
	go func() {
		defer sw.Close()
		sw.Send(&schema.Message{Role: schema.Assistant, Content: p.content}, nil)
	}()
	return llmclient.NewCompletionStream(sr), nil
}

func newClassifyClient(t *testing.T, provider *classifyFakeProvider) *llmclient.Client {
	t.Helper()
	registry := llmclient.NewRegistry("fake/model-1")
	registry.Register(provider)
	fastRetry := llmclient.RetryPolicy{Attempts: 1, InitialInterval: time.Millisecond, Multiplier: 1}
	return llmclient.New(registry, fastRetry, nil, zerolog.Nop())
}

func TestClassify_ParsesWellFormedResponse(t *testing.T) {
	provider := &classifyFakeProvider{id: "fake", content: `{"is_atomic": true, "agent": "coder", "confidence": 0.9, "reason": "implementing a change"}`}
	client := newClassifyClient(t, provider)
	registry := agent.NewRegistry()

	result := classify(context.Background(), client, registry, "fake/model-1", "please implement X")
	assert.Equal(t, agent.Coder, result.Agent)
	assert.Equal(t, 0.9, result.Confidence)
}

func TestClassify_FallsBackToKeywordsOnUnparseableResponse(t *testing.T) {
	provider := &classifyFakeProvider{id: "fake", content: "not json at all"}
	client := newClassifyClient(t, provider)
	registry := agent.NewRegistry()

	result := classify(context.Background(), client, registry, "fake/model-1", "why does this crash?")
	assert.Equal(t, agent.Debug, result.Agent)
	assert.Equal(t, "keyword fallback", result.Reason)
}

func TestClassify_FallsBackToKeywordsOnUnknownAgent(t *testing.T) {
	provider := &classifyFakeProvider{id: "fake", content: `{"is_atomic": true, "agent": "not-a-real-agent", "confidence": 0.5, "reason": "x"}`}
	client := newClassifyClient(t, provider)
	registry := agent.NewRegistry()

	result := classify(context.Background(), client, registry, "fake/model-1", "explain how this works")
	assert.Equal(t, agent.Ask, result.Agent)
}

func TestClassify_FallsBackToKeywordsOnProviderError(t *testing.T) {
	provider := &classifyFakeProvider{id: "fake", fail: true}
	client := newClassifyClient(t, provider)
	registry := agent.NewRegistry()

	result := classify(context.Background(), client, registry, "fake/model-1", "add a new feature here")
	assert.Equal(t, agent.Coder, result.Agent)
}

func TestExtractJSON_TrimsSurroundingProse(t *testing.T) {
	raw := "Sure, here you go:\n" + `{"agent": "ask"}` + "\nHope that helps!"
	assert.Equal(t, `{"agent": "ask"}`, extractJSON(raw))
}

func TestExtractJSON_ReturnsInputWhenNoBraces(t *testing.T) {
	assert.Equal(t, "no braces here", extractJSON("no braces here"))
}

func TestKeywordClassify_EmptyInputRoutesToUniversal(t *testing.T) {
	registry := agent.NewRegistry()
	result := keywordClassify(registry, "")
	assert.Equal(t, agent.Universal, result.Agent)
}
