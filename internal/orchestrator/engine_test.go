package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/runtime/internal/agent"
	"github.com/agentrt/runtime/internal/approval"
	"github.com/agentrt/runtime/internal/dispatcher"
	"github.com/agentrt/runtime/internal/eventbus"
	"github.com/agentrt/runtime/internal/llmclient"
	"github.com/agentrt/runtime/internal/store"
	"github.com/agentrt/runtime/pkg/types"
)

// fakeProvider plays back a fixed, repeating sequence of completions,
// ignoring the request entirely — grounded on internal/llmclient's own
// client_test.go fakeProvider, copied here since that one is unexported
// and test-only.
type fakeProvider struct {
	id      string
	replies [][]*schema.Message // one []Message per call; the last reply repeats once exhausted
	calls   int
}

func (p *fakeProvider) ID() string                           { return p.id }
func (p *fakeProvider) Name() string                         { return p.id }
func (p *fakeProvider) Models() []types.Model                { return nil }
func (p *fakeProvider) ChatModel() model.ToolCallingChatModel { return nil }

func (p *fakeProvider) CreateCompletion(ctx context.Context, req *llmclient.CompletionRequest) (*llmclient.CompletionStream, error) {
	idx := p.calls
	if idx >= len(p.replies) {
		idx = len(p.replies) - 1
	}
	p.calls++
	reply := p.replies[idx]

	sr, sw := schema.Pipe[*schema.Message](len(reply) + 1)
	go func() {
		defer sw.Close()
		for _, m := range reply {
			sw.Send(m, nil)
		}
	}()
	return llmclient.NewCompletionStream(sr), nil
}

func newTestEngine(t *testing.T, provider *fakeProvider, maxIterations int) (*Engine, *store.Store) {
	t.Helper()
	log := zerolog.Nop()

	sessions := store.NewStore(store.DefaultConfig(t.TempDir()))
	registry := llmclient.NewRegistry("fake/model-1")
	registry.Register(provider)
	client := llmclient.New(registry, llmclient.RetryPolicy{Attempts: 1, InitialInterval: time.Millisecond, Multiplier: 1}, nil, log)

	bus := eventbus.New(log)
	policy := approval.NewStaticPolicyStore(types.ApprovalPolicy{DefaultRequiresApproval: false})
	approvals := approval.NewManager(policy, sessions, bus, log)

	agents := agent.NewRegistry()
	defs := make(map[string]types.AgentDefinition)
	for _, d := range agents.List() {
		defs[d.Name] = d
	}
	remote := dispatcher.NewRemoteRegistry(log)
	dispatch := dispatcher.New(approvals, bus, remote, defs, log)

	schemaRaw := json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}}}`)
	require.NoError(t, dispatch.RegisterLocal(dispatcher.Declaration{
		Name: "read", Description: "reads a file", Schema: schemaRaw,
	}, func(ctx context.Context, call dispatcher.CallContext, args json.RawMessage) (*dispatcher.Result, error) {
		return &dispatcher.Result{Output: "file contents"}, nil
	}))

	engine := New(sessions, client, dispatch, approvals, agents, bus, "", "fake/model-1", maxIterations, log)
	return engine, sessions
}

func assistantTextReply(text string) []*schema.Message {
	return []*schema.Message{{Role: schema.Assistant, Content: text}}
}

func assistantToolCallReply(callID, toolName, argsJSON string) []*schema.Message {
	idx := 0
	return []*schema.Message{{Role: schema.Assistant, ToolCalls: []schema.ToolCall{
		{Index: &idx, ID: callID, Function: schema.FunctionCall{Name: toolName, Arguments: argsJSON}},
	}}}
}

func TestEngine_Run_PlainChat(t *testing.T) {
	provider := &fakeProvider{id: "fake", replies: [][]*schema.Message{assistantTextReply("Hi there!")}}
	engine, sessions := newTestEngine(t, provider, 10)

	ctx := context.Background()
	sess, err := sessions.Create(ctx, "s1", "")
	require.NoError(t, err)

	require.NoError(t, engine.Run(ctx, sess.ID, "Hello"))

	messages, err := sessions.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, types.RoleUser, messages[0].Role)
	assert.Equal(t, "Hello", messages[0].Content)
	assert.Equal(t, types.RoleAssistant, messages[1].Role)
	assert.Equal(t, "Hi there!", messages[1].Content)
}

func TestEngine_Run_DispatchesToolCallThenFinishes(t *testing.T) {
	// A new session starts on the orchestrator persona, so the first
	// completion is the routing classification call.
	provider := &fakeProvider{id: "fake", replies: [][]*schema.Message{
		assistantTextReply(`{"is_atomic": true, "agent": "coder", "confidence": 0.9, "reason": "reading a file"}`),
		assistantToolCallReply("call_1", "read", `{"path":"a.go"}`),
		assistantTextReply("Done."),
	}}
	engine, sessions := newTestEngine(t, provider, 10)

	ctx := context.Background()
	sess, err := sessions.Create(ctx, "s2", "")
	require.NoError(t, err)

	require.NoError(t, engine.Run(ctx, sess.ID, "read a.go"))

	messages, err := sessions.ListMessages(ctx, sess.ID)
	require.NoError(t, err)

	var sawToolReply, sawFinal bool
	for _, m := range messages {
		if m.Role == types.RoleTool && m.Content == "file contents" {
			sawToolReply = true
		}
		if m.Role == types.RoleAssistant && m.Content == "Done." {
			sawFinal = true
		}
	}
	assert.True(t, sawToolReply, "expected a tool reply with the handler's output")
	assert.True(t, sawFinal, "expected the turn to finish with the model's final text")
}

func TestEngine_Run_IterationLimitExceeded(t *testing.T) {
	provider := &fakeProvider{id: "fake", replies: [][]*schema.Message{
		assistantToolCallReply("call_1", "read", `{"path":"a.go"}`),
	}}
	engine, sessions := newTestEngine(t, provider, 1)

	ctx := context.Background()
	sess, err := sessions.Create(ctx, "s3", "")
	require.NoError(t, err)

	err = engine.Run(ctx, sess.ID, "loop forever")
	assert.ErrorIs(t, err, ErrIterationLimitExceeded)
}

func TestEngine_Run_SerializesConcurrentTurnsPerSession(t *testing.T) {
	provider := &fakeProvider{id: "fake", replies: [][]*schema.Message{assistantTextReply("ok")}}
	engine, sessions := newTestEngine(t, provider, 10)

	ctx := context.Background()
	sess, err := sessions.Create(ctx, "s4", "")
	require.NoError(t, err)

	done := make(chan error, 2)
	go func() { done <- engine.Run(ctx, sess.ID, "first") }()
	go func() { done <- engine.Run(ctx, sess.ID, "second") }()

	require.NoError(t, <-done)
	require.NoError(t, <-done)

	messages, err := sessions.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 4) // two user + two assistant, never interleaved mid-turn
}
