package executor

import (
	"context"
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
	"github.com/agentrt/runtime/internal/orchestrator"
	"github.com/agentrt/runtime/internal/store"
	"github.com/agentrt/runtime/internal/tool"
	"github.com/agentrt/runtime/pkg/types"
)

type fakeSubagentProvider struct{ reply string }

func (p *fakeSubagentProvider) ID() string                           { return "fake" }
func (p *fakeSubagentProvider) Name() string                         { return "fake" }
func (p *fakeSubagentProvider) Models() []types.Model                { return nil }
func (p *fakeSubagentProvider) ChatModel() model.ToolCallingChatModel { return nil }

func (p *fakeSubagentProvider) CreateCompletion(ctx context.Context, req *llmclient.CompletionRequest) (*llmclient.CompletionStream, error) {
	sr, sw := schema.Pipe[*schema.Message](1)
	go func() {
		defer sw.Close()
		sw.Send(&schema.Message{Role: schema.Assistant, Content: p.reply}, nil)
	}()
	return llmclient.NewCompletionStream(sr), nil
}

func newTestSubagentExecutor(t *testing.T, reply string) *SubagentExecutor {
	t.Helper()
	log := zerolog.Nop()

	sessions := store.NewStore(store.DefaultConfig(t.TempDir()))
	registry := llmclient.NewRegistry("fake/model-1")
	registry.Register(&fakeSubagentProvider{reply: reply})
	client := llmclient.New(registry, llmclient.RetryPolicy{Attempts: 1, InitialInterval: time.Millisecond, Multiplier: 1}, nil, log)

	bus := eventbus.New(log)
	policy := approval.NewStaticPolicyStore(types.ApprovalPolicy{DefaultRequiresApproval: false})
	approvals := approval.NewManager(policy, sessions, bus, log)
	agents := agent.NewRegistry()
	defs := make(map[string]types.AgentDefinition)
	for _, d := range agents.List() {
		defs[d.Name] = d
	}
	dispatch := dispatcher.New(approvals, bus, dispatcher.NewRemoteRegistry(log), defs, log)
	engine := orchestrator.New(sessions, client, dispatch, approvals, agents, bus, "", "fake/model-1", 10, log)
	svc := orchestrator.NewService(sessions, store.New(t.TempDir()), engine)

	return NewSubagentExecutor(svc, agents)
}

func TestSubagentExecutor_ExecuteSubtask(t *testing.T) {
	exec := newTestSubagentExecutor(t, "the answer is 42")

	result, err := exec.ExecuteSubtask(context.Background(), "parent-1", agent.Coder, "what is the answer?", tool.TaskOptions{Description: "test"})
	require.NoError(t, err)
	assert.Equal(t, "the answer is 42", result.Output)
	assert.Equal(t, agent.Coder, result.AgentID)
	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, "parent-1", result.Metadata["parentSessionID"])
}

func TestSubagentExecutor_UnknownAgentErrors(t *testing.T) {
	exec := newTestSubagentExecutor(t, "unused")
	_, err := exec.ExecuteSubtask(context.Background(), "parent-1", "not-a-real-agent", "prompt", tool.TaskOptions{})
	assert.Error(t, err)
}
