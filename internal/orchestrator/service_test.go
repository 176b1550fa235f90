package orchestrator

import (
	"context"
	"testing"
	"time"

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

func newTestService(t *testing.T, provider *fakeProvider) *Service {
	t.Helper()
	log := zerolog.Nop()

	sessions := store.NewStore(store.DefaultConfig(t.TempDir()))
	raw := store.New(t.TempDir())

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
	dispatch := dispatcher.New(approvals, bus, dispatcher.NewRemoteRegistry(log), defs, log)

	engine := New(sessions, client, dispatch, approvals, agents, bus, "", "fake/model-1", 10, log)
	return NewService(sessions, raw, engine)
}

func TestService_CreateGetListDelete(t *testing.T) {
	svc := newTestService(t, &fakeProvider{id: "fake", replies: [][]*schema.Message{assistantTextReply("hi")}})
	ctx := context.Background()

	sess, err := svc.Create(ctx, "be concise")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)

	got, err := svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)

	ids := svc.List(ctx, 0, 0)
	assert.Contains(t, ids, sess.ID)

	require.NoError(t, svc.Delete(ctx, sess.ID))
	ids = svc.List(ctx, 0, 0)
	assert.NotContains(t, ids, sess.ID)
}

func TestService_SendMessageAppendsTurnToHistory(t *testing.T) {
	svc := newTestService(t, &fakeProvider{id: "fake", replies: [][]*schema.Message{assistantTextReply("Hi there!")}})
	ctx := context.Background()

	sess, err := svc.Create(ctx, "")
	require.NoError(t, err)

	require.NoError(t, svc.SendMessage(ctx, sess.ID, "hello", ""))

	history, err := svc.History(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, types.RoleUser, history[0].Role)
	assert.Equal(t, types.RoleAssistant, history[1].Role)
}

func TestService_ForkAndRevert(t *testing.T) {
	svc := newTestService(t, &fakeProvider{id: "fake", replies: [][]*schema.Message{assistantTextReply("ok")}})
	ctx := context.Background()

	sess, err := svc.Create(ctx, "")
	require.NoError(t, err)
	require.NoError(t, svc.SendMessage(ctx, sess.ID, "first turn", ""))

	history, err := svc.History(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)

	forked, err := svc.Fork(ctx, sess.ID, 0) // copies only the seq-0 user message
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, forked.ID)

	forkedHistory, err := svc.History(ctx, forked.ID)
	require.NoError(t, err)
	assert.Len(t, forkedHistory, 1)

	require.NoError(t, svc.Revert(ctx, sess.ID, 0)) // drops the seq-1 assistant reply
	revertedHistory, err := svc.History(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, revertedHistory, 1)
}

func TestService_TodosEmptyByDefault(t *testing.T) {
	svc := newTestService(t, &fakeProvider{id: "fake", replies: [][]*schema.Message{assistantTextReply("ok")}})
	ctx := context.Background()

	sess, err := svc.Create(ctx, "")
	require.NoError(t, err)

	todos, err := svc.Todos(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, todos)
}
