package toolwire

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/runtime/internal/agent"
	"github.com/agentrt/runtime/internal/approval"
	"github.com/agentrt/runtime/internal/dispatcher"
	"github.com/agentrt/runtime/internal/eventbus"
	"github.com/agentrt/runtime/internal/store"
	"github.com/agentrt/runtime/internal/tool"
	"github.com/agentrt/runtime/pkg/types"
)

func newTestDispatcher(t *testing.T) (*dispatcher.Dispatcher, *tool.Registry) {
	t.Helper()
	log := zerolog.Nop()

	sessions := store.NewStore(store.DefaultConfig(t.TempDir()))
	bus := eventbus.New(log)
	policy := approval.NewStaticPolicyStore(types.ApprovalPolicy{DefaultRequiresApproval: false})
	approvals := approval.NewManager(policy, sessions, bus, log)

	registry := tool.DefaultRegistry(t.TempDir(), store.New(t.TempDir()))

	defs := agent.BuiltIn()
	dispatch := dispatcher.New(approvals, bus, dispatcher.NewRemoteRegistry(log), defs, log)
	require.NoError(t, RegisterBuiltinTools(dispatch, registry, defs))
	return dispatch, registry
}

func TestRegisterBuiltinTools_ManifestIncludesEveryToolForUnrestrictedAgent(t *testing.T) {
	dispatch, registry := newTestDispatcher(t)
	manifest := dispatch.Manifest(agent.Universal)

	names := make(map[string]bool)
	for _, m := range manifest {
		names[m.Name] = true
	}
	for _, t2 := range registry.List() {
		assert.True(t, names[t2.ID()], "expected %s in universal's manifest", t2.ID())
	}
}

func TestRegisterBuiltinTools_RestrictsArchitectToItsToolSet(t *testing.T) {
	dispatch, _ := newTestDispatcher(t)
	manifest := dispatch.Manifest(agent.Architect)

	names := make(map[string]bool)
	for _, m := range manifest {
		names[m.Name] = true
	}
	assert.True(t, names["read"])
	assert.False(t, names["bash"], "architect's definition does not enable bash")
}

func TestRegisterBuiltinTools_DispatchExecutesReadTool(t *testing.T) {
	dispatch, _ := newTestDispatcher(t)

	args, _ := json.Marshal(map[string]string{"filePath": "/nonexistent/path/for/test.txt"})
	outcome, err := dispatch.Dispatch(context.Background(), dispatcher.CallContext{
		SessionID: "s1", CallID: "c1", Agent: agent.Coder,
	}, "read", args)
	require.NoError(t, err)
	// A missing file surfaces as an ErrorMessage, not a dispatch-level error —
	// this just confirms the handler actually ran the real tool.
	assert.True(t, outcome.ErrorMessage != "" || outcome.Result != nil)
}
