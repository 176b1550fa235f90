package dispatcher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/runtime/internal/approval"
	"github.com/agentrt/runtime/internal/eventbus"
	"github.com/agentrt/runtime/pkg/types"
)

func newTestDispatcher(t *testing.T, agentDefs map[string]types.AgentDefinition) (*Dispatcher, *eventbus.Bus) {
	bus := eventbus.New(zerolog.Nop())
	ps := approval.NewStaticPolicyStore(types.ApprovalPolicy{})
	mgr := approval.NewManager(ps, newApprovalFakeStore(), bus, zerolog.Nop())
	remote := NewRemoteRegistry(zerolog.Nop())
	return New(mgr, bus, remote, agentDefs, zerolog.Nop()), bus
}

// approvalFakeStore is a minimal in-memory approval store for tests in
// this package (mirrors internal/approval's own fakeStore, duplicated here
// since that type is unexported in its package).
type approvalFakeStore struct {
	rows map[string]types.PendingApproval
}

func newApprovalFakeStore() *approvalFakeStore {
	return &approvalFakeStore{rows: make(map[string]types.PendingApproval)}
}

func (f *approvalFakeStore) PutApproval(ctx context.Context, a types.PendingApproval) error {
	f.rows[a.RequestID] = a
	return nil
}

func (f *approvalFakeStore) CreateApproval(ctx context.Context, a types.PendingApproval) error {
	if _, exists := f.rows[a.RequestID]; exists {
		return assertErr{}
	}
	f.rows[a.RequestID] = a
	return nil
}

func (f *approvalFakeStore) GetApproval(ctx context.Context, requestID string) (*types.PendingApproval, error) {
	a, ok := f.rows[requestID]
	if !ok {
		return nil, assertErr{}
	}
	return &a, nil
}

func (f *approvalFakeStore) ListApprovals(ctx context.Context, sessionID string) ([]types.PendingApproval, error) {
	var out []types.PendingApproval
	for _, a := range f.rows {
		out = append(out, a)
	}
	return out, nil
}

func (f *approvalFakeStore) DeleteApproval(ctx context.Context, requestID string) error {
	delete(f.rows, requestID)
	return nil
}

type assertErr struct{}

func (assertErr) Error() string { return "not found" }

func TestDispatcher_LocalToolExecutes(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	err := d.RegisterLocal(Declaration{
		Name:   "echo",
		Schema: []byte(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
	}, func(ctx context.Context, call CallContext, arguments json.RawMessage) (*Result, error) {
		var in struct{ Text string `json:"text"` }
		_ = json.Unmarshal(arguments, &in)
		return &Result{Output: in.Text}, nil
	})
	require.NoError(t, err)

	out, err := d.Dispatch(context.Background(), CallContext{SessionID: "s1", CallID: "c1", Agent: "coder"}, "echo", []byte(`{"text":"hi"}`))
	require.NoError(t, err)
	require.NotNil(t, out.Result)
	assert.Equal(t, "hi", out.Result.Output)
}

func TestDispatcher_UnknownToolFails(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	out, err := d.Dispatch(context.Background(), CallContext{SessionID: "s1", CallID: "c1"}, "nonexistent", []byte(`{}`))
	require.NoError(t, err)
	assert.Contains(t, out.ErrorMessage, "unknown tool")
}

func TestDispatcher_SchemaValidationRejectsBadArguments(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	err := d.RegisterLocal(Declaration{
		Name:   "needs_text",
		Schema: []byte(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
	}, func(ctx context.Context, call CallContext, arguments json.RawMessage) (*Result, error) {
		return &Result{}, nil
	})
	require.NoError(t, err)

	out, err := d.Dispatch(context.Background(), CallContext{SessionID: "s1", CallID: "c1"}, "needs_text", []byte(`{}`))
	require.NoError(t, err)
	assert.Contains(t, out.ErrorMessage, "schema validation")
}

func TestDispatcher_AgentAllowListDenies(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	err := d.RegisterLocal(Declaration{
		Name:          "bash",
		AllowedAgents: []string{"coder"},
	}, func(ctx context.Context, call CallContext, arguments json.RawMessage) (*Result, error) {
		return &Result{}, nil
	})
	require.NoError(t, err)

	out, err := d.Dispatch(context.Background(), CallContext{SessionID: "s1", CallID: "c1", Agent: "ask"}, "bash", []byte(`{}`))
	require.NoError(t, err)
	assert.Contains(t, out.ErrorMessage, "not permitted")
}

func TestDispatcher_FilePathRestrictionDenies(t *testing.T) {
	agentDefs := map[string]types.AgentDefinition{
		"architect": {Name: "architect", AllowedPaths: []string{"**/*.md"}},
	}
	d, _ := newTestDispatcher(t, agentDefs)
	err := d.RegisterLocal(Declaration{
		Name:          "write_file",
		PathArgFields: []string{"path"},
	}, func(ctx context.Context, call CallContext, arguments json.RawMessage) (*Result, error) {
		return &Result{}, nil
	})
	require.NoError(t, err)

	out, err := d.Dispatch(context.Background(), CallContext{SessionID: "s1", CallID: "c1", Agent: "architect"}, "write_file", []byte(`{"path":"src/main.go"}`))
	require.NoError(t, err)
	assert.Contains(t, out.ErrorMessage, "allowed paths")

	out, err = d.Dispatch(context.Background(), CallContext{SessionID: "s1", CallID: "c2", Agent: "architect"}, "write_file", []byte(`{"path":"docs/readme.md"}`))
	require.NoError(t, err)
	assert.Empty(t, out.ErrorMessage)
}

func TestDispatcher_DoomLoopHalts(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	calls := 0
	err := d.RegisterLocal(Declaration{Name: "read_file"}, func(ctx context.Context, call CallContext, arguments json.RawMessage) (*Result, error) {
		calls++
		return &Result{}, nil
	})
	require.NoError(t, err)

	var last Outcome
	for i := 0; i < doomLoopThreshold; i++ {
		out, err := d.Dispatch(context.Background(), CallContext{SessionID: "s1", CallID: "c1"}, "read_file", []byte(`{"path":"a"}`))
		require.NoError(t, err)
		last = out
	}
	assert.Contains(t, last.ErrorMessage, "refusing to continue")
	assert.Equal(t, doomLoopThreshold-1, calls, "the call that trips the detector must not execute")
}

func TestDispatcher_RemoteToolWaitsForResult(t *testing.T) {
	bus := eventbus.New(zerolog.Nop())
	remote := NewRemoteRegistry(zerolog.Nop())
	ps := approval.NewStaticPolicyStore(types.ApprovalPolicy{})
	mgr := approval.NewManager(ps, newApprovalFakeStore(), bus, zerolog.Nop())
	d := New(mgr, bus, remote, nil, zerolog.Nop(), WithRemoteTimeout(time.Second))

	err := d.RegisterRemote(Declaration{Name: "ide_open_file"})
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		remote.SubmitResult("c1", RemoteResponse{Status: "success", Output: "opened"})
	}()

	out, err := d.Dispatch(context.Background(), CallContext{SessionID: "s1", CallID: "c1"}, "ide_open_file", []byte(`{}`))
	require.NoError(t, err)
	require.NotNil(t, out.Result)
	assert.Equal(t, "opened", out.Result.Output)
}

func TestDispatcher_RequiresApprovalPauses(t *testing.T) {
	bus := eventbus.New(zerolog.Nop())
	store := newApprovalFakeStore()
	ps := approval.NewStaticPolicyStore(types.ApprovalPolicy{
		Rules: []types.ApprovalRule{
			{RequestType: types.RequestTypeTool, SubjectPattern: "bash", RequiresApproval: true, Reason: "shell access"},
		},
	})
	mgr := approval.NewManager(ps, store, bus, zerolog.Nop())
	remote := NewRemoteRegistry(zerolog.Nop())
	d := New(mgr, bus, remote, nil, zerolog.Nop())

	err := d.RegisterLocal(Declaration{Name: "bash"}, func(ctx context.Context, call CallContext, arguments json.RawMessage) (*Result, error) {
		t.Fatal("a gated tool must not execute before approval")
		return nil, nil
	})
	require.NoError(t, err)

	out, err := d.Dispatch(context.Background(), CallContext{SessionID: "s1", CallID: "c1"}, "bash", []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, out.Paused)
	assert.NotEmpty(t, out.ApprovalID)

	pending, err := mgr.GetPending(context.Background(), out.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalPending, pending.Status)
}
