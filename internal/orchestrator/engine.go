package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/agentrt/runtime/internal/agent"
	"github.com/agentrt/runtime/internal/apperr"
	"github.com/agentrt/runtime/internal/approval"
	"github.com/agentrt/runtime/internal/dispatcher"
	"github.com/agentrt/runtime/internal/eventbus"
	"github.com/agentrt/runtime/internal/llmclient"
	"github.com/agentrt/runtime/internal/store"
	"github.com/agentrt/runtime/internal/tracing"
	"github.com/agentrt/runtime/pkg/types"
)

// Loop-control defaults for one agentic turn. internal/agent.Registry
// carries each agent's identity — system prompt, tool set, path
// restrictions — but sampling and pause-polling knobs aren't part of an
// agent's identity, so they live here as engine-wide defaults.
const (
	DefaultTemperature     = 0.7
	DefaultMaxOutputTokens = 8192
)

// Engine drives one user turn end-to-end (spec.md §4.6): it picks the
// handling agent, builds the prompt, consumes the LLM stream, persists and
// fans out assistant deltas, dispatches embedded tool calls, and loops
// until the model stops requesting tools or the turn is aborted.
//
// Engine composes three already-complete subsystems rather than
// reimplementing them: internal/store.Store (persistence), internal/
// llmclient.Client (streaming/retry/circuit-breaking), and internal/
// dispatcher.Dispatcher (tool access control, schema validation, approval
// gating, execution). This is a deliberate departure from the teacher's
// internal/session package, which open-coded all of that machinery
// against its own provider/tool/storage types — see DESIGN.md.
type Engine struct {
	sessions  *store.Store
	client    *llmclient.Client
	dispatch  *dispatcher.Dispatcher
	approvals *approval.Manager
	agents    *agent.Registry
	bus       *eventbus.Bus
	log       zerolog.Logger

	workDir       string
	defaultModel  string // "provider/model"
	maxIterations int

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// New constructs an Engine. defaultModel is the "provider/model" string
// used for classification, compaction, and any agent with no Model
// override; maxIterations caps the LLM->tools loop per turn (spec.md
// §4.6's "Bounding", config.Config.OrchestratorMaxIterations).
func New(
	sessions *store.Store,
	client *llmclient.Client,
	dispatch *dispatcher.Dispatcher,
	approvals *approval.Manager,
	agents *agent.Registry,
	bus *eventbus.Bus,
	workDir, defaultModel string,
	maxIterations int,
	log zerolog.Logger,
) *Engine {
	if maxIterations <= 0 {
		maxIterations = 10
	}
	return &Engine{
		sessions:      sessions,
		client:        client,
		dispatch:      dispatch,
		approvals:     approvals,
		agents:        agents,
		bus:           bus,
		log:           log,
		workDir:       workDir,
		defaultModel:  defaultModel,
		maxIterations: maxIterations,
		locks:         make(map[string]chan struct{}),
	}
}

// ErrIterationLimitExceeded is returned by Run when a turn's LLM->tools
// loop exceeds its configured iteration cap without the model yielding a
// final, tool-call-free response.
var ErrIterationLimitExceeded = apperr.New(apperr.Validation, "orchestrator.Run", "iteration limit exceeded")

// Run executes one complete turn for sessionID: append userContent,
// classify/route if needed, then loop LLM completions against the tool
// dispatcher until the model emits no more tool calls. The session's
// exclusion lock is held for the entire call.
func (e *Engine) Run(ctx context.Context, sessionID, userContent string) (err error) {
	ctx, span := tracing.Start(ctx, "orchestrator.run", sessionID)
	defer func() { tracing.End(span, err) }()

	release, err := e.acquireLock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	if _, err := e.sessions.AppendMessage(ctx, types.Message{
		ID:        newID(),
		SessionID: sessionID,
		Role:      types.RoleUser,
		Content:   userContent,
	}); err != nil {
		return err
	}

	agentName, err := e.route(ctx, sessionID, userContent)
	if err != nil {
		return err
	}

	def, err := e.agents.Get(agentName)
	if err != nil {
		return err
	}

	start := time.Now()
	var lastUsage *types.TokenUsage
	for iteration := 0; ; iteration++ {
		if iteration >= e.maxIterations {
			return ErrIterationLimitExceeded
		}
		finished, usage, err := e.step(ctx, sessionID, agentName, def)
		if usage != nil {
			lastUsage = usage
		}
		if err != nil {
			return err
		}
		if finished {
			break
		}
	}

	e.dispatch.ResetDoomLoop(sessionID)
	e.publishTurnCompleted(ctx, sessionID, time.Since(start), lastUsage)
	return nil
}

// route applies spec.md §4.6 step 3: classify only while the session is
// still owned by the orchestrator persona itself, otherwise keep the
// current agent. SwitchAgent is called either way — recording a
// confirmation (from == to) still advances AgentContext the same way a
// real switch would, which keeps AgentHistory an accurate turn-by-turn log.
func (e *Engine) route(ctx context.Context, sessionID, userContent string) (string, error) {
	agentCtx, err := e.sessions.GetContext(ctx, sessionID)
	if err != nil {
		return "", err
	}

	current := agentCtx.CurrentAgent
	if current == "" {
		current = agent.Orchestrator
	}

	target := current
	sw := types.AgentSwitch{From: current, To: current, Reason: "continuing with current agent", Confidence: 1, Timestamp: time.Now().UnixMilli()}

	if current == agent.Orchestrator {
		result := classify(ctx, e.client, e.agents, e.defaultModel, userContent)
		target = result.Agent
		if target == "" {
			target = agent.Universal
		}
		sw = types.AgentSwitch{From: current, To: target, Reason: result.Reason, Confidence: result.Confidence, Timestamp: time.Now().UnixMilli()}
	}

	if _, err := e.sessions.SwitchAgent(ctx, sessionID, sw); err != nil {
		return "", err
	}
	if sw.From != sw.To {
		e.publishAgentSwitched(ctx, sessionID, sw)
	}
	return target, nil
}

// step runs one LLM completion against the session's current message
// window and, if the model requested tools, dispatches every tool_call
// before returning. finished is true once the model yields a response with
// no tool calls — the turn's exit condition (spec.md §4.6 step 6).
func (e *Engine) step(ctx context.Context, sessionID, agentName string, def types.AgentDefinition) (finished bool, usage *types.TokenUsage, err error) {
	messages, err := e.sessions.ListMessages(ctx, sessionID)
	if err != nil {
		return false, nil, err
	}

	if shouldCompact(messages) {
		if cerr := Compact(ctx, e.client, e.sessions, sessionID, e.defaultModel); cerr != nil {
			e.log.Warn().Err(cerr).Str("session", sessionID).Msg("compaction failed; continuing with full history")
		} else if messages, err = e.sessions.ListMessages(ctx, sessionID); err != nil {
			return false, nil, err
		}
	}

	window := effectiveHistory(messages)

	model := def.Model
	if model == "" {
		model = e.defaultModel
	}
	providerID, modelID := splitModel(model)

	llmMessages := make([]*types.Message, 0, len(window)+1)
	llmMessages = append(llmMessages, &types.Message{Role: types.RoleSystem, Content: NewSystemPrompt(def, e.workDir, providerID, modelID).Build()})
	for i := range window {
		llmMessages = append(llmMessages, &window[i])
	}

	stream, err := e.client.Stream(ctx, llmclient.StreamRequest{
		Model:       model,
		Messages:    llmMessages,
		Tools:       e.toolManifest(agentName),
		MaxTokens:   DefaultMaxOutputTokens,
		Temperature: DefaultTemperature,
	})
	if err != nil {
		return false, nil, err
	}
	defer stream.Close()

	var content strings.Builder
	var toolCalls []types.ToolCall

	for {
		chunk, recvErr := stream.Recv()
		if recvErr == io.EOF {
			break
		}
		if recvErr != nil {
			return false, nil, recvErr
		}
		switch chunk.Kind {
		case llmclient.ChunkDelta:
			content.WriteString(chunk.Delta)
			e.publishDelta(ctx, sessionID, chunk.Delta)
		case llmclient.ChunkToolCall:
			toolCalls = append(toolCalls, *chunk.ToolCall)
		case llmclient.ChunkUsage:
			usage = chunk.Usage
		}
	}

	assistantMsg, err := e.sessions.AppendMessage(ctx, types.Message{
		ID:        newID(),
		SessionID: sessionID,
		Role:      types.RoleAssistant,
		Content:   content.String(),
		ToolCalls: toolCalls,
		Tokens:    usage,
	})
	if err != nil {
		return false, usage, err
	}

	if len(toolCalls) == 0 {
		return true, usage, nil
	}

	for _, tc := range toolCalls {
		if rerr := e.runToolCall(ctx, sessionID, assistantMsg.ID, agentName, tc); rerr != nil {
			return false, usage, rerr
		}
	}
	return false, usage, nil
}

// runToolCall dispatches one tool_call and appends its resolution as a
// RoleTool reply, blocking on approval decisions as needed (spec.md §4.6
// step 5: "Approval-required tool_calls pause until an approval_approved
// event ... arrives (or rejected, in which case a synthetic tool reply is
// produced")). Remote tool_calls need no special handling here: the
// dispatcher itself blocks on the transport edge's tool_result.
func (e *Engine) runToolCall(ctx context.Context, sessionID, messageID, agentName string, tc types.ToolCall) error {
	callCtx := dispatcher.CallContext{SessionID: sessionID, MessageID: messageID, CallID: tc.ID, Agent: agentName}
	arguments := json.RawMessage(tc.Arguments)
	if len(arguments) == 0 {
		arguments = json.RawMessage("{}")
	}

	outcome, err := e.dispatch.Dispatch(ctx, callCtx, tc.Name, arguments)
	if err != nil {
		return err
	}

	if outcome.Paused {
		decided, werr := e.awaitApproval(ctx, outcome.ApprovalID)
		if werr != nil {
			return werr
		}
		if decided.Status == types.ApprovalRejected {
			return e.appendToolReply(ctx, sessionID, tc.ID, "tool call rejected by operator: "+decided.Reason)
		}
		if decided.Status != types.ApprovalApproved {
			return e.appendToolReply(ctx, sessionID, tc.ID, "tool call not approved: approval "+string(decided.Status))
		}
		outcome, err = e.dispatch.Resume(ctx, callCtx, tc.Name, arguments)
		if err != nil {
			return err
		}
	}

	if outcome.ErrorMessage != "" {
		return e.appendToolReply(ctx, sessionID, tc.ID, "error: "+outcome.ErrorMessage)
	}
	if outcome.Result != nil {
		return e.appendToolReply(ctx, sessionID, tc.ID, outcome.Result.Output)
	}
	return e.appendToolReply(ctx, sessionID, tc.ID, "")
}

// awaitApproval blocks until requestID is decided or expires, or ctx is
// cancelled. approval.Manager.decide deletes a PendingApproval row from the
// store in the same call that publishes EventApprovalDecided/Expired — so
// polling GetPending would race the deletion and usually observe either
// the stale pending row or a NotFound, never the terminal status. Instead
// this subscribes to the bus's approval category and waits for the one
// event carrying this requestID, which the Manager always publishes
// synchronously (PublishAndWait) before returning from decide/SweepExpired.
func (e *Engine) awaitApproval(ctx context.Context, requestID string) (*types.PendingApproval, error) {
	type result struct {
		status types.ApprovalStatus
		reason string
	}
	resultCh := make(chan result, 1)

	unsubscribe := e.bus.Subscribe("engine-await-"+requestID, eventbus.ForCategory(types.CategoryApproval), 0, func(evt types.Event) {
		id, _ := evt.Payload["requestID"].(string)
		if id != requestID {
			return
		}
		status, _ := evt.Payload["status"].(types.ApprovalStatus)
		reason, _ := evt.Payload["reason"].(string)
		select {
		case resultCh <- result{status: status, reason: reason}:
		default:
		}
	})
	defer unsubscribe()

	// The decision may have already landed between Dispatch returning
	// Paused and this subscription taking effect; check once before
	// waiting on the channel.
	if pending, err := e.approvals.GetPending(ctx, requestID); err == nil && pending.Status != types.ApprovalPending {
		return pending, nil
	}

	select {
	case r := <-resultCh:
		return &types.PendingApproval{RequestID: requestID, Status: r.status, Reason: r.reason}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) appendToolReply(ctx context.Context, sessionID, toolCallID, content string) error {
	_, err := e.sessions.AppendMessage(ctx, types.Message{
		ID:         newID(),
		SessionID:  sessionID,
		Role:       types.RoleTool,
		ToolCallID: toolCallID,
		Content:    content,
	})
	return err
}

// toolManifest converts the dispatcher's agent-scoped tool manifest into
// the LLM Client's ToolInfo shape.
func (e *Engine) toolManifest(agentName string) []llmclient.ToolInfo {
	entries := e.dispatch.Manifest(agentName)
	tools := make([]llmclient.ToolInfo, 0, len(entries))
	for _, entry := range entries {
		tools = append(tools, llmclient.ToolInfo{Name: entry.Name, Description: entry.Description, Parameters: entry.Schema})
	}
	return tools
}

func (e *Engine) publishDelta(ctx context.Context, sessionID, delta string) {
	if e.bus == nil {
		return
	}
	evt := eventbus.NewEvent(types.EventLLMChunk)
	evt.SessionID = sessionID
	evt.Source = "orchestrator"
	evt.Timestamp = time.Now().UnixMilli()
	evt.Payload = map[string]any{"delta": delta}
	e.bus.Publish(ctx, evt)
}

func (e *Engine) publishAgentSwitched(ctx context.Context, sessionID string, sw types.AgentSwitch) {
	if e.bus == nil {
		return
	}
	evt := eventbus.NewEvent(types.EventAgentSwitched)
	evt.SessionID = sessionID
	evt.Source = "orchestrator"
	evt.Timestamp = time.Now().UnixMilli()
	evt.Payload = map[string]any{"from": sw.From, "to": sw.To, "reason": sw.Reason, "confidence": sw.Confidence}
	e.bus.Publish(ctx, evt)
}

func (e *Engine) publishTurnCompleted(ctx context.Context, sessionID string, duration time.Duration, usage *types.TokenUsage) {
	if e.bus == nil {
		return
	}
	payload := map[string]any{"durationMS": duration.Milliseconds()}
	if usage != nil {
		payload["inputTokens"] = usage.Input
		payload["outputTokens"] = usage.Output
	}
	evt := eventbus.NewEvent(types.EventLLMCompleted)
	evt.SessionID = sessionID
	evt.Source = "orchestrator"
	evt.Timestamp = time.Now().UnixMilli()
	evt.Payload = payload
	e.bus.Publish(ctx, evt)
}

// acquireLock implements spec.md §5's "session-scoped exclusion lock held
// by the Orchestrator for the duration of a turn" as a per-session
// buffered-channel mutex, so a blocked waiter can still observe ctx
// cancellation instead of deadlocking on a plain sync.Mutex.
func (e *Engine) acquireLock(ctx context.Context, sessionID string) (func(), error) {
	e.mu.Lock()
	ch, ok := e.locks[sessionID]
	if !ok {
		ch = make(chan struct{}, 1)
		ch <- struct{}{}
		e.locks[sessionID] = ch
	}
	e.mu.Unlock()

	select {
	case <-ch:
		return func() { ch <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// splitModel parses a "provider/model" string, defaulting the provider to
// "anthropic" when no slash is present.
func splitModel(model string) (providerID, modelID string) {
	if idx := strings.IndexByte(model, '/'); idx >= 0 {
		return model[:idx], model[idx+1:]
	}
	return "anthropic", model
}

func newID() string {
	return ulid.Make().String()
}
