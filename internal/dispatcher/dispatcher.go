// Package dispatcher implements the Tool Dispatcher (spec.md §4.4): it
// routes tool calls emitted by the LLM to either a local handler (executed
// in-process) or a remote handler (executed on the IDE across the
// transport edge), enforcing approval gating, per-agent access control,
// and argument schema validation before any tool runs.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/agentrt/runtime/internal/apperr"
	"github.com/agentrt/runtime/internal/approval"
	"github.com/agentrt/runtime/internal/eventbus"
	"github.com/agentrt/runtime/internal/tracing"
	"github.com/agentrt/runtime/pkg/types"
)

// LocalHandler executes one tool call in-process.
type LocalHandler func(ctx context.Context, callCtx CallContext, arguments json.RawMessage) (*Result, error)

// CallContext is what a local handler needs to know about the call it is
// servicing, independent of any particular tool package.
type CallContext struct {
	SessionID string
	MessageID string
	CallID    string
	Agent     string
}

// Result is a tool's outcome, rendered into a "tool" role message's
// content by the caller.
type Result struct {
	Title    string
	Output   string
	Metadata map[string]any
}

// Declaration is a tool's static description (spec.md §4.4: "name,
// JSON-schema arguments, local vs remote, and a list of agent identifiers
// permitted to invoke it").
type Declaration struct {
	Name           string
	Description    string
	Schema         json.RawMessage
	Local          bool
	AllowedAgents  []string // empty means every agent may invoke it
	PathArgFields  []string // argument field names holding a file path, checked against the agent's AllowedPaths
}

// compiledTool pairs a Declaration with its compiled JSON schema and (for
// local tools) handler.
type compiledTool struct {
	decl    Declaration
	schema  *jsonschema.Schema
	handler LocalHandler
}

// Dispatcher owns the tool manifest and routes each tool_call to the right
// execution path.
type Dispatcher struct {
	tools      map[string]*compiledTool
	approvals  *approval.Manager
	bus        *eventbus.Bus
	remote     *RemoteRegistry
	doomLoop   *doomLoopDetector
	agentDefs  map[string]types.AgentDefinition
	remoteWait time.Duration
	log        zerolog.Logger
}

// Option configures a Dispatcher at construction time.
type Option func(*Dispatcher)

// WithRemoteTimeout overrides the default wait for a remote tool_result.
func WithRemoteTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.remoteWait = d }
}

// New constructs a Dispatcher. agentDefs supplies each agent's AllowedPaths
// restriction (spec.md §4.4's "markdown-only for the architect agent"
// example); remote carries the transport-edge-facing client tool registry.
func New(approvals *approval.Manager, bus *eventbus.Bus, remote *RemoteRegistry, agentDefs map[string]types.AgentDefinition, log zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		tools:      make(map[string]*compiledTool),
		approvals:  approvals,
		bus:        bus,
		remote:     remote,
		doomLoop:   newDoomLoopDetector(),
		agentDefs:  agentDefs,
		remoteWait: 30 * time.Second,
		log:        log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RegisterLocal declares a local tool and its handler.
func (d *Dispatcher) RegisterLocal(decl Declaration, handler LocalHandler) error {
	decl.Local = true
	compiled, err := compile(decl)
	if err != nil {
		return err
	}
	compiled.handler = handler
	d.tools[decl.Name] = compiled
	return nil
}

// RegisterRemote declares a tool that the dispatcher forwards to the IDE.
func (d *Dispatcher) RegisterRemote(decl Declaration) error {
	decl.Local = false
	compiled, err := compile(decl)
	if err != nil {
		return err
	}
	d.tools[decl.Name] = compiled
	return nil
}

func compile(decl Declaration) (*compiledTool, error) {
	c := &compiledTool{decl: decl}
	if len(decl.Schema) == 0 {
		return c, nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(decl.Name+".json", bytes.NewReader(decl.Schema)); err != nil {
		return nil, apperr.Wrap(apperr.Validation, "dispatcher.compile", "invalid schema for "+decl.Name, err)
	}
	schema, err := compiler.Compile(decl.Name + ".json")
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, "dispatcher.compile", "invalid schema for "+decl.Name, err)
	}
	c.schema = schema
	return c, nil
}

// Outcome is what Dispatch decides happened to one tool_call.
type Outcome struct {
	// Paused is true when the tool_call is waiting on approval or a
	// remote result and must not be turned into a tool reply message yet.
	Paused       bool
	ApprovalID   string
	Result       *Result
	ErrorMessage string // set when the call failed outright (access control, schema, unknown tool)
}

// Dispatch executes exactly one tool_call per spec.md §4.4's execution
// contract: approval-gate, then local-execute or remote-forward.
func (d *Dispatcher) Dispatch(ctx context.Context, call CallContext, toolName string, arguments json.RawMessage) (outcome Outcome, err error) {
	ctx, span := tracing.Start(ctx, "dispatcher.dispatch", call.SessionID, tracing.String("tool.name", toolName))
	defer func() { tracing.End(span, err) }()

	if d.doomLoop.Check(call.SessionID, toolName, string(arguments)) {
		return Outcome{ErrorMessage: fmt.Sprintf("tool %q called repeatedly with identical arguments; refusing to continue the loop", toolName)}, nil
	}

	t, ok := d.tools[toolName]
	if !ok {
		return Outcome{ErrorMessage: fmt.Sprintf("unknown tool %q", toolName)}, nil
	}

	if err := d.checkAccess(call.Agent, t.decl, arguments); err != nil {
		return Outcome{ErrorMessage: err.Error()}, nil
	}

	if t.schema != nil {
		var v any
		if err := json.Unmarshal(arguments, &v); err != nil {
			return Outcome{ErrorMessage: "malformed arguments: " + err.Error()}, nil
		}
		if err := t.schema.Validate(v); err != nil {
			return Outcome{ErrorMessage: "arguments failed schema validation: " + err.Error()}, nil
		}
	}

	if d.approvals != nil {
		if requires, reason := d.approvals.ShouldRequire(types.RequestTypeTool, toolName); requires {
			pending, err := d.approvals.AddPending(ctx, call.CallID, call.SessionID, types.RequestTypeTool, toolName, string(arguments), reason)
			if err != nil {
				return Outcome{}, err
			}
			return Outcome{Paused: true, ApprovalID: pending.RequestID}, nil
		}
	}

	if t.decl.Local {
		return d.dispatchLocal(ctx, call, t, arguments)
	}
	return d.dispatchRemote(ctx, call, t, arguments)
}

// Resume executes a tool_call that already cleared approval gating (its
// PendingApproval was decided Approved), so it runs straight to
// local/remote execution without re-evaluating the approval policy or
// doom-loop detector. toolName must still be a registered tool; the caller
// (orchestrator, after an approval_decided event) is responsible for
// producing the rejection's synthetic tool reply itself when the decision
// was Rejected instead of calling Resume.
func (d *Dispatcher) Resume(ctx context.Context, call CallContext, toolName string, arguments json.RawMessage) (Outcome, error) {
	t, ok := d.tools[toolName]
	if !ok {
		return Outcome{ErrorMessage: fmt.Sprintf("unknown tool %q", toolName)}, nil
	}
	if t.decl.Local {
		return d.dispatchLocal(ctx, call, t, arguments)
	}
	return d.dispatchRemote(ctx, call, t, arguments)
}

func (d *Dispatcher) dispatchLocal(ctx context.Context, call CallContext, t *compiledTool, arguments json.RawMessage) (Outcome, error) {
	d.publishStarted(ctx, call, t.decl.Name, arguments)
	result, err := t.handler(ctx, call, arguments)
	d.publishFinished(ctx, call, t.decl.Name, err)
	if err != nil {
		return Outcome{ErrorMessage: err.Error()}, nil
	}
	return Outcome{Result: result}, nil
}

func (d *Dispatcher) dispatchRemote(ctx context.Context, call CallContext, t *compiledTool, arguments json.RawMessage) (Outcome, error) {
	d.publishStarted(ctx, call, t.decl.Name, arguments)

	var input map[string]any
	_ = json.Unmarshal(arguments, &input)

	resp, err := d.remote.Execute(ctx, call, t.decl.Name, input, d.remoteWait)
	d.publishFinished(ctx, call, t.decl.Name, err)
	if err != nil {
		return Outcome{ErrorMessage: err.Error()}, nil
	}
	return Outcome{Result: &Result{Title: resp.Title, Output: resp.Output, Metadata: resp.Metadata}}, nil
}

// checkAccess enforces spec.md §4.4's access control: the agent allow-list
// and, for any argument field named in PathArgFields, the agent's
// AllowedPaths glob restriction.
func (d *Dispatcher) checkAccess(agentName string, decl Declaration, arguments json.RawMessage) error {
	if len(decl.AllowedAgents) > 0 && !contains(decl.AllowedAgents, agentName) {
		return fmt.Errorf("agent %q is not permitted to invoke tool %q", agentName, decl.Name)
	}

	def, ok := d.agentDefs[agentName]
	if !ok || len(def.AllowedPaths) == 0 || len(decl.PathArgFields) == 0 {
		return nil
	}

	var args map[string]any
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil // schema validation catches malformed arguments separately
	}
	for _, field := range decl.PathArgFields {
		raw, ok := args[field]
		if !ok {
			continue
		}
		path, ok := raw.(string)
		if !ok {
			continue
		}
		if !matchesAny(def.AllowedPaths, path) {
			return fmt.Errorf("agent %q may not access path %q (outside its allowed paths)", agentName, path)
		}
	}
	return nil
}

func matchesAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// ManifestEntry is one tool's declaration as seen by the LLM Client's tool
// manifest (spec.md §4.4: "Tool declarations are static").
type ManifestEntry struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Manifest returns the tools a given agent may invoke, for building the
// completion request's tool manifest. Agents with no declared allow-list
// entry on a tool may still invoke it when the tool declares none itself.
func (d *Dispatcher) Manifest(agentName string) []ManifestEntry {
	entries := make([]ManifestEntry, 0, len(d.tools))
	for _, t := range d.tools {
		if len(t.decl.AllowedAgents) > 0 && !contains(t.decl.AllowedAgents, agentName) {
			continue
		}
		entries = append(entries, ManifestEntry{Name: t.decl.Name, Description: t.decl.Description, Schema: t.decl.Schema})
	}
	return entries
}

func (d *Dispatcher) publishStarted(ctx context.Context, call CallContext, toolName string, arguments json.RawMessage) {
	if d.bus == nil {
		return
	}
	e := eventbus.NewEvent(types.EventToolCallStarted)
	e.SessionID = call.SessionID
	e.Source = "dispatcher"
	e.Timestamp = time.Now().UnixMilli()
	e.Payload = map[string]any{"callID": call.CallID, "tool": toolName, "agent": call.Agent, "arguments": string(arguments)}
	d.bus.Publish(ctx, e)
}

func (d *Dispatcher) publishFinished(ctx context.Context, call CallContext, toolName string, err error) {
	if d.bus == nil {
		return
	}
	e := eventbus.NewEvent(types.EventToolCallFinished)
	e.SessionID = call.SessionID
	e.Source = "dispatcher"
	e.Timestamp = time.Now().UnixMilli()
	payload := map[string]any{"callID": call.CallID, "tool": toolName, "agent": call.Agent}
	if err != nil {
		payload["error"] = err.Error()
	}
	e.Payload = payload
	d.bus.Publish(ctx, e)
}

// ResetDoomLoop clears the repeated-call tracker for a session, e.g. once
// its turn completes.
func (d *Dispatcher) ResetDoomLoop(sessionID string) { d.doomLoop.Reset(sessionID) }
