// Package transportedge implements the IDE-facing transport edge
// (spec.md §4.7): one long-lived, bidirectional, session-scoped WebSocket
// stream per IDE. It is a thin relay — frame validation, session-id
// resolution (including first-message "new_"-prefixed auto-creation), and
// bridging the Event Bus to the wire. No business logic lives here; every
// inbound frame's real work is delegated to internal/orchestrator.Service,
// internal/approval.Manager, or internal/dispatcher.RemoteRegistry.
package transportedge

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentrt/runtime/internal/agent"
	"github.com/agentrt/runtime/internal/apperr"
	"github.com/agentrt/runtime/internal/approval"
	"github.com/agentrt/runtime/internal/dispatcher"
	"github.com/agentrt/runtime/internal/eventbus"
	"github.com/agentrt/runtime/internal/orchestrator"
	"github.com/agentrt/runtime/pkg/types"
)

// newSessionPrefix marks a client-chosen placeholder session id that the
// edge must replace with a freshly created session (spec.md §4.7/§6).
const newSessionPrefix = "new_"

// Config tunes connection-level behavior. Defaults match
// internal/config.Config's WS_HEARTBEAT_INTERVAL knob (spec.md §6).
type Config struct {
	ReadBufferSize    int
	WriteBufferSize   int
	HeartbeatInterval time.Duration
	PongWait          time.Duration
	WriteWait         time.Duration
}

// DefaultConfig returns sane connection defaults.
func DefaultConfig() Config {
	return Config{
		ReadBufferSize:    8192,
		WriteBufferSize:   8192,
		HeartbeatInterval: 30 * time.Second,
		PongWait:          60 * time.Second,
		WriteWait:         10 * time.Second,
	}
}

// Edge owns the WebSocket upgrade handler and wires every accepted
// connection to the shared runtime components.
type Edge struct {
	cfg       Config
	svc       *orchestrator.Service
	agents    *agent.Registry
	approvals *approval.Manager
	remote    *dispatcher.RemoteRegistry
	bus       *eventbus.Bus
	log       zerolog.Logger
	upgrader  websocket.Upgrader
}

// New constructs an Edge. remote is the same RemoteRegistry instance given
// to internal/dispatcher.New, so tool_result frames this edge receives
// reach the dispatcher call that is blocked waiting on them.
func New(cfg Config, svc *orchestrator.Service, agents *agent.Registry, approvals *approval.Manager, remote *dispatcher.RemoteRegistry, bus *eventbus.Bus, log zerolog.Logger) *Edge {
	return &Edge{
		cfg:       cfg,
		svc:       svc,
		agents:    agents,
		approvals: approvals,
		remote:    remote,
		bus:       bus,
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(*http.Request) bool { return true }, // IDE clients, not browsers; origin checking is the reverse proxy's job
		},
	}
}

// ServeHTTP upgrades the request to a WebSocket and runs the session-scoped
// connection loop until the socket closes.
func (e *Edge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.log.Warn().Err(err).Msg("transportedge: upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{
		edge:   e,
		conn:   conn,
		send:   make(chan []byte, 64),
		ctx:    ctx,
		cancel: cancel,
	}
	c.run()
}

// connection is one accepted WebSocket, bound to exactly one session once
// the first inbound frame resolves it.
type connection struct {
	edge *Edge

	conn *websocket.Conn
	send chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	sessionID   string
	unsubscribe func()
}

func (c *connection) run() {
	defer c.close()
	go c.writeLoop()
	c.readLoop()
}

// close tears the connection down. It deliberately does not call
// RemoteRegistry.CancelAll: that cancels every in-flight remote call across
// every session, not just this connection's — a disconnecting IDE should
// let its own pending remote calls time out on RemoteRegistry.Execute's
// own deadline rather than disrupt unrelated sessions sharing the process.
func (c *connection) close() {
	c.mu.Lock()
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.mu.Unlock()
	c.cancel()
	close(c.send)
	_ = c.conn.Close()
}

func (c *connection) readLoop() {
	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.edge.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.edge.cfg.PongWait))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		c.handleInbound(data)
	}
}

func (c *connection) writeLoop() {
	ticker := time.NewTicker(c.edge.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.edge.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.edge.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue marshals and queues an outbound frame, dropping it (and logging)
// if the connection's write buffer is full rather than blocking the event
// bus's publisher.
func (c *connection) enqueue(frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.edge.log.Error().Err(err).Msg("transportedge: failed to marshal outbound frame")
		return
	}
	select {
	case c.send <- data:
	default:
		c.edge.log.Warn().Msg("transportedge: outbound buffer full, dropping frame")
	}
}

func (c *connection) sendError(message string) {
	c.enqueue(ErrorFrame{Type: "error", Error: message})
}

func (c *connection) handleInbound(data []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.sendError("invalid frame: " + err.Error())
		return
	}

	switch envelope.Type {
	case "user_message":
		c.handleUserMessage(data)
	case "tool_result":
		c.handleToolResult(data)
	case "approval_decision":
		c.handleApprovalDecision(data)
	case "switch_agent":
		c.handleSwitchAgent(data)
	case "plan_decision":
		c.handlePlanDecision(data)
	default:
		c.sendError("unknown frame type: " + envelope.Type)
	}
}

// handleUserMessage resolves (creating if needed) the session this
// connection is bound to, then drives one Engine turn. The turn's deltas,
// tool calls, and agent switches arrive on c.send via the bus subscription
// wired in bindSession, not as a direct return value here.
func (c *connection) handleUserMessage(data []byte) {
	var frame struct {
		SessionID string `json:"sessionID"`
		Content   string `json:"content"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		c.sendError("invalid user_message frame: " + err.Error())
		return
	}

	if err := c.ensureSession(frame.SessionID); err != nil {
		c.sendError("failed to resolve session: " + err.Error())
		return
	}

	go func() {
		if err := c.edge.svc.SendMessage(c.ctx, c.currentSessionID(), frame.Content, ""); err != nil {
			c.enqueue(ErrorFrame{Type: "error", Error: err.Error()})
		}
	}()
}

func (c *connection) currentSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// ensureSession binds the connection to a session id, creating a new one
// when requested carries the newSessionPrefix placeholder (spec.md §4.7).
// Reconnecting to an already-bound connection with the same real id is a
// no-op; binding to a second, different session on one connection is
// rejected, since the transport edge is one stream per IDE session.
func (c *connection) ensureSession(requested string) error {
	c.mu.Lock()
	alreadyBound := c.sessionID
	c.mu.Unlock()

	if alreadyBound != "" {
		if requested != "" && requested != alreadyBound && !strings.HasPrefix(requested, newSessionPrefix) {
			return apperr.New(apperr.Validation, "transportedge.ensureSession", "connection is already bound to a different session")
		}
		return nil
	}

	sessionID := requested
	if sessionID == "" || strings.HasPrefix(sessionID, newSessionPrefix) {
		sess, err := c.edge.svc.Create(c.ctx, "")
		if err != nil {
			return err
		}
		sessionID = sess.ID
	}

	c.bindSession(sessionID)
	c.enqueue(SessionInfoFrame{Type: "session_info", SessionID: sessionID})
	return nil
}

// bindSession subscribes this connection to every bus event for sessionID
// and translates them into outbound frames as they arrive.
func (c *connection) bindSession(sessionID string) {
	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()

	subID := "transportedge-" + sessionID
	unsubscribe := c.edge.bus.Subscribe(subID, eventbus.Everything(), 0, func(evt types.Event) {
		if evt.SessionID != sessionID {
			return
		}
		c.dispatchEvent(evt)
	})

	c.mu.Lock()
	c.unsubscribe = unsubscribe
	c.mu.Unlock()
}

// dispatchEvent translates one internal domain event into its outbound
// frame per spec.md §6. Event types with no outbound frame mapping are
// ignored here (they still drive REST-surface metrics/audit separately).
func (c *connection) dispatchEvent(evt types.Event) {
	switch evt.EventType {
	case types.EventLLMChunk:
		delta, _ := evt.Payload["delta"].(string)
		c.enqueue(AssistantMessageFrame{Type: "assistant_message", Token: delta, IsFinal: false})
	case types.EventLLMCompleted:
		c.enqueue(AssistantMessageFrame{Type: "assistant_message", Token: "", IsFinal: true})
	case types.EventAgentSwitched:
		from, _ := evt.Payload["from"].(string)
		to, _ := evt.Payload["to"].(string)
		reason, _ := evt.Payload["reason"].(string)
		confidence, _ := evt.Payload["confidence"].(float64)
		c.enqueue(AgentSwitchedFrame{Type: "agent_switched", FromAgent: from, ToAgent: to, Reason: reason, Confidence: confidence})
	case types.EventToolCallStarted:
		callID, _ := evt.Payload["callID"].(string)
		tool, _ := evt.Payload["tool"].(string)
		arguments, _ := evt.Payload["arguments"].(string)
		c.enqueue(ToolCallFrame{Type: "tool_call", CallID: callID, ToolName: tool, Arguments: json.RawMessage(arguments)})
	case types.EventApprovalRequired:
		requestID, _ := evt.Payload["requestID"].(string)
		subject, _ := evt.Payload["subject"].(string)
		arguments, _ := evt.Payload["arguments"].(string)
		reason, _ := evt.Payload["reason"].(string)
		c.enqueue(ApprovalRequiredFrame{Type: "approval_required", RequestID: requestID, Subject: subject, Arguments: json.RawMessage(arguments), Reason: reason})
	case types.EventSystemError:
		message, _ := evt.Payload["message"].(string)
		c.enqueue(ErrorFrame{Type: "error", Error: message})
	}
}

// handleToolResult delivers an IDE-executed remote tool's result to the
// dispatcher call that is blocked waiting for it.
func (c *connection) handleToolResult(data []byte) {
	var frame struct {
		CallID string          `json:"callID"`
		Result json.RawMessage `json:"result"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		c.sendError("invalid tool_result frame: " + err.Error())
		return
	}

	resp := dispatcher.RemoteResponse{Status: "success"}
	if frame.Error != "" {
		resp.Status = "error"
		resp.Error = frame.Error
	} else if len(frame.Result) > 0 {
		var parsed struct {
			Title    string         `json:"title"`
			Output   string         `json:"output"`
			Metadata map[string]any `json:"metadata"`
		}
		if err := json.Unmarshal(frame.Result, &parsed); err == nil {
			resp.Title, resp.Output, resp.Metadata = parsed.Title, parsed.Output, parsed.Metadata
		}
	}

	if !c.edge.remote.SubmitResult(frame.CallID, resp) {
		c.edge.log.Warn().Str("callID", frame.CallID).Msg("transportedge: dropped orphan tool_result")
	}
}

// handleApprovalDecision maps an inbound HITL decision onto the Approval
// Manager. "edit" decisions with modified_arguments are accepted as an
// approval of the original call — see DESIGN.md's recorded limitation:
// Engine.runToolCall resumes using the assistant's original tool_call
// arguments, so arming a genuinely edited re-execution needs a follow-up
// change to how Resume sources its arguments.
func (c *connection) handleApprovalDecision(data []byte) {
	var frame struct {
		RequestID string `json:"requestID"`
		Decision  string `json:"decision"`
		Feedback  string `json:"feedback"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		c.sendError("invalid approval_decision frame: " + err.Error())
		return
	}

	switch frame.Decision {
	case "approve", "edit":
		if _, err := c.edge.approvals.Approve(c.ctx, frame.RequestID); err != nil {
			c.sendError("approve failed: " + err.Error())
		}
	case "reject":
		if _, err := c.edge.approvals.Reject(c.ctx, frame.RequestID); err != nil {
			c.sendError("reject failed: " + err.Error())
		}
	default:
		c.sendError("unknown approval decision: " + frame.Decision)
	}
}

// handleSwitchAgent pins the bound session's routing state to the
// requested agent, bypassing automatic classification for the next turn.
func (c *connection) handleSwitchAgent(data []byte) {
	var frame struct {
		AgentType string `json:"agentType"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		c.sendError("invalid switch_agent frame: " + err.Error())
		return
	}
	sessionID := c.currentSessionID()
	if sessionID == "" {
		c.sendError("no session bound yet; send a user_message first")
		return
	}
	if _, err := c.edge.agents.Get(frame.AgentType); err != nil {
		c.sendError("unknown agent: " + frame.AgentType)
		return
	}
	if err := c.edge.svc.SetAgent(c.ctx, sessionID, frame.AgentType); err != nil {
		c.sendError("switch_agent failed: " + err.Error())
	}
}

// handlePlanDecision is a stub for the Plan/Subtask DAG extension
// (SPEC_FULL.md §3); plan execution is not wired into the edge yet.
func (c *connection) handlePlanDecision(data []byte) {
	c.sendError("plan_decision is not yet supported")
}
