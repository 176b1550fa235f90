package transportedge

import "encoding/json"

// Outbound frame shapes (spec.md §6). Every field that may be absent is
// `omitempty`, so encoding/json naturally satisfies "frames carrying null
// fields MUST be filtered out before send" without a separate pass.

// AssistantMessageFrame streams one token of the model's reply; IsFinal
// marks the last frame of a turn.
type AssistantMessageFrame struct {
	Type    string `json:"type"`
	Token   string `json:"token,omitempty"`
	IsFinal bool   `json:"isFinal"`
}

// ToolCallFrame announces a dispatched tool_call for IDE-side display
// (and, for remote tools, as the actual delegation request).
type ToolCallFrame struct {
	Type      string          `json:"type"`
	CallID    string          `json:"callID"`
	ToolName  string          `json:"toolName"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// AgentSwitchedFrame reports a routing decision.
type AgentSwitchedFrame struct {
	Type       string  `json:"type"`
	FromAgent  string  `json:"fromAgent,omitempty"`
	ToAgent    string  `json:"toAgent"`
	Reason     string  `json:"reason,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// ApprovalRequiredFrame asks the IDE to prompt the user for a HITL
// decision. Arguments carries the gated call's raw JSON arguments (spec.md
// §6) so the IDE's approval UI can render what it is being asked to
// approve, the same payload the REST pending-approvals endpoint exposes.
type ApprovalRequiredFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestID"`
	Subject   string          `json:"subject"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// SessionInfoFrame reports the real session id, sent in reply to a
// "new_"-prefixed placeholder.
type SessionInfoFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionID"`
}

// ErrorFrame reports a validation, protocol, or upstream failure without
// closing the connection.
type ErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
