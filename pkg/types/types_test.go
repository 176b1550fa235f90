package types

import (
	"encoding/json"
	"testing"
)

func TestSession_JSON(t *testing.T) {
	deletedAt := int64(1700000002000)
	session := Session{
		ID:           "session-123",
		CreatedAt:    1700000000000,
		UpdatedAt:    1700000001000,
		Deleted:      true,
		DeletedAt:    &deletedAt,
		SystemPrompt: "You are a helpful assistant",
		NextSeq:      3,
	}

	data, err := json.Marshal(session)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Session
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.ID != session.ID {
		t.Errorf("ID mismatch: got %s, want %s", decoded.ID, session.ID)
	}
	if decoded.DeletedAt == nil || *decoded.DeletedAt != deletedAt {
		t.Errorf("DeletedAt mismatch: got %v", decoded.DeletedAt)
	}
}

func TestSession_DeletedAtOmittedWhenNil(t *testing.T) {
	session := Session{ID: "session-456"}
	data, _ := json.Marshal(session)
	var raw map[string]any
	json.Unmarshal(data, &raw)
	if _, ok := raw["deletedAt"]; ok {
		t.Error("deletedAt should be omitted when nil")
	}
}

func TestSession_Clone(t *testing.T) {
	deletedAt := int64(42)
	original := &Session{ID: "s1", DeletedAt: &deletedAt}
	clone := original.Clone()

	if clone == original {
		t.Fatal("Clone should return a distinct pointer")
	}
	if clone.DeletedAt == original.DeletedAt {
		t.Fatal("Clone should deep-copy DeletedAt")
	}
	*clone.DeletedAt = 99
	if *original.DeletedAt != 42 {
		t.Error("mutating clone must not affect original")
	}
}

func TestSession_CloneNil(t *testing.T) {
	var s *Session
	if s.Clone() != nil {
		t.Error("Clone of nil Session must return nil")
	}
}

func TestMessage_AssistantWithToolCalls(t *testing.T) {
	msg := Message{
		ID:        "msg-123",
		SessionID: "session-456",
		Role:      RoleAssistant,
		Content:   "",
		ToolCalls: []ToolCall{
			{ID: "call-1", Name: "read_file", Arguments: `{"path":"a.go"}`},
		},
		Seq:       2,
		Timestamp: 1700000000000,
		Tokens:    &TokenUsage{Input: 1000, Output: 500},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Role != RoleAssistant {
		t.Errorf("Role mismatch: got %s", decoded.Role)
	}
	if len(decoded.ToolCalls) != 1 || decoded.ToolCalls[0].Name != "read_file" {
		t.Errorf("ToolCalls mismatch: got %+v", decoded.ToolCalls)
	}
	if decoded.Tokens.Input != 1000 {
		t.Errorf("Tokens.Input mismatch: got %d, want 1000", decoded.Tokens.Input)
	}
}

func TestMessage_ToolReply(t *testing.T) {
	msg := Message{
		ID:         "msg-789",
		SessionID:  "session-456",
		Role:       RoleTool,
		Content:    `{"ok":true}`,
		ToolCallID: "call-1",
		Seq:        3,
		Timestamp:  1700000000500,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.ToolCallID != "call-1" {
		t.Errorf("ToolCallID mismatch: got %s", decoded.ToolCallID)
	}
}

func TestAgentContext_RecordSwitch(t *testing.T) {
	ctx := &AgentContext{SessionID: "s1", CurrentAgent: "orchestrator"}

	ctx.RecordSwitch(AgentSwitch{From: "orchestrator", To: "coder", Reason: "implementation request", Confidence: 0.9, Timestamp: 1})
	if ctx.CurrentAgent != "coder" {
		t.Errorf("CurrentAgent mismatch: got %s", ctx.CurrentAgent)
	}
	if ctx.SwitchCount != 1 {
		t.Errorf("SwitchCount mismatch: got %d, want 1", ctx.SwitchCount)
	}

	// A no-op confirmation (from == to) must not increment SwitchCount.
	ctx.RecordSwitch(AgentSwitch{From: "coder", To: "coder", Reason: "stay", Confidence: 0.8, Timestamp: 2})
	if ctx.SwitchCount != 1 {
		t.Errorf("SwitchCount should stay 1 after a no-op switch, got %d", ctx.SwitchCount)
	}
	if len(ctx.AgentHistory) != 2 {
		t.Errorf("AgentHistory length mismatch: got %d, want 2", len(ctx.AgentHistory))
	}
}

func TestAgentContext_HistoryBounded(t *testing.T) {
	ctx := &AgentContext{SessionID: "s1", CurrentAgent: "orchestrator"}
	for i := 0; i < HistoryLimit+10; i++ {
		ctx.RecordSwitch(AgentSwitch{From: "a", To: "b", Timestamp: int64(i)})
	}
	if len(ctx.AgentHistory) != HistoryLimit {
		t.Errorf("AgentHistory should be capped at %d, got %d", HistoryLimit, len(ctx.AgentHistory))
	}
}

func TestPlan_ReadyRespectsDependencies(t *testing.T) {
	plan := &Plan{
		ID: "p1",
		Subtasks: []Subtask{
			{ID: "t1", State: SubtaskPending},
			{ID: "t2", State: SubtaskPending, DependsOn: []string{"t1"}},
			{ID: "t3", State: SubtaskCompleted},
		},
	}
	ready := plan.Ready()
	if len(ready) != 1 || ready[0] != "t1" {
		t.Errorf("Ready() mismatch: got %v, want [t1]", ready)
	}

	plan.Subtasks[0].State = SubtaskCompleted
	ready = plan.Ready()
	if len(ready) != 1 || ready[0] != "t2" {
		t.Errorf("Ready() after t1 completes mismatch: got %v, want [t2]", ready)
	}
}

func TestPlan_Terminal(t *testing.T) {
	for _, s := range []PlanState{PlanCompleted, PlanFailed, PlanCancelled} {
		p := &Plan{State: s}
		if !p.Terminal() {
			t.Errorf("state %s should be terminal", s)
		}
	}
	for _, s := range []PlanState{PlanPending, PlanRunning} {
		p := &Plan{State: s}
		if p.Terminal() {
			t.Errorf("state %s should not be terminal", s)
		}
	}
}

func TestApprovalPolicy_JSON(t *testing.T) {
	policy := ApprovalPolicy{
		Rules: []ApprovalRule{
			{RequestType: RequestTypeTool, SubjectPattern: "bash", RequiresApproval: true, Reason: "shell access is sensitive"},
		},
		DefaultRequiresApproval: false,
	}
	data, err := json.Marshal(policy)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded ApprovalPolicy
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(decoded.Rules) != 1 || decoded.Rules[0].SubjectPattern != "bash" {
		t.Errorf("Rules mismatch: got %+v", decoded.Rules)
	}
}

func TestEvent_CategoryAndSchemaVersion(t *testing.T) {
	evt := Event{
		EventID:       "evt-1",
		EventType:     EventAgentSwitched,
		EventCategory: CategoryAgent,
		Timestamp:     1700000000000,
		SessionID:     "s1",
		Source:        "orchestrator",
		SchemaVersion: SchemaVersion,
	}
	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.EventType != EventAgentSwitched {
		t.Errorf("EventType mismatch: got %s", decoded.EventType)
	}
}
