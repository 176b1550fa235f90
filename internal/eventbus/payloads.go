package eventbus

import "github.com/agentrt/runtime/pkg/types"

// categoryOf returns the fixed EventCategory for a known EventType. Callers
// building an Event should use this rather than hand-picking a category, so
// a given EventType is never accidentally published under two categories.
func categoryOf(t types.EventType) types.EventCategory {
	switch t {
	case types.EventSessionCreated, types.EventSessionUpdated, types.EventSessionDeleted:
		return types.CategorySession
	case types.EventAgentSwitched:
		return types.CategoryAgent
	case types.EventToolCallStarted, types.EventToolCallFinished:
		return types.CategoryTool
	case types.EventApprovalRequired, types.EventApprovalDecided, types.EventApprovalExpired:
		return types.CategoryApproval
	case types.EventLLMChunk, types.EventLLMCompleted:
		return types.CategoryLLM
	case types.EventSystemError:
		return types.CategorySystem
	default:
		return types.CategorySystem
	}
}

// NewEvent builds an Event with its category and schema version filled in
// from t, leaving timestamp/ids/source/payload to the caller.
func NewEvent(t types.EventType) types.Event {
	return types.Event{
		EventType:     t,
		EventCategory: categoryOf(t),
		SchemaVersion: types.SchemaVersion,
	}
}
