// Package orchestrator drives the multi-agent turn loop (spec.md §4.6).
//
// # Architecture
//
// Engine composes three already-complete subsystems rather than owning
// their internals itself:
//
//   - internal/store.Store — session persistence, message log, routing state
//   - internal/llmclient.Client — streamed completions, retry, circuit breaking
//   - internal/dispatcher.Dispatcher — tool access control and execution
//
// Service is a thin facade over Engine and Store for callers (the admin
// REST surface, the transport edge) that only need session CRUD and
// "run a turn," not the Engine's lower-level API.
//
// # Turn lifecycle
//
// Engine.Run acquires the session's exclusion lock for the whole turn,
// appends the user's message, routes to a specialist agent (classify.go),
// then loops: stream one LLM completion, persist the assistant message,
// dispatch any tool_calls it carried, and repeat until the model stops
// requesting tools or the turn's iteration cap is hit
// (ErrIterationLimitExceeded).
//
// A tool_call gated by the Approval Manager pauses the turn in
// awaitApproval, which blocks on an approval_decided/approval_expired
// event rather than polling — see engine.go's comment on why polling the
// Approval Manager's GetPending does not work here.
//
// compact.go bounds context growth: once a session's accumulated token
// usage crosses MaxContextTokens, Engine summarizes everything but the
// most recent messages into a synthetic marker message and resumes
// reading from there on every later turn, without mutating the
// underlying append-only log.
package orchestrator
