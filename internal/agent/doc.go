// Package agent defines the runtime's fixed agent set and the registry
// that holds it.
//
// spec.md §4.6 drives a turn through one agent at a time: the
// orchestrator classifies the turn and hands off to a specialist (coder,
// architect, debug, ask) or the universal fallback when classification
// confidence is low. Each [types.AgentDefinition] carries its own system
// prompt, enabled tool set, and (for architect) a file-path restriction
// enforced by internal/dispatcher.
//
// Unlike the teacher's user-customizable, project-config-driven agent
// catalogue, this agent set is small and built-in; [Registry.Upsert]
// exists for operators who want to point a given agent at a different
// Model, not for defining wholly new agents at runtime.
package agent
