// Package agent defines the runtime's fixed agent set (spec.md §2/§4.6):
// an orchestrator that classifies each turn and specialist agents it can
// hand off to. Unlike the teacher's user-customizable agent catalogue,
// spec.md treats the agent set as a small, built-in roster — access
// control and routing are defined in terms of it, not loaded from a
// project config file.
package agent

import "github.com/agentrt/runtime/pkg/types"

// Names of the built-in agent set.
const (
	Orchestrator = "orchestrator"
	Coder        = "coder"
	Architect    = "architect"
	Debug        = "debug"
	Ask          = "ask"
	Universal    = "universal" // fallback when classification has low confidence
)

// BuiltIn returns the fixed agent set, keyed by name. The orchestrator
// itself is entry (1): it never executes tools directly, only classifies
// and routes; every other agent is a specialist the orchestrator can
// switch control to (spec.md §4.6 step 3).
func BuiltIn() map[string]types.AgentDefinition {
	return map[string]types.AgentDefinition{
		Orchestrator: {
			Name:        Orchestrator,
			Description: "Classifies each turn and routes it to a specialist agent",
			SystemPrompt: "You are the routing layer of a coding assistant. Decide which " +
				"specialist agent should handle the user's request and respond only with " +
				"the requested classification JSON.",
			Tools: map[string]bool{},
		},
		Coder: {
			Name:        Coder,
			Description: "Writes and edits code, runs shell commands, executes the task end to end",
			SystemPrompt: "You are a careful, senior software engineer. Make the smallest " +
				"change that correctly satisfies the request, run the tools available to " +
				"verify your work, and explain what you changed.",
			Tools: map[string]bool{
				"read": true, "write": true, "edit": true, "bash": true,
				"glob": true, "grep": true, "list": true, "webfetch": true,
				"todoread": true, "todowrite": true, "batch": true, "task": true,
			},
		},
		Architect: {
			Name:        Architect,
			Description: "Designs and documents approaches without touching source code",
			SystemPrompt: "You design software changes and write them up clearly. You do not " +
				"edit source files; you may only read them and write design documents.",
			Tools: map[string]bool{
				"read": true, "glob": true, "grep": true, "list": true, "write": true,
				"todoread": true, "todowrite": true,
			},
			AllowedPaths: []string{"**/*.md", "**/*.txt", "docs/**"},
		},
		Debug: {
			Name:        Debug,
			Description: "Investigates failures: reproduces, inspects, proposes a fix",
			SystemPrompt: "You are debugging a reported failure. Reproduce it, inspect logs " +
				"and code, and narrow the change down to the minimal fix.",
			Tools: map[string]bool{
				"read": true, "edit": true, "bash": true, "glob": true, "grep": true, "list": true,
				"todoread": true, "todowrite": true, "batch": true,
			},
		},
		Ask: {
			Name:        Ask,
			Description: "Answers questions about the codebase without making changes",
			SystemPrompt: "You answer questions about this codebase accurately and concisely. " +
				"You do not modify any files.",
			Tools: map[string]bool{
				"read": true, "glob": true, "grep": true, "list": true, "webfetch": true,
			},
		},
		Universal: {
			Name:        Universal,
			Description: "General-purpose fallback when classification confidence is low",
			SystemPrompt: "You are a general-purpose assistant for this codebase. Use the " +
				"tools available to you to help with whatever the user asked.",
			Tools: map[string]bool{
				"read": true, "write": true, "edit": true, "bash": true,
				"glob": true, "grep": true, "list": true, "webfetch": true,
				"todoread": true, "todowrite": true, "batch": true, "task": true,
			},
		},
	}
}
