package agent

import (
	"sync"

	"github.com/agentrt/runtime/internal/apperr"
	"github.com/agentrt/runtime/pkg/types"
)

// Registry holds the process's agent set: the built-ins plus any
// operator-supplied overrides (e.g. a different Model per agent).
type Registry struct {
	mu     sync.RWMutex
	agents map[string]types.AgentDefinition
}

// NewRegistry constructs a Registry seeded with the built-in agent set.
func NewRegistry() *Registry {
	r := &Registry{agents: make(map[string]types.AgentDefinition)}
	for name, def := range BuiltIn() {
		r.agents[name] = def
	}
	return r
}

// Get returns the named agent's definition.
func (r *Registry) Get(name string) (types.AgentDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.agents[name]
	if !ok {
		return types.AgentDefinition{}, apperr.New(apperr.NotFound, "agent.Get", "unknown agent "+name)
	}
	return def, nil
}

// Upsert registers or overrides an agent definition, e.g. to point an
// agent at a non-default Model.
func (r *Registry) Upsert(def types.AgentDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[def.Name] = def
}

// List returns every registered agent definition.
func (r *Registry) List() []types.AgentDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.AgentDefinition, 0, len(r.agents))
	for _, def := range r.agents {
		out = append(out, def)
	}
	return out
}

// Names returns every registered agent's name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.agents))
	for name := range r.agents {
		out = append(out, name)
	}
	return out
}

// Exists reports whether name is a registered agent.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[name]
	return ok
}

// AllowedPaths returns the agent's file-path restriction globs, or nil if
// it has none (unrestricted).
func (r *Registry) AllowedPaths(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agents[name].AllowedPaths
}

// AsMap returns a snapshot of the registry as a plain map, for callers
// (e.g. the Tool Dispatcher) that want to look up AllowedPaths without
// holding a Registry reference themselves.
func (r *Registry) AsMap() map[string]types.AgentDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]types.AgentDefinition, len(r.agents))
	for k, v := range r.agents {
		out[k] = v
	}
	return out
}
