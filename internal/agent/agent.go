// Package agent defines Convoke agents: the named identities on whose behalf
// the pipeline answers chat requests.
//
// An agent carries the system prompt that shapes its persona, model routing
// hints, and the allowlist of tools it may invoke. Agents are loaded once at
// startup from YAML and are read-only for the lifetime of the process; the
// [Registry] that holds them is safe for concurrent use.
package agent

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Agent describes a single conversational identity.
type Agent struct {
	// ID is the stable identifier used in inbound requests.
	ID string `yaml:"id"`

	// Name is the display name.
	Name string `yaml:"name"`

	// SystemPrompt is the identity instruction injected at the head of every
	// transcript built for this agent.
	SystemPrompt string `yaml:"system_prompt"`

	// Model optionally overrides the configured default model for this
	// agent's requests.
	Model string `yaml:"model"`

	// Temperature is the sampling temperature for this agent's model calls.
	// Zero means provider default.
	Temperature float64 `yaml:"temperature"`

	// AllowedTools is the tool allowlist. An empty list grants access to the
	// entire catalogue; a non-empty list restricts the agent to exactly
	// those canonical tool names.
	AllowedTools []string `yaml:"allowed_tools"`

	// allowed is the lookup form of AllowedTools, built by normalise.
	allowed map[string]struct{}
}

// Allows reports whether the agent may invoke the named tool. Implements
// toolexec.Authorizer.
func (a *Agent) Allows(tool string) bool {
	if len(a.allowed) == 0 {
		return true
	}
	_, ok := a.allowed[strings.ToLower(tool)]
	return ok
}

// normalise validates the agent definition and builds internal lookups.
func (a *Agent) normalise() error {
	a.ID = strings.TrimSpace(a.ID)
	if a.ID == "" {
		return fmt.Errorf("agent: id must not be empty")
	}
	if a.Name == "" {
		a.Name = a.ID
	}
	if len(a.AllowedTools) > 0 {
		a.allowed = make(map[string]struct{}, len(a.AllowedTools))
		for _, t := range a.AllowedTools {
			a.allowed[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
		}
	}
	return nil
}

// Registry holds all loaded agents keyed by ID.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewRegistry creates a Registry from the given agents. Each agent must have
// a unique, non-empty ID.
func NewRegistry(agents []*Agent) (*Registry, error) {
	r := &Registry{agents: make(map[string]*Agent, len(agents))}
	for _, a := range agents {
		if err := a.normalise(); err != nil {
			return nil, err
		}
		if _, dup := r.agents[a.ID]; dup {
			return nil, fmt.Errorf("agent: duplicate id %q", a.ID)
		}
		r.agents[a.ID] = a
	}
	return r, nil
}

// Get returns the agent with the given ID.
func (r *Registry) Get(id string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent: unknown agent %q", id)
	}
	return a, nil
}

// IDs returns the sorted list of registered agent IDs.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
