// Package persona is a small concurrency-safe roster of configured
// conversational characters, used by the graph to fan out C4 per persona
// and by the poller/executor to resolve identity and phone numbers.
package persona

import (
	"fmt"
	"sort"
	"sync"

	supervisor "github.com/kestrelhq/persona-supervisor"
)

// Registry is a name-keyed persona roster, grounded on the teacher's
// team registry: map + mutex + sorted-name listing, generalized from
// agents to personas.
type Registry struct {
	mu       sync.RWMutex
	personas map[string]supervisor.Persona
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{personas: make(map[string]supervisor.Persona)}
}

// NewRegistryFromSlice builds a registry from a loaded persona list
// (typically the output of ConfigStore.LoadPersonas).
func NewRegistryFromSlice(personas []supervisor.Persona) (*Registry, error) {
	r := NewRegistry()
	for _, p := range personas {
		if err := r.Add(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers a persona by name.
func (r *Registry) Add(p supervisor.Persona) error {
	if p.Name == "" {
		return fmt.Errorf("persona: name cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.personas[p.Name]; exists {
		return fmt.Errorf("persona: %s already registered", p.Name)
	}
	r.personas[p.Name] = p
	return nil
}

// Get retrieves a persona by name.
func (r *Registry) Get(name string) (supervisor.Persona, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.personas[name]
	return p, ok
}

// List returns every registered persona sorted by name.
func (r *Registry) List() []supervisor.Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.personas))
	for name := range r.personas {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]supervisor.Persona, 0, len(names))
	for _, name := range names {
		out = append(out, r.personas[name])
	}
	return out
}

// IsAgent reports whether username/firstName/lastName identifies one of
// the registered personas (spec §9's identity-matching contract).
func (r *Registry) IsAgent(username, firstName, lastName string) bool {
	return supervisor.IsAgentIdentity(r.List(), username, firstName, lastName)
}

// IsAgentMessage reports whether m was authored by a registered persona.
func (r *Registry) IsAgentMessage(m supervisor.Message) bool {
	return supervisor.IsAgentMessage(r.List(), m)
}

// PrimaryPhone returns the phone number of the first persona in name
// order.
func (r *Registry) PrimaryPhone() (string, bool) {
	list := r.List()
	if len(list) == 0 {
		return "", false
	}
	return list[0].PhoneNumber, true
}
