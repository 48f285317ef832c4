package accesskit

import "sync"

// Policy is a named, reusable requirement tree. The top-level Requirements
// list is implicitly AND-combined when the policy is resolved.
type Policy struct {
	ID           string        `json:"id" yaml:"id"`
	Name         string        `json:"name" yaml:"name"`
	Description  string        `json:"description" yaml:"description"`
	Requirements []Requirement `json:"-" yaml:"-"`
}

// PolicyRegistry holds policies by id. It is read-only during evaluation;
// registration happens at wiring time.
type PolicyRegistry struct {
	mu       sync.RWMutex
	policies map[string]*Policy
	order    []string
}

func NewPolicyRegistry() *PolicyRegistry {
	return &PolicyRegistry{policies: make(map[string]*Policy)}
}

func (r *PolicyRegistry) Register(p *Policy) error {
	if p == nil || p.ID == "" {
		return configErrorf("policy requires an id")
	}
	for _, req := range p.Requirements {
		if req == nil {
			return configErrorf("policy %q contains a nil requirement", p.ID)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.policies[p.ID]; exists {
		return configErrorf("policy %q already registered", p.ID)
	}
	r.policies[p.ID] = p
	r.order = append(r.order, p.ID)
	return nil
}

// Resolve returns the policy's requirement tree as an implicit AllOf. An
// unknown id is a ConfigurationError, never a silent deny.
func (r *PolicyRegistry) Resolve(policyID string) (Requirement, error) {
	r.mu.RLock()
	p, ok := r.policies[policyID]
	r.mu.RUnlock()
	if !ok {
		return nil, configErrorf("unknown policy %q", policyID)
	}
	return &AllOf{Children: p.Requirements}, nil
}

// Contains reports whether a policy id is registered.
func (r *PolicyRegistry) Contains(policyID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.policies[policyID]
	return ok
}

// List returns policies in registration order, for display/audit tooling.
func (r *PolicyRegistry) List() []*Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Policy, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.policies[id])
	}
	return out
}
