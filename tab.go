package accesskit

import (
	"sync"

	"github.com/oarkflow/accesskit/utils"
)

// TabDefinition is an entity-scoped UI entry point gated by a requirement.
// RequirementRef is either a policy id or a bare permission key; policy ids
// take precedence when a ref matches both namespaces.
type TabDefinition struct {
	ID             string `json:"id" yaml:"id"`
	Label          string `json:"label" yaml:"label"`
	HrefTemplate   string `json:"href_template" yaml:"href_template"`
	RequirementRef string `json:"requirement_ref" yaml:"requirement_ref"`
}

// Href expands the tab's href template for a concrete entity id. Templates
// use ':' parameters ("/workers/:id/ledger"); "id" binds to the entity id.
func (t TabDefinition) Href(entityID string) string {
	return utils.ExpandTemplate(t.HrefTemplate, map[string]string{"id": entityID})
}

// TabAccessResult is the grant/deny outcome for one tab. A false Granted with
// a Reason is a successful, expected outcome, not an error.
type TabAccessResult struct {
	TabID   string `json:"tabId"`
	Granted bool   `json:"granted"`
	Reason  string `json:"reason,omitempty"`
	Href    string `json:"href,omitempty"`
}

// TabRegistry holds the ordered tab sequences per entity type (worker,
// employer, provider, ...). Order is significant and preserved through
// resolution.
type TabRegistry struct {
	mu   sync.RWMutex
	tabs map[string][]TabDefinition
}

func NewTabRegistry() *TabRegistry {
	return &TabRegistry{tabs: make(map[string][]TabDefinition)}
}

func (r *TabRegistry) Register(entityType string, tabs []TabDefinition) error {
	if entityType == "" {
		return configErrorf("tab registration requires an entity type")
	}
	seen := make(map[string]struct{}, len(tabs))
	for _, t := range tabs {
		if t.ID == "" || t.RequirementRef == "" {
			return configErrorf("tab for entity type %q requires id and requirement ref", entityType)
		}
		if _, dup := seen[t.ID]; dup {
			return configErrorf("duplicate tab %q for entity type %q", t.ID, entityType)
		}
		seen[t.ID] = struct{}{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tabs[entityType]; exists {
		return configErrorf("tabs already registered for entity type %q", entityType)
	}
	r.tabs[entityType] = append([]TabDefinition(nil), tabs...)
	return nil
}

// TabsFor returns the registered sequence for an entity type. An unknown
// entity type is a ConfigurationError.
func (r *TabRegistry) TabsFor(entityType string) ([]TabDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tabs, ok := r.tabs[entityType]
	if !ok {
		return nil, configErrorf("no tabs registered for entity type %q", entityType)
	}
	return tabs, nil
}

// EntityTypes returns the entity types with registered tab sets.
func (r *TabRegistry) EntityTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tabs))
	for et := range r.tabs {
		out = append(out, et)
	}
	return out
}
