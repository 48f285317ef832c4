package accesskit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oarkflow/accesskit/utils"
)

// Config is the declarative wiring for an access engine: the permission
// catalog, roles and memberships, enabled components, named policies, and
// the per-entity tab sets.
type Config struct {
	Version     uint16                     `json:"version" yaml:"version"`
	Permissions []Permission               `json:"permissions" yaml:"permissions"`
	Roles       []*Role                    `json:"roles" yaml:"roles"`
	Memberships []RoleMembership           `json:"memberships" yaml:"memberships"`
	Components  []string                   `json:"components" yaml:"components"`
	Policies    []PolicyConfig             `json:"policies" yaml:"policies"`
	Tabs        map[string][]TabDefinition `json:"tabs" yaml:"tabs"`
	Engine      EngineConfig               `json:"engine" yaml:"engine"`
}

type RoleMembership struct {
	PrincipalID string `json:"principal_id" yaml:"principal_id"`
	RoleID      string `json:"role_id" yaml:"role_id"`
}

// PolicyConfig carries requirements in the compact expression syntax; they
// are parsed into the sum type on Apply.
type PolicyConfig struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Description  string   `json:"description" yaml:"description"`
	Requirements []string `json:"requirements" yaml:"requirements"`
}

type EngineConfig struct {
	CacheTTL            int64 `json:"cache_ttl_ms" yaml:"cache_ttl_ms"`
	RistrettoNumCounter int64 `json:"ristretto_num_counter" yaml:"ristretto_num_counter"`
	RistrettoMaxCost    int64 `json:"ristretto_max_cost" yaml:"ristretto_max_cost"`
	RistrettoBuffer     int64 `json:"ristretto_buffer" yaml:"ristretto_buffer"`
}

// ConfigLoader loads configuration from supported formats
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile dispatches on the file extension (.yaml/.yml/.json).
func (l *ConfigLoader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return l.LoadYAML(data)
	case ".json":
		return l.LoadJSON(data)
	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}
}

// ToYAML exports config to YAML
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports config to JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Validate parses every requirement expression and checks that tab refs
// resolve against the config's own policies and permissions.
func (c *Config) Validate() error {
	keys := make(map[string]struct{}, len(c.Permissions)+1)
	keys[PermissionAdmin] = struct{}{}
	for _, p := range c.Permissions {
		if p.Key != PermissionAdmin && !validPermissionKey(p.Key) {
			return configErrorf("permission key %q is not namespaced as <category>.<action>", p.Key)
		}
		keys[p.Key] = struct{}{}
	}
	policyIDs := make(map[string]struct{}, len(c.Policies))
	for _, pc := range c.Policies {
		if pc.ID == "" {
			return configErrorf("policy requires an id")
		}
		for _, expr := range pc.Requirements {
			if _, err := ParseRequirement(expr); err != nil {
				return fmt.Errorf("policy %q: %w", pc.ID, err)
			}
		}
		policyIDs[pc.ID] = struct{}{}
	}
	for _, r := range c.Roles {
		for _, key := range r.Permissions {
			if _, ok := keys[key]; !ok {
				return configErrorf("role %q references undefined permission %q", r.ID, key)
			}
		}
	}
	for entityType, tabs := range c.Tabs {
		for _, t := range tabs {
			if t.ID == "" || t.RequirementRef == "" {
				return configErrorf("tab for entity type %q requires id and requirement ref", entityType)
			}
			for _, param := range utils.TemplateParams(t.HrefTemplate) {
				if param != "id" {
					return configErrorf("tab %q (%s) href template references unsupported parameter %q", t.ID, entityType, param)
				}
			}
			if _, isPolicy := policyIDs[t.RequirementRef]; isPolicy {
				continue
			}
			if _, isPerm := keys[t.RequirementRef]; isPerm {
				continue
			}
			return configErrorf("tab %q (%s) references unknown requirement %q", t.ID, entityType, t.RequirementRef)
		}
	}
	return nil
}

// ApplyTarget is the set of collaborators a config is installed onto.
type ApplyTarget struct {
	Catalog     *Catalog
	Policies    *PolicyRegistry
	Tabs        *TabRegistry
	Roles       RoleStore
	Memberships MembershipStore
}

// Apply installs the config onto the target registries and stores.
func (c *Config) Apply(ctx context.Context, t ApplyTarget) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if t.Catalog != nil {
		for _, p := range c.Permissions {
			if p.Key == PermissionAdmin {
				continue
			}
			if err := t.Catalog.Define(p); err != nil {
				return err
			}
		}
	}
	if t.Policies != nil {
		for _, pc := range c.Policies {
			reqs := make([]Requirement, 0, len(pc.Requirements))
			for _, expr := range pc.Requirements {
				req, err := ParseRequirement(expr)
				if err != nil {
					return fmt.Errorf("policy %q: %w", pc.ID, err)
				}
				reqs = append(reqs, req)
			}
			p := &Policy{ID: pc.ID, Name: pc.Name, Description: pc.Description, Requirements: reqs}
			if err := t.Policies.Register(p); err != nil {
				return err
			}
		}
	}
	if t.Tabs != nil {
		for entityType, tabs := range c.Tabs {
			if err := t.Tabs.Register(entityType, tabs); err != nil {
				return err
			}
		}
	}
	if t.Roles != nil {
		for _, r := range c.Roles {
			if err := t.Roles.CreateRole(ctx, r); err != nil {
				return err
			}
		}
	}
	if t.Memberships != nil {
		for _, m := range c.Memberships {
			if err := t.Memberships.AssignRole(ctx, m.PrincipalID, m.RoleID); err != nil {
				return err
			}
		}
	}
	return nil
}

// CacheOptions translates the engine knobs into ResolutionCache options.
func (c *Config) CacheOptions() []CacheOption {
	var opts []CacheOption
	if c.Engine.CacheTTL > 0 {
		opts = append(opts, WithTTL(time.Duration(c.Engine.CacheTTL)*time.Millisecond))
	}
	if c.Engine.RistrettoNumCounter > 0 {
		opts = append(opts, WithRistretto(c.Engine.RistrettoNumCounter, c.Engine.RistrettoMaxCost, c.Engine.RistrettoBuffer))
	}
	return opts
}
