package accesskit

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/oarkflow/accesskit/utils"
)

// PermissionAdmin is the reserved key that bypasses every requirement. The
// bypass is applied once per batch in the resolver, never inside condition
// evaluation.
const PermissionAdmin = "admin"

// Permission is an atomic, code-defined capability. Keys are globally unique
// and namespaced as "<category>.<action>" (e.g. "workers.manage").
type Permission struct {
	Key         string `json:"key" yaml:"key"`
	Description string `json:"description" yaml:"description"`
}

// PermissionSet is the effective set of permission keys held by a principal.
type PermissionSet map[string]struct{}

func NewPermissionSet(keys ...string) PermissionSet {
	s := make(PermissionSet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s PermissionSet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

func (s PermissionSet) Add(keys ...string) {
	for _, k := range keys {
		s[k] = struct{}{}
	}
}

// Union merges other into s and returns s.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	for k := range other {
		s[k] = struct{}{}
	}
	return s
}

// Keys returns the sorted permission keys.
func (s PermissionSet) Keys() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Catalog holds the code-defined permissions. Permissions are not
// user-creatable; admin screens only read them.
type Catalog struct {
	mu    sync.RWMutex
	perms map[string]Permission
	order []string
}

func NewCatalog() *Catalog {
	c := &Catalog{perms: make(map[string]Permission)}
	c.mustDefine(Permission{Key: PermissionAdmin, Description: "unconditional access to everything"})
	return c
}

// Define registers a permission. Keys must be namespaced "<category>.<action>";
// the reserved "admin" key is pre-defined.
func (c *Catalog) Define(p Permission) error {
	if p.Key != PermissionAdmin && !validPermissionKey(p.Key) {
		return configErrorf("permission key %q is not namespaced as <category>.<action>", p.Key)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.perms[p.Key]; exists {
		return configErrorf("permission %q already defined", p.Key)
	}
	c.perms[p.Key] = p
	c.order = append(c.order, p.Key)
	return nil
}

func (c *Catalog) mustDefine(p Permission) {
	if err := c.Define(p); err != nil {
		panic(fmt.Sprintf("accesskit: %v", err))
	}
}

func (c *Catalog) Lookup(key string) (Permission, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.perms[key]
	return p, ok
}

// List returns permissions in definition order, optionally filtered by a key
// pattern ("workers.*"). An empty pattern matches everything.
func (c *Catalog) List(pattern string) []Permission {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Permission, 0, len(c.order))
	for _, k := range c.order {
		if pattern == "" || utils.MatchKey(k, pattern) {
			out = append(out, c.perms[k])
		}
	}
	return out
}

func validPermissionKey(key string) bool {
	i := strings.IndexByte(key, '.')
	return i > 0 && i < len(key)-1 && !strings.Contains(key[i+1:], ".")
}
