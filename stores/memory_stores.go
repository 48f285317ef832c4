package stores

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oarkflow/accesskit"
)

// MemoryRoleStore implements role persistence in-memory for testing/demo
type MemoryRoleStore struct {
	mu    sync.RWMutex
	roles map[string]*accesskit.Role
}

func NewMemoryRoleStore() *MemoryRoleStore {
	return &MemoryRoleStore{roles: make(map[string]*accesskit.Role)}
}

func (s *MemoryRoleStore) CreateRole(ctx context.Context, r *accesskit.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.roles[r.ID]; exists {
		return fmt.Errorf("role already exists: %s", r.ID)
	}
	cop := *r
	cop.Permissions = append([]string(nil), r.Permissions...)
	if cop.CreatedAt.IsZero() {
		cop.CreatedAt = time.Now()
	}
	s.roles[r.ID] = &cop
	return nil
}

func (s *MemoryRoleStore) GetRole(ctx context.Context, id string) (*accesskit.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", accesskit.ErrRoleNotFound, id)
	}
	cop := *r
	cop.Permissions = append([]string(nil), r.Permissions...)
	return &cop, nil
}

func (s *MemoryRoleStore) ListRoles(ctx context.Context) ([]*accesskit.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*accesskit.Role, 0, len(s.roles))
	for _, r := range s.roles {
		cop := *r
		cop.Permissions = append([]string(nil), r.Permissions...)
		out = append(out, &cop)
	}
	return out, nil
}

func (s *MemoryRoleStore) GrantPermission(ctx context.Context, roleID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[roleID]
	if !ok {
		return fmt.Errorf("%w: %s", accesskit.ErrRoleNotFound, roleID)
	}
	if containsString(r.Permissions, key) {
		return nil
	}
	r.Permissions = append(r.Permissions, key)
	return nil
}

func (s *MemoryRoleStore) RevokePermission(ctx context.Context, roleID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[roleID]
	if !ok {
		return fmt.Errorf("%w: %s", accesskit.ErrRoleNotFound, roleID)
	}
	if !containsString(r.Permissions, key) {
		return fmt.Errorf("%w: role %s does not hold %s", accesskit.ErrNotAssigned, roleID, key)
	}
	r.Permissions = removeString(r.Permissions, key)
	return nil
}

// MemoryMembershipStore implements principal->role assignment in-memory
type MemoryMembershipStore struct {
	mu      sync.RWMutex
	members map[string][]string
}

func NewMemoryMembershipStore() *MemoryMembershipStore {
	return &MemoryMembershipStore{members: make(map[string][]string)}
}

func (s *MemoryMembershipStore) AssignRole(ctx context.Context, principalID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if containsString(s.members[principalID], roleID) {
		return nil
	}
	s.members[principalID] = append(s.members[principalID], roleID)
	return nil
}

func (s *MemoryMembershipStore) RevokeRole(ctx context.Context, principalID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !containsString(s.members[principalID], roleID) {
		return fmt.Errorf("%w: principal %s does not hold role %s", accesskit.ErrNotAssigned, principalID, roleID)
	}
	s.members[principalID] = removeString(s.members[principalID], roleID)
	return nil
}

func (s *MemoryMembershipStore) ListRoles(ctx context.Context, principalID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.members[principalID]...), nil
}

// MemoryOwnershipStore answers ownership lookups from an in-memory table of
// (resource type, resource id) -> owner principal.
type MemoryOwnershipStore struct {
	mu     sync.RWMutex
	owners map[string]string // "type:id" -> principal
}

func NewMemoryOwnershipStore() *MemoryOwnershipStore {
	return &MemoryOwnershipStore{owners: make(map[string]string)}
}

func (s *MemoryOwnershipStore) SetOwner(resourceType, resourceID, principalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[resourceType+":"+resourceID] = principalID
}

func (s *MemoryOwnershipStore) Owns(ctx context.Context, principalID, resourceType, resourceID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.owners[resourceType+":"+resourceID]
	return ok && owner == principalID, nil
}
