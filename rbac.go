package accesskit

import (
	"context"
	"time"
)

// Role is a named bundle of permission keys assignable to principals. Roles
// and their permission assignments are mutated only through the admin API;
// the engine reads them as snapshots.
type Role struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Permissions []string  `json:"permissions" yaml:"permissions"`
	CreatedAt   time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// RoleStore manages role persistence and role<->permission assignment.
type RoleStore interface {
	CreateRole(ctx context.Context, r *Role) error
	GetRole(ctx context.Context, id string) (*Role, error)
	ListRoles(ctx context.Context) ([]*Role, error)
	// GrantPermission is idempotent: granting an already-held key succeeds.
	GrantPermission(ctx context.Context, roleID, key string) error
	// RevokePermission returns ErrNotAssigned when the role does not hold key.
	RevokePermission(ctx context.Context, roleID, key string) error
}

// MembershipStore manages principal<->role assignment.
type MembershipStore interface {
	// AssignRole is idempotent: assigning an already-held role succeeds.
	AssignRole(ctx context.Context, principalID, roleID string) error
	// RevokeRole returns ErrNotAssigned when the principal does not hold roleID.
	RevokeRole(ctx context.Context, principalID, roleID string) error
	ListRoles(ctx context.Context, principalID string) ([]string, error)
}

// PermissionSource resolves a principal to its effective permission set.
type PermissionSource interface {
	EffectivePermissions(ctx context.Context, principalID string) (PermissionSet, error)
}

// PermissionSourceFunc adapts a function to PermissionSource.
type PermissionSourceFunc func(ctx context.Context, principalID string) (PermissionSet, error)

func (f PermissionSourceFunc) EffectivePermissions(ctx context.Context, principalID string) (PermissionSet, error) {
	return f(ctx, principalID)
}

// StorePermissionSource computes the union of permission keys across all roles
// currently assigned to the principal. It does not cache; freshness within the
// resolution cache TTL is the ResolutionCache's concern.
type StorePermissionSource struct {
	Roles       RoleStore
	Memberships MembershipStore
}

func NewStorePermissionSource(roles RoleStore, memberships MembershipStore) *StorePermissionSource {
	return &StorePermissionSource{Roles: roles, Memberships: memberships}
}

func (s *StorePermissionSource) EffectivePermissions(ctx context.Context, principalID string) (PermissionSet, error) {
	roleIDs, err := s.Memberships.ListRoles(ctx, principalID)
	if err != nil {
		return nil, err
	}
	set := make(PermissionSet)
	for _, id := range roleIDs {
		role, err := s.Roles.GetRole(ctx, id)
		if err != nil {
			return nil, err
		}
		set.Add(role.Permissions...)
	}
	return set, nil
}
