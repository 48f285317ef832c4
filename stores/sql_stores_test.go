package stores

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	"github.com/oarkflow/accesskit"
)

func newTestDB(t *testing.T) *squealx.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	db := squealx.NewDb(sqlDB, "sqlite", "testdb")
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestSQLRoleStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSQLRoleStore(newTestDB(t))

	role := &accesskit.Role{ID: "viewer", Name: "Viewer", Description: "read only", Permissions: []string{"workers.view"}}
	if err := store.CreateRole(ctx, role); err != nil {
		t.Fatalf("create role: %v", err)
	}

	got, err := store.GetRole(ctx, "viewer")
	if err != nil {
		t.Fatalf("get role: %v", err)
	}
	if got.Name != "Viewer" || len(got.Permissions) != 1 || got.Permissions[0] != "workers.view" {
		t.Fatalf("unexpected role %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to round-trip")
	}

	if _, err := store.GetRole(ctx, "ghost"); !errors.Is(err, accesskit.ErrRoleNotFound) {
		t.Fatalf("expected role-not-found, got %v", err)
	}
}

func TestSQLRoleStoreGrantRevoke(t *testing.T) {
	ctx := context.Background()
	store := NewSQLRoleStore(newTestDB(t))
	if err := store.CreateRole(ctx, &accesskit.Role{ID: "viewer", Name: "Viewer"}); err != nil {
		t.Fatalf("create role: %v", err)
	}

	if err := store.GrantPermission(ctx, "viewer", "workers.view"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	// granting an already-held permission is a no-op
	if err := store.GrantPermission(ctx, "viewer", "workers.view"); err != nil {
		t.Fatalf("regrant: %v", err)
	}
	got, err := store.GetRole(ctx, "viewer")
	if err != nil {
		t.Fatalf("get role: %v", err)
	}
	if len(got.Permissions) != 1 {
		t.Fatalf("expected one permission after idempotent grant, got %v", got.Permissions)
	}

	if err := store.RevokePermission(ctx, "viewer", "workers.view"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := store.RevokePermission(ctx, "viewer", "workers.view"); !errors.Is(err, accesskit.ErrNotAssigned) {
		t.Fatalf("expected not-assigned on second revoke, got %v", err)
	}
	if err := store.GrantPermission(ctx, "ghost", "workers.view"); !errors.Is(err, accesskit.ErrRoleNotFound) {
		t.Fatalf("expected role-not-found on grant to unknown role, got %v", err)
	}
}

func TestSQLMembershipStore(t *testing.T) {
	ctx := context.Background()
	store := NewSQLMembershipStore(newTestDB(t))

	if err := store.AssignRole(ctx, "alice", "viewer"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	// idempotent re-assign
	if err := store.AssignRole(ctx, "alice", "viewer"); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if err := store.AssignRole(ctx, "alice", "manager"); err != nil {
		t.Fatalf("assign second role: %v", err)
	}

	roles, err := store.ListRoles(ctx, "alice")
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("expected two roles, got %v", roles)
	}

	if err := store.RevokeRole(ctx, "alice", "viewer"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := store.RevokeRole(ctx, "alice", "viewer"); !errors.Is(err, accesskit.ErrNotAssigned) {
		t.Fatalf("expected not-assigned on second revoke, got %v", err)
	}
	if err := store.RevokeRole(ctx, "nobody", "viewer"); !errors.Is(err, accesskit.ErrNotAssigned) {
		t.Fatalf("expected not-assigned for unknown principal, got %v", err)
	}
}

func TestSQLOwnershipStore(t *testing.T) {
	ctx := context.Background()
	store := NewSQLOwnershipStore(newTestDB(t))

	if err := store.SetOwner(ctx, "employer", "42", "carol"); err != nil {
		t.Fatalf("set owner: %v", err)
	}
	owns, err := store.Owns(ctx, "carol", "employer", "42")
	if err != nil {
		t.Fatalf("owns: %v", err)
	}
	if !owns {
		t.Fatalf("expected carol to own employer 42")
	}
	owns, err = store.Owns(ctx, "alice", "employer", "42")
	if err != nil {
		t.Fatalf("owns: %v", err)
	}
	if owns {
		t.Fatalf("expected alice not to own employer 42")
	}

	// upsert transfers ownership
	if err := store.SetOwner(ctx, "employer", "42", "dave"); err != nil {
		t.Fatalf("transfer owner: %v", err)
	}
	owns, err = store.Owns(ctx, "carol", "employer", "42")
	if err != nil {
		t.Fatalf("owns: %v", err)
	}
	if owns {
		t.Fatalf("expected ownership transferred away from carol")
	}
}

func TestStorePermissionSourceUnionsSQLRoles(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	roles := NewSQLRoleStore(db)
	memberships := NewSQLMembershipStore(db)

	for _, r := range []*accesskit.Role{
		{ID: "viewer", Name: "Viewer", Permissions: []string{"workers.view", "benefits.view"}},
		{ID: "payments", Name: "Payments", Permissions: []string{"ledger.view", "workers.view"}},
	} {
		if err := roles.CreateRole(ctx, r); err != nil {
			t.Fatalf("create role: %v", err)
		}
	}
	if err := memberships.AssignRole(ctx, "alice", "viewer"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := memberships.AssignRole(ctx, "alice", "payments"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	source := accesskit.NewStorePermissionSource(roles, memberships)
	perms, err := source.EffectivePermissions(ctx, "alice")
	if err != nil {
		t.Fatalf("effective permissions: %v", err)
	}
	for _, key := range []string{"workers.view", "benefits.view", "ledger.view"} {
		if !perms.Has(key) {
			t.Fatalf("expected union to contain %s, got %v", key, perms.Keys())
		}
	}
	if perms.Has("admin") {
		t.Fatalf("admin must not appear without an explicit grant")
	}
}
