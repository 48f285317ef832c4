package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/accesskit"
)

// SQLRoleStore persists roles in SQL (squealx)
type SQLRoleStore struct {
	db *squealx.DB
}

func NewSQLRoleStore(db *squealx.DB) *SQLRoleStore {
	return &SQLRoleStore{db: db}
}

func (s *SQLRoleStore) CreateRole(ctx context.Context, r *accesskit.Role) error {
	perms, _ := json.Marshal(r.Permissions)
	q := `INSERT INTO roles(id, name, description, permissions_json, created_at) VALUES(:id, :name, :description, :permissions_json, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":               r.ID,
		"name":             r.Name,
		"description":      r.Description,
		"permissions_json": string(perms),
		"created_at":       time.Now(),
	})
	return err
}

func (s *SQLRoleStore) GetRole(ctx context.Context, id string) (*accesskit.Role, error) {
	q := `SELECT id, name, description, permissions_json, created_at FROM roles WHERE id = :id`
	rows, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, fmt.Errorf("%w: %s", accesskit.ErrRoleNotFound, id)
	}
	var idv, name, description, permsJSON string
	var createdRaw interface{}
	if err := rows.Scan(&idv, &name, &description, &permsJSON, &createdRaw); err != nil {
		return nil, err
	}
	role := &accesskit.Role{ID: idv, Name: name, Description: description, CreatedAt: scanTime(createdRaw)}
	var perms []string
	_ = json.Unmarshal([]byte(permsJSON), &perms)
	role.Permissions = perms
	return role, nil
}

func (s *SQLRoleStore) ListRoles(ctx context.Context) ([]*accesskit.Role, error) {
	q := `SELECT id FROM roles ORDER BY created_at`
	rows, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*accesskit.Role, 0)
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	for _, id := range ids {
		role, err := s.GetRole(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, nil
}

func (s *SQLRoleStore) GrantPermission(ctx context.Context, roleID, key string) error {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if containsString(role.Permissions, key) {
		return nil
	}
	role.Permissions = append(role.Permissions, key)
	return s.updatePermissions(ctx, roleID, role.Permissions)
}

func (s *SQLRoleStore) RevokePermission(ctx context.Context, roleID, key string) error {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if !containsString(role.Permissions, key) {
		return fmt.Errorf("%w: role %s does not hold %s", accesskit.ErrNotAssigned, roleID, key)
	}
	return s.updatePermissions(ctx, roleID, removeString(role.Permissions, key))
}

func (s *SQLRoleStore) updatePermissions(ctx context.Context, roleID string, perms []string) error {
	data, _ := json.Marshal(perms)
	q := `UPDATE roles SET permissions_json = :permissions_json WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": roleID, "permissions_json": string(data)})
	return err
}
