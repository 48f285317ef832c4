package stores

import (
	"context"
	"fmt"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/accesskit"
)

// SQLMembershipStore implements accesskit.MembershipStore backed by a SQL DB
// (squealx)
type SQLMembershipStore struct {
	db *squealx.DB
}

func NewSQLMembershipStore(db *squealx.DB) *SQLMembershipStore {
	return &SQLMembershipStore{db: db}
}

func (s *SQLMembershipStore) AssignRole(ctx context.Context, principalID, roleID string) error {
	q := `INSERT OR IGNORE INTO principal_roles(principal_id, role_id) VALUES(:principal_id, :role_id)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"principal_id": principalID, "role_id": roleID})
	return err
}

func (s *SQLMembershipStore) RevokeRole(ctx context.Context, principalID, roleID string) error {
	q := `DELETE FROM principal_roles WHERE principal_id = :principal_id AND role_id = :role_id`
	res, err := s.db.NamedExecContext(ctx, q, map[string]any{"principal_id": principalID, "role_id": roleID})
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: principal %s does not hold role %s", accesskit.ErrNotAssigned, principalID, roleID)
	}
	return nil
}

func (s *SQLMembershipStore) ListRoles(ctx context.Context, principalID string) ([]string, error) {
	out := make([]string, 0)
	q := `SELECT role_id FROM principal_roles WHERE principal_id = :principal_id`
	rows, err := s.db.NamedQueryContext(ctx, q, map[string]any{"principal_id": principalID})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, nil
}
