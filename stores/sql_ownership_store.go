package stores

import (
	"context"

	"github.com/oarkflow/squealx"
)

// SQLOwnershipStore answers ownership lookups from the resource_owners
// table. This is the I/O behind ownership conditions, so one Owns call is
// one query.
type SQLOwnershipStore struct {
	db *squealx.DB
}

func NewSQLOwnershipStore(db *squealx.DB) *SQLOwnershipStore {
	return &SQLOwnershipStore{db: db}
}

func (s *SQLOwnershipStore) SetOwner(ctx context.Context, resourceType, resourceID, principalID string) error {
	q := `INSERT INTO resource_owners(resource_type, resource_id, principal_id) VALUES(:resource_type, :resource_id, :principal_id)
	      ON CONFLICT(resource_type, resource_id) DO UPDATE SET principal_id = :principal_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"resource_type": resourceType,
		"resource_id":   resourceID,
		"principal_id":  principalID,
	})
	return err
}

func (s *SQLOwnershipStore) Owns(ctx context.Context, principalID, resourceType, resourceID string) (bool, error) {
	q := `SELECT COUNT(1) FROM resource_owners WHERE resource_type = :resource_type AND resource_id = :resource_id AND principal_id = :principal_id`
	rows, err := s.db.NamedQueryContext(ctx, q, map[string]any{
		"resource_type": resourceType,
		"resource_id":   resourceID,
		"principal_id":  principalID,
	})
	if err != nil {
		return false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return false, nil
	}
	var n int
	if err := rows.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
