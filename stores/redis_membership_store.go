package stores

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/accesskit"
)

// RedisMembershipStore stores principal->roles in Redis sets
// (key: principalroles:{principalID})
type RedisMembershipStore struct {
	client *redis.Client
	keyFmt string
}

func NewRedisMembershipStore(client *redis.Client) *RedisMembershipStore {
	return &RedisMembershipStore{client: client, keyFmt: "principalroles:%s"}
}

func (r *RedisMembershipStore) key(principalID string) string {
	return fmt.Sprintf(r.keyFmt, principalID)
}

func (r *RedisMembershipStore) AssignRole(ctx context.Context, principalID, roleID string) error {
	// SAdd on a held member is a no-op, which gives the idempotent contract
	return r.client.SAdd(ctx, r.key(principalID), roleID).Err()
}

func (r *RedisMembershipStore) RevokeRole(ctx context.Context, principalID, roleID string) error {
	n, err := r.client.SRem(ctx, r.key(principalID), roleID).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: principal %s does not hold role %s", accesskit.ErrNotAssigned, principalID, roleID)
	}
	return nil
}

func (r *RedisMembershipStore) ListRoles(ctx context.Context, principalID string) ([]string, error) {
	return r.client.SMembers(ctx, r.key(principalID)).Result()
}
