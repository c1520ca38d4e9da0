package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "revoked:"

type redisRevocationRepo struct {
	client *redis.Client
}

// NewRedisRevocationRepo creates a Redis-backed revocation list. Entries
// carry the remaining token lifetime as their TTL, so Redis expires them
// once the token itself would be rejected as expired.
func NewRedisRevocationRepo(client *redis.Client) RevocationRepo {
	return &redisRevocationRepo{client: client}
}

func (r *redisRevocationRepo) Add(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		// Token already past expiry; nothing to blacklist.
		return nil
	}
	if err := r.client.Set(ctx, revokedKeyPrefix+key, 1, ttl).Err(); err != nil {
		return fmt.Errorf("add revoked token: %w", err)
	}
	return nil
}

func (r *redisRevocationRepo) Contains(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKeyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}
