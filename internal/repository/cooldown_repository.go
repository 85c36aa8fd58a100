package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/eduplan-api/pkg/cache"
)

// CooldownRepository claims alert cooldown slots in Redis with SET NX EX.
type CooldownRepository struct {
	client *redis.Client
}

// NewCooldownRepository constructs a cooldown repository.
func NewCooldownRepository(client *redis.Client) *CooldownRepository {
	return &CooldownRepository{client: client}
}

// Claim returns true when no slot for (userID, template) exists, creating one that expires after ttl.
func (r *CooldownRepository) Claim(ctx context.Context, userID, template string, ttl time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client not configured")
	}
	key := cache.Key("alert-cooldown", userID, template)
	ok, err := r.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

// Release deletes the slot for (userID, template).
func (r *CooldownRepository) Release(ctx context.Context, userID, template string) error {
	if r.client == nil {
		return fmt.Errorf("redis client not configured")
	}
	key := cache.Key("alert-cooldown", userID, template)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
