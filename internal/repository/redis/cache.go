package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/codemuse/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const principalCachePrefix = "principal:"

// PrincipalCache caches resolved users so authenticated requests skip the
// user lookup. Entries never carry the password hash.
type PrincipalCache struct {
	client *Client
	ttl    time.Duration
}

// NewPrincipalCache creates a new principal cache
func NewPrincipalCache(client *Client, ttl time.Duration) *PrincipalCache {
	return &PrincipalCache{client: client, ttl: ttl}
}

// Get retrieves a cached user; a miss returns nil, nil
func (c *PrincipalCache) Get(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	data, err := c.client.rdb.Get(ctx, principalCachePrefix+userID.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read principal cache: %w", err)
	}

	var user domain.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal principal: %w", err)
	}

	return &user, nil
}

// Set caches a user
func (c *PrincipalCache) Set(ctx context.Context, user *domain.User) error {
	data, err := json.Marshal(user.Public())
	if err != nil {
		return fmt.Errorf("failed to marshal principal: %w", err)
	}

	return c.client.rdb.Set(ctx, principalCachePrefix+user.ID.String(), data, c.ttl).Err()
}

// Invalidate removes a cached user
func (c *PrincipalCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	return c.client.rdb.Del(ctx, principalCachePrefix+userID.String()).Err()
}
