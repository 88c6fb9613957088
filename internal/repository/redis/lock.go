package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/Rrens/codemuse/internal/lock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockPrefix = "lock:"

// releaseScript deletes the key only if it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker implements lock.Locker with SET NX PX leases, so a chat is
// exclusive across every server instance sharing the Redis.
type Locker struct {
	client *Client
}

// NewLocker creates a Redis-backed locker
func NewLocker(client *Client) *Locker {
	return &Locker{client: client}
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (lock.Lease, error) {
	token := uuid.NewString()
	fullKey := lockPrefix + key

	ok, err := l.client.rdb.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, lock.ErrHeld
	}

	return &lease{client: l.client, key: key, token: token}, nil
}

type lease struct {
	client *Client
	key    string
	token  string
}

func (l *lease) Key() string   { return l.key }
func (l *lease) Token() string { return l.token }

func (l *lease) Release(ctx context.Context) error {
	err := releaseScript.Run(ctx, l.client.rdb, []string{lockPrefix + l.key}, l.token).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
