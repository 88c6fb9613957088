package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Rrens/codemuse/internal/lock"
	redisrepo "github.com/Rrens/codemuse/internal/repository/redis"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backend struct {
	locker lock.Locker
	// elapse makes d pass for lease expiry purposes
	elapse func(d time.Duration)
}

func backends(t *testing.T) map[string]func(t *testing.T) backend {
	return map[string]func(t *testing.T) backend{
		"memory": func(t *testing.T) backend {
			return backend{
				locker: lock.NewMemory(),
				elapse: func(d time.Duration) { time.Sleep(d) },
			}
		},
		"redis": func(t *testing.T) backend {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { rdb.Close() })
			return backend{
				locker: redisrepo.NewLocker(redisrepo.Wrap(rdb)),
				elapse: mr.FastForward,
			}
		},
	}
}

func TestLocker_Contract(t *testing.T) {
	for name, newBackend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("exclusive until released", func(t *testing.T) {
				b := newBackend(t)
				ctx := context.Background()

				lease, err := b.locker.Acquire(ctx, "chat:1", time.Minute)
				require.NoError(t, err)
				assert.Equal(t, "chat:1", lease.Key())
				assert.NotEmpty(t, lease.Token())

				_, err = b.locker.Acquire(ctx, "chat:1", time.Minute)
				assert.ErrorIs(t, err, lock.ErrHeld)

				// Other keys never contend
				other, err := b.locker.Acquire(ctx, "chat:2", time.Minute)
				require.NoError(t, err)
				require.NoError(t, other.Release(ctx))

				require.NoError(t, lease.Release(ctx))

				again, err := b.locker.Acquire(ctx, "chat:1", time.Minute)
				require.NoError(t, err)
				require.NoError(t, again.Release(ctx))
			})

			t.Run("expires after ttl", func(t *testing.T) {
				b := newBackend(t)
				ctx := context.Background()

				_, err := b.locker.Acquire(ctx, "chat:1", 50*time.Millisecond)
				require.NoError(t, err)

				b.elapse(100 * time.Millisecond)

				lease, err := b.locker.Acquire(ctx, "chat:1", time.Minute)
				require.NoError(t, err)
				require.NoError(t, lease.Release(ctx))
			})

			t.Run("stale release keeps new holder", func(t *testing.T) {
				b := newBackend(t)
				ctx := context.Background()

				stale, err := b.locker.Acquire(ctx, "chat:1", 50*time.Millisecond)
				require.NoError(t, err)

				b.elapse(100 * time.Millisecond)

				current, err := b.locker.Acquire(ctx, "chat:1", time.Minute)
				require.NoError(t, err)

				require.NoError(t, stale.Release(ctx))

				_, err = b.locker.Acquire(ctx, "chat:1", time.Minute)
				assert.ErrorIs(t, err, lock.ErrHeld)

				require.NoError(t, current.Release(ctx))
			})

			t.Run("one winner under contention", func(t *testing.T) {
				b := newBackend(t)
				ctx := context.Background()

				var wins atomic.Int32
				var wg sync.WaitGroup
				for i := 0; i < 16; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						if _, err := b.locker.Acquire(ctx, "chat:race", time.Minute); err == nil {
							wins.Add(1)
						}
					}()
				}
				wg.Wait()

				assert.Equal(t, int32(1), wins.Load())
			})
		})
	}
}
