// Package lock provides exclusive, expiring leases keyed by string.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrHeld is returned by Acquire when another holder owns the key
var ErrHeld = errors.New("lock is held")

// Locker grants exclusive leases. A lease that is never released expires
// after its ttl.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock. Release only frees the key if this lease still owns it.
type Lease interface {
	Key() string
	Token() string
	Release(ctx context.Context) error
}

type entry struct {
	token   string
	expires time.Time
}

// Memory is a single-process Locker
type Memory struct {
	mu   sync.Mutex
	held map[string]entry
	now  func() time.Time
}

// NewMemory creates an in-process locker
func NewMemory() *Memory {
	return &Memory{
		held: make(map[string]entry),
		now:  time.Now,
	}
}

func (m *Memory) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.held[key]; ok && now.Before(e.expires) {
		return nil, ErrHeld
	}

	token := uuid.NewString()
	m.held[key] = entry{token: token, expires: now.Add(ttl)}
	return &memoryLease{locker: m, key: key, token: token}, nil
}

func (m *Memory) release(key, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.held[key]; ok && e.token == token {
		delete(m.held, key)
	}
}

type memoryLease struct {
	locker *Memory
	key    string
	token  string
}

func (l *memoryLease) Key() string   { return l.key }
func (l *memoryLease) Token() string { return l.token }

func (l *memoryLease) Release(ctx context.Context) error {
	l.locker.release(l.key, l.token)
	return nil
}
