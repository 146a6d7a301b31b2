// Package coordination provides the Redis lock that keeps sync runs from
// overlapping across service replicas.
package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultLockKey is the key guarding sync runs.
	DefaultLockKey = "aggregator:sync:lock"
	// DefaultLockTTL bounds how long a crashed holder can block other replicas.
	DefaultLockTTL = 30 * time.Minute
)

var (
	// ErrLockNotAcquired is returned when another holder owns the lock.
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when releasing or extending a lease that expired
	// or was taken over.
	ErrLockNotHeld = errors.New("lock not held")
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Lock is a non-blocking mutual-exclusion lock stored under a single Redis key.
type Lock struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewLock returns a Lock on key. Zero values select the defaults.
func NewLock(client redis.UniversalClient, key string, ttl time.Duration) *Lock {
	if key == "" {
		key = DefaultLockKey
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &Lock{client: client, key: key, ttl: ttl}
}

// Key returns the lock key.
func (l *Lock) Key() string { return l.key }

// TryAcquire takes the lock with SET NX PX and a fresh token, or returns
// ErrLockNotAcquired if someone else holds it.
func (l *Lock) TryAcquire(ctx context.Context) (*Lease, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &Lease{lock: l, token: token}, nil
}

// Lease is one successful acquisition of a Lock.
type Lease struct {
	lock  *Lock
	token string
}

// Token returns the value stored under the lock key while the lease is held.
func (s *Lease) Token() string { return s.token }

// Release deletes the key if it still holds this lease's token.
func (s *Lease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, s.lock.client, []string{s.lock.key}, s.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend resets the TTL if the lease is still held.
func (s *Lease) Extend(ctx context.Context) error {
	n, err := extendScript.Run(ctx, s.lock.client, []string{s.lock.key}, s.token, s.lock.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// KeepAlive extends the lease every ttl/3 until ctx is done or an extension
// fails. The returned channel receives the terminal error, if any, and is
// closed when the loop exits.
func (s *Lease) KeepAlive(ctx context.Context) <-chan error {
	errc := make(chan error, 1)
	interval := s.lock.ttl / 3
	go func() {
		defer close(errc)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Extend(ctx); err != nil {
					if ctx.Err() == nil {
						errc <- err
					}
					return
				}
			}
		}
	}()
	return errc
}
