package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLock(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *Lock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewLock(client, "test:lock", ttl)
}

func TestLock_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	mr, lock := setupLock(t, time.Minute)

	lease, err := lock.TryAcquire(ctx)
	require.NoError(t, err)
	got, err := mr.Get("test:lock")
	require.NoError(t, err)
	assert.Equal(t, lease.Token(), got)
	assert.Equal(t, time.Minute, mr.TTL("test:lock"))

	_, err = lock.TryAcquire(ctx)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists("test:lock"))

	assert.ErrorIs(t, lease.Release(ctx), ErrLockNotHeld)

	again, err := lock.TryAcquire(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, lease.Token(), again.Token())
}

func TestLock_ReleaseDoesNotStealForeignLock(t *testing.T) {
	ctx := context.Background()
	mr, lock := setupLock(t, time.Minute)

	lease, err := lock.TryAcquire(ctx)
	require.NoError(t, err)

	// The lease expires and another replica takes over.
	mr.FastForward(2 * time.Minute)
	other, err := lock.TryAcquire(ctx)
	require.NoError(t, err)

	assert.ErrorIs(t, lease.Release(ctx), ErrLockNotHeld)
	assert.ErrorIs(t, lease.Extend(ctx), ErrLockNotHeld)

	got, _ := mr.Get("test:lock")
	assert.Equal(t, other.Token(), got)
}

func TestLock_Extend(t *testing.T) {
	ctx := context.Background()
	mr, lock := setupLock(t, time.Minute)

	lease, err := lock.TryAcquire(ctx)
	require.NoError(t, err)

	mr.FastForward(50 * time.Second)
	require.NoError(t, lease.Extend(ctx))
	assert.Equal(t, time.Minute, mr.TTL("test:lock"))
}

func TestLock_KeepAliveStopsOnCancel(t *testing.T) {
	_, lock := setupLock(t, 300*time.Millisecond)
	lease, err := lock.TryAcquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := lease.KeepAlive(ctx)
	time.Sleep(250 * time.Millisecond)
	cancel()

	select {
	case err, ok := <-errc:
		assert.False(t, ok, "unexpected keepalive error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("keepalive did not stop")
	}
}

func TestLock_KeepAliveReportsLostLease(t *testing.T) {
	mr, lock := setupLock(t, 150*time.Millisecond)
	lease, err := lock.TryAcquire(context.Background())
	require.NoError(t, err)
	mr.Del("test:lock")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	select {
	case err := <-lease.KeepAlive(ctx):
		assert.ErrorIs(t, err, ErrLockNotHeld)
	case <-time.After(time.Second):
		t.Fatal("keepalive did not report the lost lease")
	}
}

func TestNewLock_Defaults(t *testing.T) {
	l := NewLock(nil, "", 0)
	assert.Equal(t, DefaultLockKey, l.Key())
	assert.Equal(t, DefaultLockTTL, l.ttl)
}
