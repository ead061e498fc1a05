package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client), mr
}

func TestLockerAcquireAndRelease(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()
	key := CloseLockKey(7)

	release, err := locker.Acquire(ctx, key, 30*time.Second)
	require.NoError(t, err)
	require.True(t, mr.Exists(key))

	_, err = locker.Acquire(ctx, key, 30*time.Second)
	require.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, release(ctx))
	require.False(t, mr.Exists(key))

	release, err = locker.Acquire(ctx, key, 30*time.Second)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func TestLockerReleaseOnlyDeletesOwnToken(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()
	key := CloseLockKey(7)

	release, err := locker.Acquire(ctx, key, time.Second)
	require.NoError(t, err)

	// Lock expires and another holder takes it before we release.
	mr.FastForward(2 * time.Second)
	_, err = locker.Acquire(ctx, key, 30*time.Second)
	require.NoError(t, err)

	require.NoError(t, release(ctx))
	require.True(t, mr.Exists(key), "stale release must not remove the new holder's lock")
}

func TestLockerKeysArePerCompany(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	_, err := locker.Acquire(ctx, CloseLockKey(7), 30*time.Second)
	require.NoError(t, err)

	release, err := locker.Acquire(ctx, CloseLockKey(8), 30*time.Second)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}
