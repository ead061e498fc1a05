package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CloseLockKey builds the redis key serializing close/reopen attempts
// for one company.
func CloseLockKey(companyID int64) string {
	return fmt.Sprintf("close:company:%d:lock", companyID)
}

// ErrLockHeld indicates another close/reopen is already in progress.
var ErrLockHeld = errors.New("shared: lock already held")

// Locker is a minimal redis mutex. It covers the validation + write
// window of a period close; it is not a general distributed lock.
type Locker struct {
	client *redis.Client
}

// NewLocker constructs a Locker over the shared redis client.
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Acquire takes the lock or fails fast with ErrLockHeld. The returned
// release func only deletes the key if we still own it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	release := func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, nil
}
