package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"ms-reservations/internal/logger"
)

// ErrResourceBusy means the lock is held elsewhere. Callers decide
// their own retry policy; the lock never retries internally.
var ErrResourceBusy = errors.New("resource busy, retry later")

// Release compares the stored token before deleting so a holder whose
// TTL already expired cannot release somebody else's lock.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

type Lock struct {
	Client *redis.Client
	Log    *logger.Logger
}

func NewLock(client *redis.Client, log *logger.Logger) *Lock {
	return &Lock{Client: client, Log: log}
}

func lockKey(key string) string {
	return "lock:" + key
}

// Acquire sets the lock key only if absent and returns the holder
// token. The TTL bounds how long a crashed holder can block the
// resource.
func (l *Lock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.Client.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("lock acquire %s: %w", key, err)
	}
	if !ok {
		if l.Log != nil {
			l.Log.LogLock("BUSY", key, "lock held by another process")
		}
		return "", ErrResourceBusy
	}
	if l.Log != nil {
		l.Log.LogLock("ACQUIRE", key, fmt.Sprintf("acquired with ttl %s", ttl))
	}
	return token, nil
}

// Release deletes the lock only if the caller still owns it. Returns
// false when the lock expired or was taken over by another holder.
func (l *Lock) Release(ctx context.Context, key, token string) (bool, error) {
	res, err := l.Client.Eval(ctx, releaseScript, []string{lockKey(key)}, token).Result()
	if err != nil {
		return false, fmt.Errorf("lock release %s: %w", key, err)
	}
	deleted, ok := res.(int64)
	if !ok || deleted == 0 {
		if l.Log != nil {
			l.Log.LogLock("STALE", key, "release skipped, token no longer owns lock")
		}
		return false, nil
	}
	if l.Log != nil {
		l.Log.LogLock("RELEASE", key, "released")
	}
	return true, nil
}
