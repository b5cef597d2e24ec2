package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when the lock could not be taken within the wait budget.
var ErrLockTimeout = errors.New("redis lock wait exceeded")

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

const lockPollInterval = 20 * time.Millisecond

// UserLock implements ports.UserLocker with SET NX PX.
// The TTL bounds how long a crashed holder can block a user.
type UserLock struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
}

// NewUserLock creates a Redis-backed per-user lock.
func NewUserLock(client *goredis.Client, ttl, wait time.Duration) *UserLock {
	return &UserLock{
		client: client,
		prefix: prefixLock,
		ttl:    ttl,
		wait:   wait,
	}
}

// Lock polls until the key is acquired, the wait budget is spent, or ctx is done.
func (l *UserLock) Lock(ctx context.Context, userID string) (func(), error) {
	key := l.prefix + userID
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.tryAcquire(waitCtx, key, token)
		if err != nil {
			return nil, err
		}
		if ok {
			return l.releaser(key, token), nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrLockTimeout
		case <-ticker.C:
		}
	}
}

func (l *UserLock) tryAcquire(ctx context.Context, key, token string) (bool, error) {
	result, err := l.client.SetArgs(ctx, key, token, goredis.SetArgs{
		Mode: "NX",
		TTL:  l.ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		if ctx.Err() != nil {
			return false, nil
		}
		return false, fmt.Errorf("redis lock acquire: %w", err)
	}
	return result == "OK", nil
}

func (l *UserLock) releaser(key, token string) func() {
	return func() {
		// Detached so a cancelled request still frees the key before TTL.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
}
