package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	goredis "github.com/redis/go-redis/v9"
)

var ErrLockNotObtained = errors.New("lock not obtained")

// Locker serializes work on a key across processes.
type Locker struct {
	locker  *redislock.Client
	ttl     time.Duration
	waitFor time.Duration
}

func NewLocker(client *goredis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Locker{
		locker:  redislock.New(client),
		ttl:     ttl,
		waitFor: 5 * time.Second,
	}
}

// WithLock runs fn while holding key, waiting briefly for a concurrent holder.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	obtainCtx, cancel := context.WithTimeout(ctx, l.waitFor)
	defer cancel()

	lock, err := l.locker.Obtain(obtainCtx, "lock:"+key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), int(l.waitFor/(100*time.Millisecond))),
	})
	if errors.Is(err, redislock.ErrNotObtained) || (errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil) {
		return fmt.Errorf("%w: %s", ErrLockNotObtained, key)
	}
	if err != nil {
		return fmt.Errorf("obtain lock %s: %w", key, err)
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()

	return fn(ctx)
}
