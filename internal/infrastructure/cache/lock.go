package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"motoledger/pkg/logger"
)

// Locker serializes background jobs across worker instances.
type Locker struct {
	client *redislock.Client
	prefix string
}

// NewLocker creates a locker on client.
func NewLocker(client *redis.Client, keyPrefix string) *Locker {
	return &Locker{
		client: redislock.New(client),
		prefix: prefixOr(keyPrefix, "moto:") + "lock:",
	}
}

// RunExclusive runs fn while holding the named lock and refreshes the lock
// until fn returns. It returns false without running fn when another
// instance holds the lock.
func (l *Locker) RunExclusive(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error) {
	lock, err := l.client.Obtain(ctx, l.prefix+name, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("obtain lock %s: %w", name, err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logger.Warn(ctx, "release lock failed", "lock", name, "error", err)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := lock.Refresh(runCtx, ttl, nil); err != nil {
					logger.Warn(runCtx, "lock lost", "lock", name, "error", err)
					cancel()
					return
				}
			}
		}
	}()

	return true, fn(runCtx)
}
