// Package runlock serializes handling of one task across service replicas.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/noticerun/internal/config"
)

// ErrBusy is returned when another worker holds the lock.
var ErrBusy = errors.New("task is already being handled")

// Release gives a lock back.
type Release func(ctx context.Context) error

// Locker acquires named locks.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// Key names the lock of one task.
func Key(accountID, taskID int64) string {
	return fmt.Sprintf("noticerun:lock:%d:%d", accountID, taskID)
}

// Nop hands out locks that never conflict.
type Nop struct{}

// Acquire implements Locker.
func (Nop) Acquire(context.Context, string) (Release, error) {
	return func(context.Context) error { return nil }, nil
}

// RedisLocker holds locks in redis and refreshes them while held.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewRedisLocker creates a locker on an existing redis client.
func NewRedisLocker(rdb redislock.RedisClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl}
}

// Connect returns a RedisLocker for cfg, or Nop when no address is set.
func Connect(ctx context.Context, cfg config.RedisConfig) (Locker, func() error, error) {
	if cfg.Addr == "" {
		return Nop{}, func() error { return nil }, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisLocker(rdb, cfg.LockTTL()), rdb.Close, nil
}

// Acquire implements Locker. The lock is refreshed every half TTL until
// released, so long runs keep it.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (Release, error) {
	lock, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrBusy
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	done := make(chan struct{})
	go func() {
		t := time.NewTicker(l.ttl / 2)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := lock.Refresh(context.Background(), l.ttl, nil); err != nil {
					log.Warn().Err(err).Str("key", key).Msg("Lock refresh failed")
					return
				}
			}
		}
	}()

	return func(ctx context.Context) error {
		close(done)
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return err
		}
		return nil
	}, nil
}
