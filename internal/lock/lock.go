/*
 * @module internal/lock
 * @description Redis distributed lock guarding scheduled worker jobs
 *   (popularity aggregation, CF training) against duplicate execution
 *   across horizontally scaled worker replicas. Adapted from the source's
 *   sync-task-scheduler lock down to the worker domain.
 * @architecture Utility layer - cron duplicate-execution guard
 * @dependencies github.com/go-redis/redis/v8
 */
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
)

// Locker is the distributed-lock contract used by the worker scheduler.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Refresh(ctx context.Context, key string, ttl time.Duration) error
	IsLocked(ctx context.Context, key string) (bool, error)
}

// RedisLock is a Locker backed by Redis SETNX plus ownership-checking Lua
// scripts for unlock/refresh.
type RedisLock struct {
	rdb        *redis.Client
	instanceID string
}

func New(rdb *redis.Client) *RedisLock {
	hostname, _ := os.Hostname()
	return &RedisLock{
		rdb:        rdb,
		instanceID: fmt.Sprintf("%s:%d", hostname, os.Getpid()),
	}
}

func lockKey(key string) string { return fmt.Sprintf("feedranker:lock:%s", key) }

// TryLock acquires the named lock if unheld, tagging it with this
// instance's identity so only this holder can unlock/refresh it.
func (l *RedisLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, lockKey(key), l.instanceID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	if ok {
		slog.Debug("lock acquired", "key", key, "ttl", ttl, "instance", l.instanceID)
	}
	return ok, nil
}

const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Unlock releases the lock only if still held by this instance.
func (l *RedisLock) Unlock(ctx context.Context, key string) error {
	res, err := l.rdb.Eval(ctx, unlockScript, []string{lockKey(key)}, l.instanceID).Result()
	if err != nil {
		return fmt.Errorf("releasing lock %s: %w", key, err)
	}
	if res.(int64) != 1 {
		slog.Warn("lock not held by this instance at unlock time", "key", key, "instance", l.instanceID)
	}
	return nil
}

const refreshScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("expire", KEYS[1], ARGV[2])
else
	return 0
end
`

// Refresh extends a held lock's TTL, for long-running jobs.
func (l *RedisLock) Refresh(ctx context.Context, key string, ttl time.Duration) error {
	res, err := l.rdb.Eval(ctx, refreshScript, []string{lockKey(key)}, l.instanceID, int(ttl.Seconds())).Result()
	if err != nil {
		return fmt.Errorf("refreshing lock %s: %w", key, err)
	}
	if res.(int64) != 1 {
		return fmt.Errorf("lock %s not held by this instance", key)
	}
	return nil
}

// IsLocked reports whether the named lock is currently held by anyone.
func (l *RedisLock) IsLocked(ctx context.Context, key string) (bool, error) {
	exists, err := l.rdb.Exists(ctx, lockKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("checking lock %s: %w", key, err)
	}
	return exists > 0, nil
}

// Executor runs a function under a lock, skipping it (not an error) when
// another replica already holds it.
type Executor struct {
	lock Locker
}

func NewExecutor(l Locker) *Executor { return &Executor{lock: l} }

// Run executes fn only if key's lock could be acquired, releasing it
// afterward regardless of fn's outcome.
func (e *Executor) Run(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	locked, err := e.lock.TryLock(ctx, key, ttl)
	if err != nil {
		return fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		slog.Debug("lock held elsewhere, skipping this run", "key", key)
		return nil
	}

	defer func() {
		if err := e.lock.Unlock(ctx, key); err != nil {
			slog.Error("releasing lock failed", "key", key, "error", err)
		}
	}()

	return fn(ctx)
}

// RunWithRefresh is Run's variant for jobs that may outlive ttl: it
// refreshes the lock on a ticker for the duration of fn.
func (e *Executor) RunWithRefresh(ctx context.Context, key string, ttl, refreshInterval time.Duration, fn func(context.Context) error) error {
	locked, err := e.lock.TryLock(ctx, key, ttl)
	if err != nil {
		return fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		slog.Debug("lock held elsewhere, skipping this run", "key", key)
		return nil
	}

	refreshCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-refreshCtx.Done():
				return
			case <-ticker.C:
				if err := e.lock.Refresh(ctx, key, ttl); err != nil {
					slog.Error("refreshing lock failed", "key", key, "error", err)
				}
			}
		}
	}()

	defer func() {
		if err := e.lock.Unlock(ctx, key); err != nil {
			slog.Error("releasing lock failed", "key", key, "error", err)
		}
	}()

	return fn(ctx)
}
