package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Locker serializes work per key. Lock blocks until the key is free or ctx
// is done; the returned func releases the key and may be called more than
// once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LocalLocker is an in-process Locker. Waiters for the same key are served
// in arrival order.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	waiters []chan struct{}
}

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, held := l.locks[key]
	if !held {
		l.locks[key] = &keyLock{}
		l.mu.Unlock()
		return l.unlocker(key), nil
	}
	ready := make(chan struct{})
	kl.waiters = append(kl.waiters, ready)
	l.mu.Unlock()

	select {
	case <-ready:
		return l.unlocker(key), nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, w := range kl.waiters {
			if w == ready {
				kl.waiters = append(kl.waiters[:i], kl.waiters[i+1:]...)
				l.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		l.mu.Unlock()
		// The lock was handed over while we were giving up.
		l.release(key)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) unlocker(key string) func() {
	var once sync.Once
	return func() { once.Do(func() { l.release(key) }) }
}

// release passes the key to the oldest waiter, or frees it.
func (l *LocalLocker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl, ok := l.locks[key]
	if !ok {
		return
	}
	if len(kl.waiters) > 0 {
		next := kl.waiters[0]
		kl.waiters = kl.waiters[1:]
		close(next)
		return
	}
	delete(l.locks, key)
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every replica connected to the same
// Redis. A lock expires after ttl if its holder dies.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	prefix string
	logger *zap.Logger
}

// NewRedisLocker creates a RedisLocker. ttl must exceed the longest turn.
func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		retry:  25 * time.Millisecond,
		prefix: "salonbook:lock:",
		logger: logger,
	}
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := r.prefix + key
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(r.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's ctx may already be cancelled.
			err := releaseScript.Run(context.Background(), r.client, []string{redisKey}, token).Err()
			if err != nil && !errors.Is(err, redis.Nil) {
				r.logger.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}
