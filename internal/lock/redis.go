package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisDistributedLock shares locks between wormgraph instances. Each lock is
// a key holding the owner's token, set with NX and a millisecond expiry.
type RedisDistributedLock struct {
	client      *redis.Client
	keyPrefix   string
	retryDelay  time.Duration
	maxWaitTime time.Duration
	closeClient bool
}

type RedisLockOptions struct {
	KeyPrefix   string
	RetryDelay  time.Duration
	MaxWaitTime time.Duration
	// CloseClient makes Close shut down the shared client as well.
	CloseClient bool
}

func NewRedisDistributedLock(client *redis.Client, opts RedisLockOptions) *RedisDistributedLock {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "wormgraph:lock:"
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 50 * time.Millisecond
	}
	if opts.MaxWaitTime <= 0 {
		opts.MaxWaitTime = time.Minute
	}

	return &RedisDistributedLock{
		client:      client,
		keyPrefix:   opts.KeyPrefix,
		retryDelay:  opts.RetryDelay,
		maxWaitTime: opts.MaxWaitTime,
		closeClient: opts.CloseClient,
	}
}

func (rdl *RedisDistributedLock) key(resource string) string {
	return rdl.keyPrefix + resource
}

func (rdl *RedisDistributedLock) Acquire(ctx context.Context, resource string, ttl time.Duration) (LockHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, rdl.maxWaitTime)
	defer cancel()

	ticker := time.NewTicker(rdl.retryDelay)
	defer ticker.Stop()

	for {
		handle, err := rdl.TryAcquire(ctx, resource, ttl)
		if err == nil {
			return handle, nil
		}
		if !errors.Is(err, ErrLockHeld) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to acquire lock on resource %s: %w", resource, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (rdl *RedisDistributedLock) TryAcquire(ctx context.Context, resource string, ttl time.Duration) (LockHandle, error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	token := uuid.New().String()
	ok, err := rdl.client.SetNX(ctx, rdl.key(resource), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to set lock key for %s: %w", resource, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", resource, ErrLockHeld)
	}

	return &lockHandle{
		resource:  resource,
		token:     token,
		expiresAt: time.Now().Add(ttl),
		extend:    rdl.extend,
	}, nil
}

func (rdl *RedisDistributedLock) extend(ctx context.Context, resource, token string, ttl time.Duration) (time.Time, error) {
	n, err := extendScript.Run(ctx, rdl.client, []string{rdl.key(resource)}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to extend lock on %s: %w", resource, err)
	}
	if n == 0 {
		return time.Time{}, fmt.Errorf("%s: %w", resource, ErrNotHolder)
	}
	return time.Now().Add(ttl), nil
}

func (rdl *RedisDistributedLock) Release(ctx context.Context, handle LockHandle) error {
	n, err := releaseScript.Run(ctx, rdl.client, []string{rdl.key(handle.Resource())}, handle.Token()).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock on %s: %w", handle.Resource(), err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", handle.Resource(), ErrNotHolder)
	}
	return nil
}

func (rdl *RedisDistributedLock) IsLocked(ctx context.Context, resource string) (bool, error) {
	n, err := rdl.client.Exists(ctx, rdl.key(resource)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check lock on %s: %w", resource, err)
	}
	return n > 0, nil
}

func (rdl *RedisDistributedLock) Close() error {
	if rdl.closeClient {
		return rdl.client.Close()
	}
	return nil
}
