//go:build integration

package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openworm/wormgraph/internal/store/testutils"
)

func TestRedisDistributedLock_Container(t *testing.T) {
	ctx := context.Background()

	opts, err := redis.ParseURL(testutils.StartRedis(t, ctx))
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	lm := NewLockManager(NewRedisDistributedLock(client, RedisLockOptions{
		RetryDelay:  10 * time.Millisecond,
		MaxWaitTime: 10 * time.Second,
	}))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		overlap bool
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := lm.WithEntityLock(ctx, docIRI, 5*time.Second, func() error {
				mu.Lock()
				inside++
				if inside > 1 {
					overlap = true
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.False(t, overlap)
	locked, err := lm.IsEntityLocked(ctx, docIRI)
	require.NoError(t, err)
	assert.False(t, locked)
}
