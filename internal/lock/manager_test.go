package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const docIRI = "http://openworm.org/entities/Document/a1b2"

func TestManager_LockUnlock(t *testing.T) {
	m := NewManager(time.Second, time.Second)
	ctx := context.Background()

	token, err := m.Lock(ctx, "r", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, m.IsLocked("r"))

	_, err = m.TryLock("r", time.Second)
	assert.ErrorIs(t, err, ErrLockHeld)

	assert.ErrorIs(t, m.Unlock("r", "someone-else"), ErrNotHolder)
	require.NoError(t, m.Unlock("r", token))
	assert.False(t, m.IsLocked("r"))

	stats := m.GetStats()
	assert.Equal(t, uint64(1), stats.TotalAcquired)
	assert.Equal(t, uint64(1), stats.TotalReleased)
	assert.Equal(t, 0, stats.ActiveLocks)
}

func TestManager_LeaseExpires(t *testing.T) {
	m := NewManager(time.Second, time.Second)

	_, err := m.TryLock("r", 20*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	assert.False(t, m.IsLocked("r"))

	_, err = m.TryLock("r", time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.GetStats().TotalTimeouts)
}

func TestManager_WaiterWakesOnRelease(t *testing.T) {
	m := NewManager(time.Second, 5*time.Second)
	ctx := context.Background()

	token, err := m.Lock(ctx, "r", 5*time.Second)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		_, err := m.Lock(ctx, "r", time.Second)
		assert.NoError(t, err)
		close(acquired)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.Unlock("r", token))

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestManager_LockHonoursContext(t *testing.T) {
	m := NewManager(time.Second, time.Minute)
	_, err := m.TryLock("r", time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "r", time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_Extend(t *testing.T) {
	m := NewManager(time.Second, time.Second)
	token, err := m.TryLock("r", 30*time.Millisecond)
	require.NoError(t, err)

	_, err = m.Extend("r", token, time.Minute)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.True(t, m.IsLocked("r"))

	_, err = m.Extend("r", "other", time.Minute)
	assert.ErrorIs(t, err, ErrNotHolder)
}

func TestLockManager_WithEntityLockSerialises(t *testing.T) {
	lm := NewLockManager(nil)
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := lm.WithEntityLock(ctx, docIRI, time.Second, func() error {
				n := atomic.AddInt32(&inside, 1)
				for {
					old := atomic.LoadInt32(&maxInside)
					if n <= old || atomic.CompareAndSwapInt32(&maxInside, old, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	locked, err := lm.IsEntityLocked(ctx, docIRI)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLockManager_WithEntityLocksReleasesAll(t *testing.T) {
	lm := NewLockManager(NewInMemoryDistributedLock())
	ctx := context.Background()
	boom := errors.New("boom")

	err := lm.WithEntityLocks(ctx, []string{"b", "a", "b"}, time.Second, func() error {
		for _, iri := range []string{"a", "b"} {
			locked, err := lm.IsEntityLocked(ctx, iri)
			require.NoError(t, err)
			assert.True(t, locked)
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	for _, iri := range []string{"a", "b"} {
		locked, err := lm.IsEntityLocked(ctx, iri)
		require.NoError(t, err)
		assert.False(t, locked)
	}
}

func TestSortedUnique(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, sortedUnique([]string{"c", "a", "b", "a"}))
	assert.Empty(t, sortedUnique(nil))
}

func newRedisLock(t *testing.T) (*RedisDistributedLock, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisDistributedLock(client, RedisLockOptions{
		RetryDelay:  5 * time.Millisecond,
		MaxWaitTime: 200 * time.Millisecond,
	}), mr
}

func TestRedisDistributedLock(t *testing.T) {
	ctx := context.Background()

	t.Run("acquire and release", func(t *testing.T) {
		rdl, mr := newRedisLock(t)

		handle, err := rdl.Acquire(ctx, "entity:x", time.Second)
		require.NoError(t, err)
		assert.True(t, mr.Exists("wormgraph:lock:entity:x"))

		_, err = rdl.TryAcquire(ctx, "entity:x", time.Second)
		assert.ErrorIs(t, err, ErrLockHeld)

		locked, err := rdl.IsLocked(ctx, "entity:x")
		require.NoError(t, err)
		assert.True(t, locked)

		require.NoError(t, rdl.Release(ctx, handle))
		assert.False(t, mr.Exists("wormgraph:lock:entity:x"))
		assert.ErrorIs(t, rdl.Release(ctx, handle), ErrNotHolder)
	})

	t.Run("expired lease can be taken over", func(t *testing.T) {
		rdl, mr := newRedisLock(t)

		stale, err := rdl.TryAcquire(ctx, "r", time.Second)
		require.NoError(t, err)
		mr.FastForward(2 * time.Second)

		fresh, err := rdl.TryAcquire(ctx, "r", time.Second)
		require.NoError(t, err)

		assert.ErrorIs(t, rdl.Release(ctx, stale), ErrNotHolder)
		require.NoError(t, rdl.Release(ctx, fresh))
	})

	t.Run("extend", func(t *testing.T) {
		rdl, mr := newRedisLock(t)

		handle, err := rdl.TryAcquire(ctx, "r", time.Second)
		require.NoError(t, err)
		require.NoError(t, handle.Extend(ctx, time.Minute))
		mr.FastForward(30 * time.Second)
		assert.True(t, mr.Exists("wormgraph:lock:r"))
	})

	t.Run("acquire gives up after max wait", func(t *testing.T) {
		rdl, _ := newRedisLock(t)

		_, err := rdl.TryAcquire(ctx, "r", time.Minute)
		require.NoError(t, err)

		_, err = rdl.Acquire(ctx, "r", time.Second)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("lock manager over redis", func(t *testing.T) {
		rdl, _ := newRedisLock(t)
		lm := NewLockManager(rdl)

		calls := 0
		err := lm.WithEntityLock(ctx, docIRI, time.Second, func() error {
			calls++
			locked, err := lm.IsEntityLocked(ctx, docIRI)
			require.NoError(t, err)
			assert.True(t, locked)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		require.NoError(t, lm.Close())
	})
}
