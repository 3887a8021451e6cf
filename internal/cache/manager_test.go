package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var paperRecord = Record{
	"author": {"Smith J", "Doe A"},
	"title":  {"Locomotion of C. elegans"},
	"year":   {"2004"},
}

func stores(t *testing.T) map[string]Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), RedisOptions{
		URL: fmt.Sprintf("redis://%s", mr.Addr()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(time.Minute, time.Minute),
		"redis":  NewRedisStore(client, ""),
	}
}

func TestStores(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Set(ctx, "k1", paperRecord, time.Minute))
			require.NoError(t, store.Set(ctx, "k2", Record{"pmid": {"1"}}, time.Minute))

			got, ok, err := store.Get(ctx, "k1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, paperRecord, got)

			require.NoError(t, store.Delete(ctx, "k1"))
			_, ok, err = store.Get(ctx, "k1")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Flush(ctx))
			_, ok, err = store.Get(ctx, "k2")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(ctx, RedisOptions{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	store := NewRedisStore(client, "test:")
	require.NoError(t, store.Set(ctx, "k", paperRecord, time.Second))
	assert.True(t, mr.Exists("test:k"))

	mr.FastForward(2 * time.Second)
	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreCorruptEntry(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(ctx, RedisOptions{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, mr.Set("wormgraph:cache:bad", "\xc1"))
	store := NewRedisStore(client, "")
	_, _, err = store.Get(ctx, "bad")
	assert.Error(t, err)

	m := NewManager(store, time.Minute)
	_, ok := m.GetRecord(ctx, "pubmed", "bad")
	assert.False(t, ok)
}

func TestNewRedisClientUnreachable(t *testing.T) {
	_, err := NewRedisClient(context.Background(), RedisOptions{
		URL:            "redis://127.0.0.1:1",
		ConnectTimeout: 100 * time.Millisecond,
	})
	assert.Error(t, err)

	_, err = NewRedisClient(context.Background(), RedisOptions{URL: "::not a url"})
	assert.Error(t, err)
}

func TestManagerGetOrLoad(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(time.Minute, time.Minute), time.Minute)

	var lookups []bool
	m.OnLookup(func(source string, hit bool) {
		assert.Equal(t, "pubmed", source)
		lookups = append(lookups, hit)
	})

	loads := 0
	load := func(context.Context) (Record, error) {
		loads++
		return paperRecord, nil
	}

	got, hit, err := m.GetOrLoad(ctx, "pubmed", "15114431", load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, paperRecord, got)

	got, hit, err = m.GetOrLoad(ctx, "pubmed", "15114431", load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, paperRecord, got)
	assert.Equal(t, 1, loads)
	assert.Equal(t, []bool{false, true}, lookups)

	stats := m.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
}

func TestManagerDoesNotCacheFailures(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(time.Minute, time.Minute), time.Minute)
	boom := errors.New("boom")

	_, _, err := m.GetOrLoad(ctx, "crossref", "10.1/x", func(context.Context) (Record, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	_, ok := m.GetRecord(ctx, "crossref", "10.1/x")
	assert.False(t, ok)
}

func TestManagerReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(time.Minute, time.Minute), time.Minute)
	require.NoError(t, m.SetRecord(ctx, "wormbase", "WBPaper00000001", Record{"title": {"T"}}))

	got, ok := m.GetRecord(ctx, "wormbase", "WBPaper00000001")
	require.True(t, ok)
	got["title"][0] = "changed"

	again, _ := m.GetRecord(ctx, "wormbase", "WBPaper00000001")
	assert.Equal(t, "T", again["title"][0])

	require.NoError(t, m.Invalidate(ctx, "wormbase", "WBPaper00000001"))
	_, ok = m.GetRecord(ctx, "wormbase", "WBPaper00000001")
	assert.False(t, ok)

	require.NoError(t, m.Clear(ctx))
	assert.Equal(t, CacheStats{}, m.Stats())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "record:pubmed:123", Key("PubMed", "123"))
}

func TestNilManager(t *testing.T) {
	var m *Manager
	_, ok := m.GetRecord(context.Background(), "pubmed", "1")
	assert.False(t, ok)
	assert.NoError(t, m.SetRecord(context.Background(), "pubmed", "1", paperRecord))
}
