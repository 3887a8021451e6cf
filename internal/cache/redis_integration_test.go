//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openworm/wormgraph/internal/cache"
	"github.com/openworm/wormgraph/internal/store/testutils"
)

func TestRedisStore_Container(t *testing.T) {
	ctx := context.Background()
	url := testutils.StartRedis(t, ctx)

	client, err := cache.NewRedisClient(ctx, cache.RedisOptions{URL: url})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := cache.NewRedisStore(client, "wormgraph:test:")
	require.NoError(t, store.Ping(ctx))

	m := cache.NewManager(store, time.Minute)
	record := cache.Record{"pmid": {"4006922"}, "author": {"Chalfie M", "Sulston JE"}}
	require.NoError(t, m.SetRecord(ctx, "wormbase", "WBPaper00000001", record))

	got, ok := m.GetRecord(ctx, "wormbase", "WBPaper00000001")
	require.True(t, ok)
	assert.Equal(t, record, got)

	require.NoError(t, m.Invalidate(ctx, "wormbase", "WBPaper00000001"))
	_, ok = m.GetRecord(ctx, "wormbase", "WBPaper00000001")
	assert.False(t, ok)

	require.NoError(t, m.SetRecord(ctx, "pubmed", "4006922", record))
	require.NoError(t, m.Clear(ctx))
	_, ok = m.GetRecord(ctx, "pubmed", "4006922")
	assert.False(t, ok)
}
