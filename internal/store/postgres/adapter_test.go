//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/openworm/wormgraph/internal/store"
	"github.com/openworm/wormgraph/internal/store/storetest"
	"github.com/openworm/wormgraph/internal/store/testutils"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	dsn := testutils.StartPostgres(t, ctx)

	s, err := NewPostgresStore(ctx, dsn, PoolOptions{MaxConns: 4, MinConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	migrator := NewMigrator(s.GetPool(), zerolog.Nop())
	require.NoError(t, migrator.Run(ctx))

	status, err := migrator.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, status.Pending)
	assert.Equal(t, []string{"001_initial_schema.sql", "002_statement_object_index.sql"}, status.Applied)

	// Running twice is a no-op.
	require.NoError(t, migrator.Run(ctx))

	storetest.Run(t, func(t *testing.T) store.StatementStore {
		_, err := s.GetPool().Exec(ctx, `TRUNCATE entities CASCADE`)
		require.NoError(t, err)
		return s
	})
}
