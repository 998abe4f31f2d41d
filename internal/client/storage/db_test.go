package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_RunsMigrations(t *testing.T) {
	ctx := context.Background()

	repos, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })

	for _, table := range []string{"entries", "sync_queue", "conflicts", "metadata"} {
		var name string
		err := repos.DB.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestOpen_RepositoriesShareHandle(t *testing.T) {
	ctx := context.Background()

	repos, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })

	require.NoError(t, repos.Metadata.Set(ctx, "k", []byte("v")))
	got, err := repos.Metadata.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}
