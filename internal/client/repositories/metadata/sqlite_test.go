package metadata

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE metadata (key TEXT PRIMARY KEY, value BLOB NOT NULL)`)
	require.NoError(t, err)

	return db
}

func TestSetGetOverwrite(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, KeyDeviceID, []byte("dev-1")))

	got, err := r.Get(ctx, KeyDeviceID)
	require.NoError(t, err)
	assert.Equal(t, []byte("dev-1"), got)

	require.NoError(t, r.Set(ctx, KeyDeviceID, []byte("dev-2")))
	got, err = r.Get(ctx, KeyDeviceID)
	require.NoError(t, err)
	assert.Equal(t, []byte("dev-2"), got)
}

func TestGet_MissingKeyReturnsNil(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)

	got, err := r.Get(context.Background(), KeyLastSyncAt)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDelete(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, KeyAccessToken, []byte("tok")))
	require.NoError(t, r.Delete(ctx, KeyAccessToken))

	got, err := r.Get(ctx, KeyAccessToken)
	require.NoError(t, err)
	assert.Nil(t, got)

	// deleting again is fine
	require.NoError(t, r.Delete(ctx, KeyAccessToken))
}
