package session

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vblinov/daybook/internal/client/repositories/metadata"
	"github.com/vblinov/daybook/internal/common"

	_ "modernc.org/sqlite"
)

func setupSession(t *testing.T) *Session {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE metadata (key TEXT PRIMARY KEY, value BLOB NOT NULL)`)
	require.NoError(t, err)

	return New(metadata.NewSQLiteRepository(db))
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestToken_EmptyIsNotAuthenticated(t *testing.T) {
	s := setupSession(t)
	_, err := s.Token(context.Background())
	assert.ErrorIs(t, err, common.ErrNotAuthenticated)
	assert.False(t, s.Authenticated(context.Background()))
}

func TestSetToken_PersistsAcrossRestore(t *testing.T) {
	s := setupSession(t)
	ctx := context.Background()

	tok := signedToken(t, time.Now().Add(time.Hour))
	require.NoError(t, s.SetToken(ctx, tok))

	// a fresh session over the same store sees the token
	s2 := New(s.metadata)
	require.NoError(t, s2.Restore(ctx))
	got, err := s2.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, tok, got)
}

func TestToken_ExpiredIsRejected(t *testing.T) {
	s := setupSession(t)
	ctx := context.Background()

	require.NoError(t, s.SetToken(ctx, signedToken(t, time.Now().Add(-time.Minute))))

	_, err := s.Token(ctx)
	assert.ErrorIs(t, err, common.ErrNotAuthenticated)
}

func TestToken_OpaqueTokenPassesThrough(t *testing.T) {
	s := setupSession(t)
	ctx := context.Background()

	require.NoError(t, s.SetToken(ctx, "opaque-session-token"))

	got, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "opaque-session-token", got)
}

func TestClear(t *testing.T) {
	s := setupSession(t)
	ctx := context.Background()

	require.NoError(t, s.SetToken(ctx, "tok"))
	require.NoError(t, s.Clear(ctx))

	_, err := s.Token(ctx)
	assert.ErrorIs(t, err, common.ErrNotAuthenticated)
}
