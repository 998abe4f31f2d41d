// Package session manages the bearer credential used by the sync protocol.
// The token is persisted in the metadata store so an install stays logged in
// across restarts.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vblinov/daybook/internal/client/repositories/metadata"
	"github.com/vblinov/daybook/internal/common"
)

// Session holds the access token and answers whether it is still usable.
// The client holds no signing key, so expiry is read from the token's exp
// claim without signature verification; the server remains the authority
// and will reject a bad token with 401 anyway.
type Session struct {
	mu       sync.RWMutex
	token    string
	metadata metadata.Repository
	now      func() time.Time
}

func New(md metadata.Repository) *Session {
	return &Session{metadata: md, now: time.Now}
}

// Restore loads a previously persisted token, if any.
func (s *Session) Restore(ctx context.Context) error {
	b, err := s.metadata.Get(ctx, metadata.KeyAccessToken)
	if err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}
	s.mu.Lock()
	s.token = string(b)
	s.mu.Unlock()
	return nil
}

// SetToken stores and persists a freshly issued token.
func (s *Session) SetToken(ctx context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return s.metadata.Set(ctx, metadata.KeyAccessToken, []byte(token))
}

// Clear forgets the credential (logout).
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return s.metadata.Delete(ctx, metadata.KeyAccessToken)
}

// Token returns the bearer token, or common.ErrNotAuthenticated when none is
// set or the token has expired.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token == "" {
		return "", common.ErrNotAuthenticated
	}
	if expired(token, s.now()) {
		return "", fmt.Errorf("%w: token expired", common.ErrNotAuthenticated)
	}
	return token, nil
}

// Authenticated reports whether a usable credential is present.
func (s *Session) Authenticated(ctx context.Context) bool {
	_, err := s.Token(ctx)
	return err == nil
}

func expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		// Opaque (non-JWT) tokens carry no readable expiry; let the
		// server decide.
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.After(exp.Time)
}
