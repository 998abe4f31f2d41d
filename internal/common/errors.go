// Package common defines shared constants and sentinel errors used across
// the daybook client layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Transport-level errors.
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrServerError        = errors.New("server error")
	ErrNetworkUnavailable = errors.New("network unavailable")

	// Sync orchestration errors.
	ErrSyncInProgress   = errors.New("sync already in progress")
	ErrConflictNotFound = errors.New("conflict not found")
)
