package conflicts

import (
	"context"

	"github.com/vblinov/daybook/internal/client/models"
)

// Repository is the durable store for unresolved version conflicts.
type Repository interface {
	// Insert persists a new conflict record. Any still-open conflict for
	// the same entity is superseded, preserving the one-open-conflict-per-
	// entity invariant.
	Insert(ctx context.Context, c *models.ConflictRecord) error

	// GetByID returns a conflict record or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.ConflictRecord, error)

	// ListUnresolved returns open conflicts, oldest first.
	ListUnresolved(ctx context.Context) ([]*models.ConflictRecord, error)

	// CountUnresolved counts open conflicts; drives the conflicts badge.
	CountUnresolved(ctx context.Context) (int, error)

	// Delete removes a conflict record once it has been resolved with the
	// server.
	Delete(ctx context.Context, id string) error
}
