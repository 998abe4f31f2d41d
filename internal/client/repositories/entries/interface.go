package entries

import (
	"context"
	"time"

	"github.com/vblinov/daybook/internal/client/models"
)

// Repository is the durable store for diary entries.
type Repository interface {
	// CreateOrUpdate upserts an entry by local id, writing every column.
	CreateOrUpdate(ctx context.Context, e *models.Entry) error

	// GetByLocalID returns the entry with the given client id, or
	// common.ErrNotFound.
	GetByLocalID(ctx context.Context, id string) (*models.Entry, error)

	// GetByServerID returns the entry with the given server id, or
	// common.ErrNotFound.
	GetByServerID(ctx context.Context, serverID string) (*models.Entry, error)

	// ListActive returns non-deleted entries, newest first.
	ListActive(ctx context.Context) ([]*models.Entry, error)

	// CountPending counts entries still awaiting a push acknowledgment.
	CountPending(ctx context.Context) (int, error)

	// PurgeDeletedBefore removes server-acknowledged tombstones last
	// updated before cutoff. Returns the number of rows purged.
	PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
