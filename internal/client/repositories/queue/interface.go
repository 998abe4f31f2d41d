package queue

import (
	"context"

	"github.com/vblinov/daybook/internal/client/models"
)

// Repository is the durable queue of pending local mutations.
type Repository interface {
	// Enqueue replaces any existing item for (item.EntityType,
	// item.EntityID) with the given item, so only the latest mutation per
	// entity survives.
	Enqueue(ctx context.Context, item *models.QueueItem) error

	// DequeueBatch returns up to limit items, oldest first.
	DequeueBatch(ctx context.Context, limit int) ([]*models.QueueItem, error)

	// Remove deletes an item after its push resolved.
	Remove(ctx context.Context, id string) error

	// IncrementRetry bumps an item's retry count and returns the new
	// value. The caller drops the item once the count reaches
	// models.MaxPushRetries.
	IncrementRetry(ctx context.Context, id string) (int, error)

	// Count returns the number of queued items.
	Count(ctx context.Context) (int, error)
}
