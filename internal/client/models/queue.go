package models

import "time"

// Action is the kind of mutation a queue item carries.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// MaxPushRetries is how many failed push attempts a queue item survives
// before it is abandoned.
const MaxPushRetries = 3

// QueueItem is one outstanding local mutation awaiting transmission.
// At most one live item exists per (EntityType, EntityID): a newer mutation
// replaces the older item rather than stacking behind it.
type QueueItem struct {
	ID         string
	EntityType string
	EntityID   string
	Action     Action

	// Version is the entry version at enqueue time.
	Version int64

	// Payload is the entry snapshot to transmit. Nil for deletes.
	Payload *EntryPayload

	RetryCount int
	CreatedAt  time.Time
}
