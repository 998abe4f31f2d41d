// Package models defines client-side data models used by the daybook sync
// engine: diary entries, queued mutations, conflict records and published
// sync state.
package models

import "time"

// SyncStatus tracks whether an entry matches the last known server state.
type SyncStatus string

const (
	// SyncStatusPending marks a local change awaiting push, or a server
	// change not yet applied.
	SyncStatusPending SyncStatus = "pending"

	// SyncStatusSynced marks an entry that matches the last known server state.
	SyncStatusSynced SyncStatus = "synced"
)

// Entry is a versioned diary entry persisted locally and synced with the
// server. Version is a monotonic counter incremented on every local
// mutation and used for optimistic concurrency.
type Entry struct {
	// ID is the client-generated identifier, stable for the entry's lifetime.
	ID string

	// ServerID is assigned by the server on first successful push. Empty
	// until then.
	ServerID string

	Title string
	Body  string
	Tags  string

	// Version starts at 1 on creation and strictly increases on every
	// local mutation.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time

	// NeedsSync is true while a local mutation has not been acknowledged
	// by the server. An entry with NeedsSync set has a matching queue item.
	NeedsSync  bool
	SyncStatus SyncStatus

	// Checksum is the content hash used to detect drift independent of
	// version bookkeeping.
	Checksum string

	// Deleted marks the entry as a tombstone. Tombstones acknowledged by
	// the server are purged after the retention window.
	Deleted bool
}

// RetentionWindow is how long a server-acknowledged tombstone is kept
// locally before it is garbage-collected.
const RetentionWindow = 30 * 24 * time.Hour
