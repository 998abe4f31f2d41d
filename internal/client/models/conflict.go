package models

import "time"

// Resolution is the outcome chosen for a conflict record.
type Resolution string

const (
	ResolutionKeepLocal  Resolution = "keep_local"
	ResolutionKeepServer Resolution = "keep_server"
	ResolutionMerged     Resolution = "merged"
)

// ConflictRecord is a stored divergence between local and server versions of
// one entry, awaiting manual resolution. Resolution stays empty while the
// conflict is open; once set, the record is historical.
type ConflictRecord struct {
	ID         string
	EntityType string
	EntityID   string

	// ServerConflictID identifies this conflict on the server; required to
	// resolve it.
	ServerConflictID string

	LocalVersion  int64
	ServerVersion int64

	LocalData  *EntryPayload
	ServerData *EntryPayload

	CreatedAt  time.Time
	Resolution Resolution
}

// Open reports whether the conflict still needs resolution.
func (c *ConflictRecord) Open() bool {
	return c.Resolution == ""
}
