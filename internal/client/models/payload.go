package models

import "time"

// EntryPayload is the typed wire shape for one entry. It is decoded at the
// transport boundary; nothing above the API client handles raw JSON maps.
type EntryPayload struct {
	ID        string    `json:"id"`
	ServerID  string    `json:"serverId,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tags      string    `json:"tags,omitempty"`
	Version   int64     `json:"version"`
	Checksum  string    `json:"checksum"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PayloadFromEntry snapshots an entry for transmission.
func PayloadFromEntry(e *Entry) *EntryPayload {
	return &EntryPayload{
		ID:        e.ID,
		ServerID:  e.ServerID,
		Title:     e.Title,
		Body:      e.Body,
		Tags:      e.Tags,
		Version:   e.Version,
		Checksum:  e.Checksum,
		Deleted:   e.Deleted,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

// ApplyTo overwrites an entry's content fields and sync metadata with the
// payload's values. The caller decides what NeedsSync/SyncStatus become.
func (p *EntryPayload) ApplyTo(e *Entry) {
	e.Title = p.Title
	e.Body = p.Body
	e.Tags = p.Tags
	e.Version = p.Version
	e.Checksum = p.Checksum
	e.Deleted = p.Deleted
	e.UpdatedAt = p.UpdatedAt
	if e.CreatedAt.IsZero() {
		e.CreatedAt = p.CreatedAt
	}
}
