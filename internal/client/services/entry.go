// Package services holds the sync engine: the entry sync handler, which owns
// all entity-specific logic, and the orchestrator, which runs the push/pull
// protocol against the server.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vblinov/daybook/internal/checksum"
	"github.com/vblinov/daybook/internal/client/api"
	"github.com/vblinov/daybook/internal/client/models"
	"github.com/vblinov/daybook/internal/client/repositories/entries"
	"github.com/vblinov/daybook/internal/client/repositories/queue"
	"github.com/vblinov/daybook/internal/common"
	"github.com/vblinov/daybook/internal/logging"
)

// SyncTrigger requests a sync cycle without blocking the caller.
type SyncTrigger interface {
	TriggerSync()
}

// EntryInput carries the user-editable fields of a diary entry.
type EntryInput struct {
	// ID locates an existing entry (server id preferred, local id
	// otherwise). Ignored when creating.
	ID    string
	Title string
	Body  string
	Tags  string
}

// EntrySyncService is the entity sync handler for diary entries: it persists
// local mutations, keeps the queue in step with them, and applies
// server-originated changes with version precedence.
type EntrySyncService struct {
	entries entries.Repository
	queue   queue.Repository
	trigger SyncTrigger
	log     logging.Logger

	// mu serializes the read-modify-write sequences against the store. UI
	// edits run on the caller's goroutine while push acknowledgments and
	// pulled changes land on the sync goroutine; without the lock a
	// SaveLocal could write back a snapshot read before MarkPushed stamped
	// the server id, losing it.
	mu sync.Mutex

	now   func() time.Time
	newID func() string
}

func NewEntrySyncService(er entries.Repository, qr queue.Repository, log logging.Logger) *EntrySyncService {
	return &EntrySyncService{
		entries: er,
		queue:   qr,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// SetTrigger wires the orchestrator in after construction (the two reference
// each other). A nil trigger disables fire-and-forget syncing, which tests
// rely on.
func (s *EntrySyncService) SetTrigger(t SyncTrigger) {
	s.trigger = t
}

// SaveLocal persists a user edit. For isNew a fresh entry is created;
// otherwise the entry is located by server id, then local id, and created if
// absent. Either way the version is bumped, the change is queued for push
// and a sync cycle is requested.
func (s *EntrySyncService) SaveLocal(ctx context.Context, input EntryInput, isNew bool) (*models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()

	var e *models.Entry
	if isNew {
		e = &models.Entry{ID: s.newID(), CreatedAt: now}
	} else {
		var err error
		e, err = s.findLocalOrServer(ctx, input.ID)
		if errors.Is(err, common.ErrNotFound) {
			e = &models.Entry{ID: input.ID, CreatedAt: now}
			err = nil
		}
		if err != nil {
			return nil, err
		}
	}

	e.Title = input.Title
	e.Body = input.Body
	e.Tags = input.Tags
	e.UpdatedAt = now
	e.Version++
	e.NeedsSync = true
	e.SyncStatus = models.SyncStatusPending
	e.Checksum = entryChecksum(e)

	if err := s.entries.CreateOrUpdate(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to save entry: %w", err)
	}

	action := models.ActionUpdate
	if isNew {
		action = models.ActionCreate
	}
	if err := s.enqueue(ctx, e, action); err != nil {
		return nil, err
	}

	s.requestSync()
	return e, nil
}

// SoftDelete tombstones an entry located by local-or-server id and queues a
// delete for the server.
func (s *EntrySyncService) SoftDelete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.findLocalOrServer(ctx, id)
	if err != nil {
		return err
	}

	e.Deleted = true
	e.UpdatedAt = s.now().UTC()
	e.Version++
	e.NeedsSync = true
	e.SyncStatus = models.SyncStatusPending

	if err := s.entries.CreateOrUpdate(ctx, e); err != nil {
		return fmt.Errorf("failed to tombstone entry: %w", err)
	}
	if err := s.enqueue(ctx, e, models.ActionDelete); err != nil {
		return err
	}

	s.requestSync()
	return nil
}

// ApplyServerChanges folds pulled server changes into the local store.
// Per-item store failures are logged and skipped so one bad record cannot
// wedge the pull step.
func (s *EntrySyncService) ApplyServerChanges(ctx context.Context, changes []api.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, change := range changes {
		if err := s.applyOne(ctx, change, false); err != nil {
			s.log.Error(ctx, "failed to apply server change",
				"entity_id", change.EntityID, "action", change.Action, "error", err)
		}
	}
}

// ApplyAuthoritative applies a server change even over a pending local edit.
// Used after conflict resolution, where the server's record is the settled
// outcome regardless of versions.
func (s *EntrySyncService) ApplyAuthoritative(ctx context.Context, change api.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyOne(ctx, change, true)
}

func (s *EntrySyncService) applyOne(ctx context.Context, change api.Change, force bool) error {
	if change.Action == models.ActionDelete {
		e, err := s.entries.GetByServerID(ctx, change.EntityID)
		if errors.Is(err, common.ErrNotFound) {
			return nil // never had it locally
		}
		if err != nil {
			return err
		}
		e.Deleted = true
		e.UpdatedAt = s.now().UTC()
		e.NeedsSync = false
		e.SyncStatus = models.SyncStatusSynced
		return s.entries.CreateOrUpdate(ctx, e)
	}

	if change.Data == nil {
		return fmt.Errorf("%s change without payload", change.Action)
	}

	e, err := s.entries.GetByServerID(ctx, change.EntityID)
	if errors.Is(err, common.ErrNotFound) && change.Data.ID != "" {
		e, err = s.entries.GetByLocalID(ctx, change.Data.ID)
	}
	switch {
	case errors.Is(err, common.ErrNotFound):
		e = &models.Entry{ID: change.Data.ID}
		if e.ID == "" {
			e.ID = s.newID()
		}
	case err != nil:
		return err
	default:
		// Version precedence: an unpushed local edit wins until the
		// server has actually moved past it.
		if !force && e.NeedsSync && change.Version <= e.Version {
			s.log.Debug(ctx, "discarding server change, local unsynced edit wins",
				"entity_id", change.EntityID, "local_version", e.Version, "server_version", change.Version)
			return nil
		}
	}

	change.Data.ApplyTo(e)
	e.ServerID = change.EntityID
	e.Version = change.Version
	e.NeedsSync = false
	e.SyncStatus = models.SyncStatusSynced
	return s.entries.CreateOrUpdate(ctx, e)
}

// MarkPushed records a successful push acknowledgment: the entry gets its
// server id and, unless a newer local edit landed while the push was in
// flight, its acked version and synced status. A newer edit keeps its
// version and pending flag so the coalesced queue item carries it up on the
// next cycle.
func (s *EntrySyncService) MarkPushed(ctx context.Context, localID, serverID string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.entries.GetByLocalID(ctx, localID)
	if err != nil {
		return err
	}
	e.ServerID = serverID
	if e.Version <= version {
		e.Version = version
		e.NeedsSync = false
		e.SyncStatus = models.SyncStatusSynced
	}
	return s.entries.CreateOrUpdate(ctx, e)
}

// ListActive exposes the readable entries for UI consumers.
func (s *EntrySyncService) ListActive(ctx context.Context) ([]*models.Entry, error) {
	return s.entries.ListActive(ctx)
}

// Get returns one entry by local-or-server id.
func (s *EntrySyncService) Get(ctx context.Context, id string) (*models.Entry, error) {
	return s.findLocalOrServer(ctx, id)
}

func (s *EntrySyncService) findLocalOrServer(ctx context.Context, id string) (*models.Entry, error) {
	e, err := s.entries.GetByServerID(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		e, err = s.entries.GetByLocalID(ctx, id)
	}
	return e, err
}

func (s *EntrySyncService) enqueue(ctx context.Context, e *models.Entry, action models.Action) error {
	item := &models.QueueItem{
		ID:         s.newID(),
		EntityType: common.EntityTypeEntry,
		EntityID:   e.ID,
		Action:     action,
		Version:    e.Version,
		CreatedAt:  s.now().UTC(),
	}
	if action != models.ActionDelete {
		item.Payload = models.PayloadFromEntry(e)
	}
	if err := s.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("failed to queue %s: %w", action, err)
	}
	return nil
}

func (s *EntrySyncService) requestSync() {
	if s.trigger != nil {
		s.trigger.TriggerSync()
	}
}

func entryChecksum(e *models.Entry) string {
	return checksum.Sum(e.Title + "\n" + e.Body + "\n" + e.Tags)
}
