package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vblinov/daybook/internal/client/api"
	"github.com/vblinov/daybook/internal/client/models"
	"github.com/vblinov/daybook/internal/client/repositories/conflicts"
	"github.com/vblinov/daybook/internal/client/repositories/metadata"
	"github.com/vblinov/daybook/internal/client/repositories/queue"
	"github.com/vblinov/daybook/internal/common"
	"github.com/vblinov/daybook/internal/logging"
)

// SyncAPI is the slice of the HTTP client the orchestrator depends on.
type SyncAPI interface {
	Ping(ctx context.Context) error
	RegisterDevice(ctx context.Context, deviceID, deviceName string) error
	PullChanges(ctx context.Context, since time.Time, entityType string, limit int) ([]api.Change, error)
	PushChanges(ctx context.Context, req api.PushRequest) ([]api.PushResult, error)
	ResolveConflict(ctx context.Context, req api.ResolveConflictRequest) (*api.Change, error)
}

const (
	pullPageSize  = 100
	pushBatchSize = 50
)

// Orchestrator owns sync status, device registration, reachability and the
// push/pull/conflict-resolution protocol. All published state flows through
// its mutex; repositories are only written from the handler or from here.
type Orchestrator struct {
	apiClient SyncAPI
	handler   *EntrySyncService
	queue     queue.Repository
	conflicts conflicts.Repository
	metadata  metadata.Repository
	entries   EntryStore
	log       logging.Logger

	deviceName  string
	syncTimeout time.Duration

	mu          sync.Mutex
	state       models.SyncState
	subscribers []chan models.SyncState

	inFlight atomic.Bool
	online   atomic.Bool

	now func() time.Time
}

// EntryStore is the slice of the entries repository the orchestrator uses
// directly (retention, not entity logic).
type EntryStore interface {
	PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

func NewOrchestrator(apiClient SyncAPI, handler *EntrySyncService, qr queue.Repository,
	cr conflicts.Repository, mr metadata.Repository, er EntryStore,
	deviceName string, syncTimeout time.Duration, log logging.Logger) *Orchestrator {

	o := &Orchestrator{
		apiClient:   apiClient,
		handler:     handler,
		queue:       qr,
		conflicts:   cr,
		metadata:    mr,
		entries:     er,
		log:         log,
		deviceName:  deviceName,
		syncTimeout: syncTimeout,
		state:       models.SyncState{Phase: models.PhaseIdle},
		now:         time.Now,
	}
	o.online.Store(true) // assume reachable until the watcher says otherwise
	return o
}

// State returns the latest published snapshot.
func (o *Orchestrator) State() models.SyncState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Subscribe returns a channel of state snapshots and a cancel func that
// stops delivery and closes the channel. Slow consumers miss intermediate
// snapshots rather than blocking the engine.
func (o *Orchestrator) Subscribe() (<-chan models.SyncState, func()) {
	ch := make(chan models.SyncState, 16)
	o.mu.Lock()
	o.subscribers = append(o.subscribers, ch)
	o.mu.Unlock()

	cancel := func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, sub := range o.subscribers {
			if sub == ch {
				o.subscribers = append(o.subscribers[:i], o.subscribers[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

// TriggerSync requests a cycle without blocking. A trigger while a cycle is
// already running is a no-op: the running cycle's push step picks up the
// accumulated queue anyway.
func (o *Orchestrator) TriggerSync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.syncTimeout)
		defer cancel()
		if err := o.Sync(ctx); err != nil &&
			!errors.Is(err, common.ErrSyncInProgress) && !errors.Is(err, common.ErrNetworkUnavailable) {
			o.log.Error(ctx, "background sync failed", "error", err)
		}
	}()
}

// Sync runs one full cycle: register device, pull, push, housekeeping.
// Strictly sequential; any step error short-circuits to the failed state and
// the next cycle restarts from scratch (pull is idempotent via the since
// timestamp and version precedence).
func (o *Orchestrator) Sync(ctx context.Context) error {
	if !o.inFlight.CompareAndSwap(false, true) {
		return common.ErrSyncInProgress
	}
	defer o.inFlight.Store(false)

	if !o.online.Load() {
		o.publish(func(st *models.SyncState) { st.Phase = models.PhaseOffline })
		return common.ErrNetworkUnavailable
	}

	o.publish(func(st *models.SyncState) {
		st.Phase = models.PhaseSyncing
		st.Progress = 0.1
		st.Message = "registering device"
		st.Err = ""
	})

	deviceID, err := o.ensureDevice(ctx)
	if err != nil {
		return o.fail(ctx, fmt.Errorf("device registration: %w", err))
	}

	o.publish(func(st *models.SyncState) { st.Progress = 0.3; st.Message = "pulling changes" })
	if err := o.pull(ctx); err != nil {
		return o.fail(ctx, fmt.Errorf("pull: %w", err))
	}

	o.publish(func(st *models.SyncState) { st.Progress = 0.6; st.Message = "pushing changes" })
	if err := o.push(ctx, deviceID); err != nil {
		return o.fail(ctx, fmt.Errorf("push: %w", err))
	}

	o.housekeeping(ctx)

	now := o.now().UTC()
	if err := o.metadata.Set(ctx, metadata.KeyLastSyncAt, []byte(now.Format(time.RFC3339))); err != nil {
		o.log.Error(ctx, "failed to persist last sync time", "error", err)
	}

	pending, conflictCount := o.counts(ctx)
	o.publish(func(st *models.SyncState) {
		st.Progress = 1
		st.Message = ""
		st.LastSyncAt = now
		st.PendingCount = pending
		st.ConflictCount = conflictCount
		if conflictCount > 0 {
			st.Phase = models.PhaseConflict
		} else {
			st.Phase = models.PhaseSuccess
		}
	})

	o.log.Info(ctx, "sync cycle finished", "pending", pending, "conflicts", conflictCount)
	return nil
}

// ensureDevice mints the device identity on first use and registers it with
// the server. Registration is an idempotent upsert.
func (o *Orchestrator) ensureDevice(ctx context.Context) (string, error) {
	idBytes, err := o.metadata.Get(ctx, metadata.KeyDeviceID)
	if err != nil {
		return "", err
	}
	deviceID := string(idBytes)
	if deviceID == "" {
		deviceID = uuid.NewString()
		if err := o.metadata.Set(ctx, metadata.KeyDeviceID, []byte(deviceID)); err != nil {
			return "", err
		}
		if err := o.metadata.Set(ctx, metadata.KeyDeviceName, []byte(o.deviceName)); err != nil {
			return "", err
		}
		o.log.Info(ctx, "minted device identity", "device_id", deviceID)
	}

	if err := o.apiClient.RegisterDevice(ctx, deviceID, o.deviceName); err != nil {
		return "", err
	}
	return deviceID, nil
}

func (o *Orchestrator) pull(ctx context.Context) error {
	since := time.Unix(0, 0).UTC()
	if b, err := o.metadata.Get(ctx, metadata.KeyLastSyncAt); err != nil {
		return err
	} else if len(b) > 0 {
		t, err := time.Parse(time.RFC3339, string(b))
		if err != nil {
			o.log.Warn(ctx, "ignoring unparsable last sync time", "value", string(b))
		} else {
			since = t
		}
	}

	changes, err := o.apiClient.PullChanges(ctx, since, common.EntityTypeEntry, pullPageSize)
	if err != nil {
		return err
	}
	o.handler.ApplyServerChanges(ctx, changes)
	return nil
}

func (o *Orchestrator) push(ctx context.Context, deviceID string) error {
	items, err := o.queue.DequeueBatch(ctx, pushBatchSize)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	req := api.PushRequest{DeviceID: deviceID, Changes: make([]api.PushChange, len(items))}
	for i, item := range items {
		req.Changes[i] = api.PushChange{
			EntityType: item.EntityType,
			LocalID:    item.EntityID,
			Action:     item.Action,
			Version:    item.Version,
			Data:       item.Payload,
		}
	}

	results, err := o.apiClient.PushChanges(ctx, req)
	if err != nil {
		return err
	}

	for i, res := range results {
		o.settlePushResult(ctx, items[i], res)
	}
	return nil
}

// settlePushResult applies one per-item outcome. Store errors here are
// logged, not propagated: a failed delete-on-success must not abort the
// whole cycle.
func (o *Orchestrator) settlePushResult(ctx context.Context, item *models.QueueItem, res api.PushResult) {
	switch res.Status {
	case api.PushStatusSuccess:
		if err := o.handler.MarkPushed(ctx, item.EntityID, res.ServerID, res.Version); err != nil {
			o.log.Error(ctx, "failed to mark entry pushed", "entity_id", item.EntityID, "error", err)
		}
		if err := o.queue.Remove(ctx, item.ID); err != nil {
			o.log.Error(ctx, "failed to remove queue item", "queue_id", item.ID, "error", err)
		}

	case api.PushStatusConflict:
		o.recordConflict(ctx, item, res.Conflict)
		if err := o.queue.Remove(ctx, item.ID); err != nil {
			o.log.Error(ctx, "failed to remove conflicted queue item", "queue_id", item.ID, "error", err)
		}

	default:
		count, err := o.queue.IncrementRetry(ctx, item.ID)
		if err != nil {
			o.log.Error(ctx, "failed to increment retry", "queue_id", item.ID, "error", err)
			return
		}
		if count >= models.MaxPushRetries {
			// The change is dropped, not retried further. Loud on
			// purpose: this is silent data loss otherwise.
			if err := o.queue.Remove(ctx, item.ID); err != nil {
				o.log.Error(ctx, "failed to drop exhausted queue item", "queue_id", item.ID, "error", err)
				return
			}
			o.publish(func(st *models.SyncState) { st.AbandonedCount++ })
			o.log.Warn(ctx, "abandoned queue item after retries",
				"entity_id", item.EntityID, "action", item.Action, "retries", count)
		}
	}
}

func (o *Orchestrator) recordConflict(ctx context.Context, item *models.QueueItem, info *api.ConflictInfo) {
	if info == nil {
		o.log.Error(ctx, "conflict result without conflict payload", "entity_id", item.EntityID)
		return
	}
	rec := &models.ConflictRecord{
		ID:               uuid.NewString(),
		EntityType:       item.EntityType,
		EntityID:         item.EntityID,
		ServerConflictID: info.ConflictID,
		LocalVersion:     item.Version,
		ServerVersion:    info.ServerVersion,
		LocalData:        item.Payload,
		ServerData:       info.ServerData,
		CreatedAt:        o.now().UTC(),
	}
	if err := o.conflicts.Insert(ctx, rec); err != nil {
		o.log.Error(ctx, "failed to record conflict", "entity_id", item.EntityID, "error", err)
		return
	}
	o.log.Warn(ctx, "version conflict recorded",
		"entity_id", item.EntityID, "local_version", rec.LocalVersion, "server_version", rec.ServerVersion)
}

// ResolveConflict sends the chosen resolution to the server, removes the
// local record and lines up the local store with the record the server
// reports back. The server is authoritative after a resolution, whichever
// side's content won.
func (o *Orchestrator) ResolveConflict(ctx context.Context, conflictID string,
	resolution models.Resolution, merged *models.EntryPayload) error {

	rec, err := o.conflicts.GetByID(ctx, conflictID)
	if errors.Is(err, common.ErrNotFound) {
		return common.ErrConflictNotFound
	}
	if err != nil {
		return err
	}
	if !rec.Open() || rec.ServerConflictID == "" {
		return common.ErrConflictNotFound
	}

	req := api.ResolveConflictRequest{ConflictID: rec.ServerConflictID, Resolution: resolution}
	if resolution == models.ResolutionMerged {
		req.MergedData = merged
	}
	outcome, err := o.apiClient.ResolveConflict(ctx, req)
	if err != nil {
		return err
	}

	if err := o.conflicts.Delete(ctx, rec.ID); err != nil {
		o.log.Error(ctx, "failed to delete resolved conflict", "conflict_id", rec.ID, "error", err)
	}

	if outcome != nil {
		if err := o.handler.ApplyAuthoritative(ctx, *outcome); err != nil {
			o.log.Error(ctx, "failed to apply resolution outcome",
				"entity_id", outcome.EntityID, "error", err)
		}
	}

	pending, conflictCount := o.counts(ctx)
	o.publish(func(st *models.SyncState) {
		st.PendingCount = pending
		st.ConflictCount = conflictCount
		if st.Phase == models.PhaseConflict && conflictCount == 0 {
			st.Phase = models.PhaseSuccess
		}
	})
	return nil
}

// housekeeping garbage-collects acknowledged tombstones past the retention
// window. Best effort.
func (o *Orchestrator) housekeeping(ctx context.Context) {
	cutoff := o.now().UTC().Add(-models.RetentionWindow)
	n, err := o.entries.PurgeDeletedBefore(ctx, cutoff)
	if err != nil {
		o.log.Error(ctx, "retention purge failed", "error", err)
		return
	}
	if n > 0 {
		o.log.Info(ctx, "purged expired tombstones", "count", n)
	}
}

// StartReachabilityWatcher probes the server until ctx is cancelled,
// flipping the online flag and triggering a cycle when connectivity comes
// back. Going offline mid-cycle does not cancel the cycle; the in-flight
// network calls fail on their own.
func (o *Orchestrator) StartReachabilityWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := o.apiClient.Ping(probeCtx)
			cancel()
			o.setOnline(ctx, err == nil)
		}
	}
}

func (o *Orchestrator) setOnline(ctx context.Context, online bool) {
	was := o.online.Swap(online)
	if was == online {
		return
	}
	if online {
		o.log.Info(ctx, "network restored, triggering sync")
		o.publish(func(st *models.SyncState) {
			if st.Phase == models.PhaseOffline {
				st.Phase = models.PhaseIdle
			}
		})
		o.TriggerSync()
	} else {
		o.log.Warn(ctx, "network lost")
		o.publish(func(st *models.SyncState) { st.Phase = models.PhaseOffline })
	}
}

// Online reports the last observed reachability.
func (o *Orchestrator) Online() bool {
	return o.online.Load()
}

func (o *Orchestrator) counts(ctx context.Context) (pending, conflictCount int) {
	var err error
	if pending, err = o.queue.Count(ctx); err != nil {
		o.log.Error(ctx, "failed to count queue", "error", err)
	}
	if conflictCount, err = o.conflicts.CountUnresolved(ctx); err != nil {
		o.log.Error(ctx, "failed to count conflicts", "error", err)
	}
	return pending, conflictCount
}

func (o *Orchestrator) fail(ctx context.Context, err error) error {
	o.log.Error(ctx, "sync cycle failed", "error", err)
	o.publish(func(st *models.SyncState) {
		st.Phase = models.PhaseFailed
		st.Err = err.Error()
		st.Message = ""
	})
	return err
}

// publish mutates the state under the lock and fans the snapshot out to
// subscribers without blocking. The sends stay under the mutex so an
// unsubscribe cannot close a channel with a send in flight.
func (o *Orchestrator) publish(mutate func(*models.SyncState)) {
	o.mu.Lock()
	defer o.mu.Unlock()

	mutate(&o.state)
	for _, ch := range o.subscribers {
		select {
		case ch <- o.state:
		default:
		}
	}
}
