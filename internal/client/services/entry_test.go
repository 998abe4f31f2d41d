package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vblinov/daybook/internal/client/api"
	"github.com/vblinov/daybook/internal/client/models"
	"github.com/vblinov/daybook/internal/client/storage"
	"github.com/vblinov/daybook/internal/common"
	"github.com/vblinov/daybook/internal/logging"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func setupEntryService(t *testing.T) (*EntrySyncService, *storage.Repositories) {
	t.Helper()
	repos, err := storage.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })
	return NewEntrySyncService(repos.Entries, repos.Queue, testLogger()), repos
}

func TestSaveLocal_NewEntry(t *testing.T) {
	svc, repos := setupEntryService(t)
	ctx := context.Background()

	e, err := svc.SaveLocal(ctx, EntryInput{Title: "first", Body: "hello", Tags: "daily"}, true)
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, int64(1), e.Version)
	assert.True(t, e.NeedsSync)
	assert.Equal(t, models.SyncStatusPending, e.SyncStatus)
	assert.NotEmpty(t, e.Checksum)

	batch, err := repos.Queue.DequeueBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, models.ActionCreate, batch[0].Action)
	assert.Equal(t, e.ID, batch[0].EntityID)
	require.NotNil(t, batch[0].Payload)
	assert.Equal(t, "first", batch[0].Payload.Title)
}

func TestSaveLocal_RepeatedEditsCoalesceAndBumpVersion(t *testing.T) {
	svc, repos := setupEntryService(t)
	ctx := context.Background()

	e, err := svc.SaveLocal(ctx, EntryInput{Title: "v1", Body: "b"}, true)
	require.NoError(t, err)

	for i := 2; i <= 4; i++ {
		e, err = svc.SaveLocal(ctx, EntryInput{ID: e.ID, Title: "edited", Body: "b"}, false)
		require.NoError(t, err)
		assert.Equal(t, int64(i), e.Version)
	}

	n, err := repos.Queue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "edits to one entry must share a single queue slot")

	batch, err := repos.Queue.DequeueBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, int64(4), batch[0].Version)
	assert.Equal(t, "edited", batch[0].Payload.Title)
}

func TestSaveLocal_UnknownIDCreates(t *testing.T) {
	svc, _ := setupEntryService(t)
	ctx := context.Background()

	e, err := svc.SaveLocal(ctx, EntryInput{ID: "no-such", Title: "t", Body: "b"}, false)
	require.NoError(t, err)
	assert.Equal(t, "no-such", e.ID)
	assert.Equal(t, int64(1), e.Version)
}

func TestSoftDelete(t *testing.T) {
	svc, repos := setupEntryService(t)
	ctx := context.Background()

	e, err := svc.SaveLocal(ctx, EntryInput{Title: "gone soon", Body: "b"}, true)
	require.NoError(t, err)

	require.NoError(t, svc.SoftDelete(ctx, e.ID))

	got, err := svc.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.Equal(t, int64(2), got.Version)

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	batch, err := repos.Queue.DequeueBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, models.ActionDelete, batch[0].Action)
	assert.Nil(t, batch[0].Payload)
}

func TestSoftDelete_MissingEntry(t *testing.T) {
	svc, _ := setupEntryService(t)
	err := svc.SoftDelete(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestApplyServerChanges_NewEntry(t *testing.T) {
	svc, _ := setupEntryService(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	svc.ApplyServerChanges(ctx, []api.Change{{
		EntityID: "srv-1",
		Action:   models.ActionCreate,
		Version:  5,
		Data: &models.EntryPayload{
			ID: "srv-1", ServerID: "srv-1", Title: "from server", Body: "b",
			Version: 5, CreatedAt: now, UpdatedAt: now,
		},
	}})

	got, err := svc.Get(ctx, "srv-1")
	require.NoError(t, err)
	assert.Equal(t, "from server", got.Title)
	assert.Equal(t, int64(5), got.Version)
	assert.Equal(t, models.SyncStatusSynced, got.SyncStatus)
	assert.False(t, got.NeedsSync)
}

func TestApplyServerChanges_LocalEditWinsOnEqualVersion(t *testing.T) {
	svc, _ := setupEntryService(t)
	ctx := context.Background()

	e, err := svc.SaveLocal(ctx, EntryInput{Title: "local", Body: "b"}, true)
	require.NoError(t, err)
	require.NoError(t, svc.MarkPushed(ctx, e.ID, "srv-1", 1))
	e, err = svc.SaveLocal(ctx, EntryInput{ID: "srv-1", Title: "local edit", Body: "b"}, false)
	require.NoError(t, err)
	require.Equal(t, int64(2), e.Version)

	// Same version from the server while a local edit is pending: discard.
	svc.ApplyServerChanges(ctx, []api.Change{{
		EntityID: "srv-1", Action: models.ActionUpdate, Version: 2,
		Data: &models.EntryPayload{ID: "srv-1", ServerID: "srv-1", Title: "server edit", Body: "b", Version: 2},
	}})

	got, err := svc.Get(ctx, "srv-1")
	require.NoError(t, err)
	assert.Equal(t, "local edit", got.Title)
	assert.True(t, got.NeedsSync)
}

func TestApplyServerChanges_NewerServerVersionWins(t *testing.T) {
	svc, _ := setupEntryService(t)
	ctx := context.Background()

	e, err := svc.SaveLocal(ctx, EntryInput{Title: "local", Body: "b"}, true)
	require.NoError(t, err)
	require.NoError(t, svc.MarkPushed(ctx, e.ID, "srv-1", 1))
	_, err = svc.SaveLocal(ctx, EntryInput{ID: "srv-1", Title: "local edit", Body: "b"}, false)
	require.NoError(t, err)

	svc.ApplyServerChanges(ctx, []api.Change{{
		EntityID: "srv-1", Action: models.ActionUpdate, Version: 7,
		Data: &models.EntryPayload{ID: "srv-1", ServerID: "srv-1", Title: "server edit", Body: "b", Version: 7},
	}})

	got, err := svc.Get(ctx, "srv-1")
	require.NoError(t, err)
	assert.Equal(t, "server edit", got.Title)
	assert.Equal(t, int64(7), got.Version)
	assert.False(t, got.NeedsSync)
}

func TestApplyServerChanges_Idempotent(t *testing.T) {
	svc, _ := setupEntryService(t)
	ctx := context.Background()

	change := api.Change{
		EntityID: "srv-1", Action: models.ActionUpdate, Version: 3,
		Data: &models.EntryPayload{ID: "srv-1", ServerID: "srv-1", Title: "t", Body: "b", Version: 3},
	}
	svc.ApplyServerChanges(ctx, []api.Change{change})
	svc.ApplyServerChanges(ctx, []api.Change{change})

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(3), active[0].Version)
}

func TestApplyServerChanges_DeleteUnknownEntryIsNoop(t *testing.T) {
	svc, _ := setupEntryService(t)
	ctx := context.Background()

	svc.ApplyServerChanges(ctx, []api.Change{{
		EntityID: "never-seen", Action: models.ActionDelete, Version: 2,
	}})

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestApplyServerChanges_DeleteTombstonesLocalCopy(t *testing.T) {
	svc, _ := setupEntryService(t)
	ctx := context.Background()

	e, err := svc.SaveLocal(ctx, EntryInput{Title: "t", Body: "b"}, true)
	require.NoError(t, err)
	require.NoError(t, svc.MarkPushed(ctx, e.ID, "srv-1", 1))

	svc.ApplyServerChanges(ctx, []api.Change{{
		EntityID: "srv-1", Action: models.ActionDelete, Version: 2,
	}})

	got, err := svc.Get(ctx, "srv-1")
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.False(t, got.NeedsSync)
}

func TestMarkPushed(t *testing.T) {
	svc, _ := setupEntryService(t)
	ctx := context.Background()

	e, err := svc.SaveLocal(ctx, EntryInput{Title: "t", Body: "b"}, true)
	require.NoError(t, err)

	require.NoError(t, svc.MarkPushed(ctx, e.ID, "srv-9", 4))

	got, err := svc.Get(ctx, "srv-9")
	require.NoError(t, err)
	assert.Equal(t, "srv-9", got.ServerID)
	assert.Equal(t, int64(4), got.Version)
	assert.False(t, got.NeedsSync)
	assert.Equal(t, models.SyncStatusSynced, got.SyncStatus)
}

func TestMarkPushed_StaleAckKeepsNewerEditPending(t *testing.T) {
	svc, _ := setupEntryService(t)
	ctx := context.Background()

	e, err := svc.SaveLocal(ctx, EntryInput{Title: "t", Body: "b"}, true)
	require.NoError(t, err)
	_, err = svc.SaveLocal(ctx, EntryInput{ID: e.ID, Title: "newer", Body: "b"}, false)
	require.NoError(t, err)

	// Ack for v1 arrives after the v2 edit; only the server id sticks.
	require.NoError(t, svc.MarkPushed(ctx, e.ID, "srv-9", 1))

	got, err := svc.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "srv-9", got.ServerID)
	assert.Equal(t, int64(2), got.Version)
	assert.True(t, got.NeedsSync)
	assert.Equal(t, "newer", got.Title)
}

func TestSaveLocal_ConcurrentWithMarkPushed(t *testing.T) {
	svc, _ := setupEntryService(t)
	ctx := context.Background()

	e, err := svc.SaveLocal(ctx, EntryInput{Title: "t", Body: "b"}, true)
	require.NoError(t, err)

	// Whichever order the store serializes these in, the server id must
	// survive and the edit must stay pending.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := svc.SaveLocal(ctx, EntryInput{ID: e.ID, Title: "edited", Body: "b"}, false)
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, svc.MarkPushed(ctx, e.ID, "srv-1", 1))
	}()
	wg.Wait()

	got, err := svc.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "srv-1", got.ServerID)
	assert.Equal(t, int64(2), got.Version)
	assert.True(t, got.NeedsSync)
	assert.Equal(t, "edited", got.Title)
}

type recordingTrigger struct{ calls int }

func (r *recordingTrigger) TriggerSync() { r.calls++ }

func TestSaveLocal_RequestsSync(t *testing.T) {
	svc, _ := setupEntryService(t)
	trig := &recordingTrigger{}
	svc.SetTrigger(trig)

	_, err := svc.SaveLocal(context.Background(), EntryInput{Title: "t", Body: "b"}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, trig.calls)
}
