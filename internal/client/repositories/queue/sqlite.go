// Package queue provides the SQLite-backed durable sync queue. Each entity
// holds at most one queued mutation: enqueueing coalesces intermediate edits
// so only the latest state is ever transmitted.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vblinov/daybook/internal/client/models"
	"github.com/vblinov/daybook/internal/common"
	"github.com/vblinov/daybook/internal/dbx"
	"github.com/vblinov/daybook/internal/timex"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Enqueue inserts the item, replacing any prior item for the same entity via
// the unique (entity_type, entity_id) index. The replacement resets the
// retry count and creation time.
func (r *SQLiteRepository) Enqueue(ctx context.Context, item *models.QueueItem) error {
	var payload sql.NullString
	if item.Payload != nil {
		b, err := json.Marshal(item.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal queue payload: %w", err)
		}
		payload = sql.NullString{String: string(b), Valid: true}
	}

	query := `INSERT INTO sync_queue (id, entity_type, entity_id, action, version, payload, retry_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, entity_id) DO UPDATE SET
			id = excluded.id,
			action = excluded.action,
			version = excluded.version,
			payload = excluded.payload,
			retry_count = excluded.retry_count,
			created_at = excluded.created_at
	`
	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.EntityType, item.EntityID, string(item.Action), item.Version,
		payload, item.RetryCount, item.CreatedAt.UTC().Format(timex.SQLiteText))
	if err != nil {
		return fmt.Errorf("failed to enqueue: %w", err)
	}
	return nil
}

// DequeueBatch returns up to limit items ordered by creation time ascending,
// for deterministic push order. Items stay queued until removed.
func (r *SQLiteRepository) DequeueBatch(ctx context.Context, limit int) ([]*models.QueueItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, entity_type, entity_id, action, version, payload, retry_count, created_at
		 FROM sync_queue ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select queue items: %w", err)
	}
	defer rows.Close()

	var result []*models.QueueItem
	for rows.Next() {
		var item models.QueueItem
		var action, createdAt string
		var payload sql.NullString
		if err := rows.Scan(&item.ID, &item.EntityType, &item.EntityID, &action,
			&item.Version, &payload, &item.RetryCount, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		item.Action = models.Action(action)
		if item.CreatedAt, err = time.Parse(timex.SQLiteText, createdAt); err != nil {
			return nil, fmt.Errorf("bad created_at: %w", err)
		}
		if payload.Valid {
			var p models.EntryPayload
			if err := json.Unmarshal([]byte(payload.String), &p); err != nil {
				return nil, fmt.Errorf("failed to unmarshal queue payload: %w", err)
			}
			item.Payload = &p
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove queue item: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) IncrementRetry(ctx context.Context, id string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue SET retry_count = retry_count + 1 WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to increment retry: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return 0, common.ErrNotFound
	}

	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT retry_count FROM sync_queue WHERE id = ?`, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to read retry count: %w", err)
	}
	return count, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue items: %w", err)
	}
	return n, nil
}
