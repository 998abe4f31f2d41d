// Package entries provides the SQLite-backed repository for locally
// persisted diary entries and their sync metadata.
package entries

import (
	"context"
	"database/sql"
	"errors"
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

const entryColumns = `id, server_id, title, body, tags, version, created_at, updated_at,
	needs_sync, sync_status, checksum, deleted`

// CreateOrUpdate upserts an entry by id. Every column is overwritten with the
// in-memory state, including sync bookkeeping.
func (r *SQLiteRepository) CreateOrUpdate(ctx context.Context, e *models.Entry) error {
	query := `INSERT INTO entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			server_id = excluded.server_id,
			title = excluded.title,
			body = excluded.body,
			tags = excluded.tags,
			version = excluded.version,
			updated_at = excluded.updated_at,
			needs_sync = excluded.needs_sync,
			sync_status = excluded.sync_status,
			checksum = excluded.checksum,
			deleted = excluded.deleted
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.ServerID, e.Title, e.Body, e.Tags, e.Version,
		e.CreatedAt.UTC().Format(timex.SQLiteText), e.UpdatedAt.UTC().Format(timex.SQLiteText),
		e.NeedsSync, string(e.SyncStatus), e.Checksum, e.Deleted)
	if err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByLocalID(ctx context.Context, id string) (*models.Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	return scanEntry(row)
}

func (r *SQLiteRepository) GetByServerID(ctx context.Context, serverID string) (*models.Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE server_id = ? AND server_id != ''`, serverID)
	return scanEntry(row)
}

// ListActive lists all non-deleted entries, newest first.
func (r *SQLiteRepository) ListActive(ctx context.Context) ([]*models.Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE deleted = 0 ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to select entries: %w", err)
	}
	defer rows.Close()

	var result []*models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE needs_sync = 1`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending entries: %w", err)
	}
	return n, nil
}

// PurgeDeletedBefore garbage-collects tombstones the server has already
// acknowledged. Unacknowledged deletes are kept so they still get pushed.
func (r *SQLiteRepository) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM entries WHERE deleted = 1 AND needs_sync = 0 AND updated_at < ?`,
		cutoff.UTC().Format(timex.SQLiteText))
	if err != nil {
		return 0, fmt.Errorf("failed to purge entries: %w", err)
	}
	return res.RowsAffected()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.Entry, error) {
	var e models.Entry
	var createdAt, updatedAt, status string
	err := row.Scan(&e.ID, &e.ServerID, &e.Title, &e.Body, &e.Tags, &e.Version,
		&createdAt, &updatedAt, &e.NeedsSync, &status, &e.Checksum, &e.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}
	e.SyncStatus = models.SyncStatus(status)
	if e.CreatedAt, err = time.Parse(timex.SQLiteText, createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at: %w", err)
	}
	if e.UpdatedAt, err = time.Parse(timex.SQLiteText, updatedAt); err != nil {
		return nil, fmt.Errorf("bad updated_at: %w", err)
	}
	return &e, nil
}
