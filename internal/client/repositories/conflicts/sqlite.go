// Package conflicts provides the SQLite-backed store for version conflicts
// awaiting manual resolution.
package conflicts

import (
	"context"
	"database/sql"
	"encoding/json"
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

// Insert persists the conflict. Older open conflicts for the same entity are
// deleted first so exactly one open conflict exists per entity.
func (r *SQLiteRepository) Insert(ctx context.Context, c *models.ConflictRecord) error {
	localData, err := marshalPayload(c.LocalData)
	if err != nil {
		return err
	}
	serverData, err := marshalPayload(c.ServerData)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`DELETE FROM conflicts WHERE entity_type = ? AND entity_id = ? AND resolution = ''`,
		c.EntityType, c.EntityID)
	if err != nil {
		return fmt.Errorf("failed to supersede open conflict: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO conflicts (id, entity_type, entity_id, server_conflict_id,
			local_version, server_version, local_data, server_data, created_at, resolution)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.EntityType, c.EntityID, c.ServerConflictID,
		c.LocalVersion, c.ServerVersion, localData, serverData,
		c.CreatedAt.UTC().Format(timex.SQLiteText), string(c.Resolution))
	if err != nil {
		return fmt.Errorf("failed to insert conflict: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.ConflictRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, entity_type, entity_id, server_conflict_id, local_version,
			server_version, local_data, server_data, created_at, resolution
		 FROM conflicts WHERE id = ?`, id)
	return scanConflict(row)
}

func (r *SQLiteRepository) ListUnresolved(ctx context.Context) ([]*models.ConflictRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, entity_type, entity_id, server_conflict_id, local_version,
			server_version, local_data, server_data, created_at, resolution
		 FROM conflicts WHERE resolution = '' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to select conflicts: %w", err)
	}
	defer rows.Close()

	var result []*models.ConflictRecord
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) CountUnresolved(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conflicts WHERE resolution = ''`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count conflicts: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM conflicts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conflict: %w", err)
	}
	return nil
}

func marshalPayload(p *models.EntryPayload) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal conflict payload: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalPayload(s sql.NullString) (*models.EntryPayload, error) {
	if !s.Valid {
		return nil, nil
	}
	var p models.EntryPayload
	if err := json.Unmarshal([]byte(s.String), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conflict payload: %w", err)
	}
	return &p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConflict(row rowScanner) (*models.ConflictRecord, error) {
	var c models.ConflictRecord
	var localData, serverData sql.NullString
	var createdAt, resolution string
	err := row.Scan(&c.ID, &c.EntityType, &c.EntityID, &c.ServerConflictID,
		&c.LocalVersion, &c.ServerVersion, &localData, &serverData, &createdAt, &resolution)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan conflict: %w", err)
	}
	c.Resolution = models.Resolution(resolution)
	if c.CreatedAt, err = time.Parse(timex.SQLiteText, createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at: %w", err)
	}
	if c.LocalData, err = unmarshalPayload(localData); err != nil {
		return nil, err
	}
	if c.ServerData, err = unmarshalPayload(serverData); err != nil {
		return nil, err
	}
	return &c, nil
}
