// Package storage opens the client database, applies embedded schema
// migrations and vends the repository set bound to it.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/vblinov/daybook/internal/client/migrations"
	"github.com/vblinov/daybook/internal/client/repositories/conflicts"
	"github.com/vblinov/daybook/internal/client/repositories/entries"
	"github.com/vblinov/daybook/internal/client/repositories/metadata"
	"github.com/vblinov/daybook/internal/client/repositories/queue"
)

// Repositories bundles every store over one database handle.
type Repositories struct {
	DB        *sql.DB
	Entries   entries.Repository
	Queue     queue.Repository
	Conflicts conflicts.Repository
	Metadata  metadata.Repository
}

// Open opens (creating if needed) the sqlite database at dsn, runs pending
// migrations and returns the repository set. The caller owns closing.
func Open(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// sqlite rejects concurrent writers on separate connections; a single
	// connection also keeps :memory: databases alive across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Repositories{
		DB:        db,
		Entries:   entries.NewSQLiteRepository(db),
		Queue:     queue.NewSQLiteRepository(db),
		Conflicts: conflicts.NewSQLiteRepository(db),
		Metadata:  metadata.NewSQLiteRepository(db),
	}, nil
}

// Close releases the underlying database handle.
func (r *Repositories) Close() error {
	return r.DB.Close()
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}
