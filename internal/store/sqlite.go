package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/db"
)

// SQLiteBackend stores records in the local sqlite database.
type SQLiteBackend struct {
	db *db.DB
}

// NewSQLiteBackend wraps an open database. Closing the backend closes it.
func NewSQLiteBackend(d *db.DB) *SQLiteBackend {
	return &SQLiteBackend{db: d}
}

// DB returns the underlying database.
func (b *SQLiteBackend) DB() *db.DB { return b.db }

func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if b.db == nil || b.db.Conn() == nil {
		return nil, false, ErrUnavailable
	}
	var record string
	err := b.db.Conn().QueryRowContext(ctx,
		`SELECT record FROM connection_state WHERE scope_key = ?`, key).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: query state: %v", ErrUnavailable, err)
	}
	return []byte(record), true, nil
}

func (b *SQLiteBackend) Put(ctx context.Context, key string, record []byte) error {
	if b.db == nil || b.db.Conn() == nil {
		return ErrUnavailable
	}
	_, err := b.db.Conn().ExecContext(ctx, `
		INSERT INTO connection_state (scope_key, record, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(scope_key) DO UPDATE SET record = excluded.record, updated_at = CURRENT_TIMESTAMP`,
		key, string(record))
	if err != nil {
		return fmt.Errorf("%w: upsert state: %v", ErrUnavailable, err)
	}
	return nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if b.db == nil || b.db.Conn() == nil {
		return ErrUnavailable
	}
	if _, err := b.db.Conn().ExecContext(ctx,
		`DELETE FROM connection_state WHERE scope_key = ?`, key); err != nil {
		return fmt.Errorf("%w: delete state: %v", ErrUnavailable, err)
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
