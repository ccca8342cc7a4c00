package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresTableName        = "hrconnect_connection_state"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresBackend stores records in a shared postgres table. The
// connection and table are set up lazily on first use.
type PostgresBackend struct {
	dsn    string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// NewPostgresBackend validates dsn and returns a backend. No connection is
// made until the first operation.
func NewPostgresBackend(dsn string) (*PostgresBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	return &PostgresBackend{dsn: dsn, openDB: sql.Open}, nil
}

func (b *PostgresBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := b.ensureReady(ctx); err != nil {
		return nil, false, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	var record string
	err := b.db.QueryRowContext(ctx,
		`SELECT record FROM `+postgresTableName+` WHERE scope_key = $1`, key).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: postgres select: %v", ErrUnavailable, err)
	}
	return []byte(record), true, nil
}

func (b *PostgresBackend) Put(ctx context.Context, key string, record []byte) error {
	if err := b.ensureReady(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	_, err := b.db.ExecContext(ctx, `
		INSERT INTO `+postgresTableName+` (scope_key, record, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (scope_key)
		DO UPDATE SET record = EXCLUDED.record, updated_at = NOW()`, key, string(record))
	if err != nil {
		return fmt.Errorf("%w: postgres upsert: %v", ErrUnavailable, err)
	}
	return nil
}

func (b *PostgresBackend) Delete(ctx context.Context, key string) error {
	if err := b.ensureReady(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	if _, err := b.db.ExecContext(ctx,
		`DELETE FROM `+postgresTableName+` WHERE scope_key = $1`, key); err != nil {
		return fmt.Errorf("%w: postgres delete: %v", ErrUnavailable, err)
	}
	return nil
}

func (b *PostgresBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *PostgresBackend) ensureReady(ctx context.Context) error {
	b.initOnce.Do(func() {
		db, err := b.openDB("postgres", b.dsn)
		if err != nil {
			b.initErr = fmt.Errorf("%w: postgres open: %v", ErrUnavailable, err)
			return
		}
		ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
		defer cancel()

		if _, err := db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS `+postgresTableName+` (
				scope_key TEXT PRIMARY KEY,
				record TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`); err != nil {
			_ = db.Close()
			b.initErr = fmt.Errorf("%w: postgres init: %v", ErrUnavailable, err)
			return
		}
		b.db = db
	})
	return b.initErr
}
