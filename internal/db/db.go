// Package db opens the local sqlite database that backs the local
// persistence tier and the connection event log.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	path string
	conn *sql.DB
}

func Open() (*DB, error) {
	return OpenAt(DefaultPath())
}

// OpenAt opens (creating if needed) the database at path and applies
// pending migrations. A corrupt file is moved aside and recreated.
func OpenAt(path string) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("path is required")
	}

	clean := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(clean), 0700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	conn, err := openAndInit(clean)
	if err == nil {
		return &DB{path: clean, conn: conn}, nil
	}
	if !isCorruptSQLiteError(err) {
		return nil, err
	}

	if _, statErr := os.Stat(clean); statErr == nil {
		backupPath := clean + ".corrupt." + time.Now().UTC().Format("20060102T150405Z")
		if renameErr := os.Rename(clean, backupPath); renameErr != nil {
			return nil, fmt.Errorf("db appears corrupt (%v), and rename failed: %w", err, renameErr)
		}
		for _, suffix := range []string{"-wal", "-shm"} {
			if _, statErr := os.Stat(clean + suffix); statErr == nil {
				if renameErr := os.Rename(clean+suffix, backupPath+suffix); renameErr != nil {
					return nil, fmt.Errorf("db appears corrupt (%v), and sidecar rename failed: %w", err, renameErr)
				}
			}
		}
	}

	conn, err = openAndInit(clean)
	if err != nil {
		return nil, err
	}
	return &DB{path: clean, conn: conn}, nil
}

func (d *DB) Close() error {
	if d == nil || d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

func (d *DB) Conn() *sql.DB {
	if d == nil {
		return nil
	}
	return d.conn
}

func (d *DB) Path() string {
	if d == nil {
		return ""
	}
	return d.path
}

// DefaultPath honors HRCONNECT_HOME, then falls back to ~/.hrconnect.
func DefaultPath() string {
	if home := os.Getenv("HRCONNECT_HOME"); home != "" {
		return filepath.Join(home, "data", "hrconnect.db")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".hrconnect", "data", "hrconnect.db")
	}
	return filepath.Join(homeDir, ".hrconnect", "data", "hrconnect.db")
}

func openAndInit(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", "file:"+filepath.ToSlash(path)+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// PRAGMAs are per-connection; keep a single shared connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	initErr := func() error {
		if err := conn.Ping(); err != nil {
			return fmt.Errorf("ping: %w", err)
		}
		if _, err := conn.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
			return fmt.Errorf("set journal_mode=WAL: %w", err)
		}
		if _, err := conn.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
			return fmt.Errorf("set busy_timeout: %w", err)
		}
		return RunMigrations(conn)
	}()
	if initErr != nil {
		_ = conn.Close()
		return nil, initErr
	}
	return conn, nil
}

func isCorruptSQLiteError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrInvalid) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "file is not a database") ||
		strings.Contains(msg, "malformed")
}
