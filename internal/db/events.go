package db

import (
	"context"
	"fmt"
	"time"
)

// Event is one recorded status change.
type Event struct {
	Timestamp time.Time
	ScopeKey  string
	Service   string
	From      string
	To        string
	Reason    string
}

// RecordEvent appends a status change to the event log.
func (d *DB) RecordEvent(ctx context.Context, e Event) error {
	if d == nil || d.conn == nil {
		return fmt.Errorf("db is nil")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO connection_events (timestamp, scope_key, service, from_status, to_status, reason)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Timestamp.UTC().Format(time.RFC3339Nano), e.ScopeKey, e.Service, e.From, e.To, e.Reason)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events for a scope, newest first.
func (d *DB) RecentEvents(ctx context.Context, scopeKey string, limit int) ([]Event, error) {
	if d == nil || d.conn == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.conn.QueryContext(ctx,
		`SELECT timestamp, scope_key, service, from_status, to_status, COALESCE(reason, '')
		 FROM connection_events WHERE scope_key = ?
		 ORDER BY id DESC LIMIT ?`, scopeKey, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var ts string
		if err := rows.Scan(&ts, &e.ScopeKey, &e.Service, &e.From, &e.To, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Timestamp = parsed
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
