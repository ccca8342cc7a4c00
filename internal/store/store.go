package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/connection"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/db"
)

// Backend names accepted by Options.Backend.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	// Backend is one of the Backend* names. Empty picks the tier default:
	// memory for session, file for local, postgres for shared.
	Backend string
	// Path is the file or sqlite location for the local tier.
	Path string
	// DSN is the postgres connection string for the shared tier.
	DSN string
}

// OpenBackend returns the backend serving tier.
func OpenBackend(tier Tier, opts Options) (Backend, error) {
	name := strings.ToLower(strings.TrimSpace(opts.Backend))
	if tier == TierSession {
		name = BackendMemory
	}
	if name == "" {
		switch tier {
		case TierShared:
			name = BackendPostgres
		default:
			name = BackendFile
		}
	}

	switch name {
	case BackendMemory:
		return NewMemoryBackend(), nil
	case BackendFile:
		return NewFileBackend(opts.Path), nil
	case BackendSQLite:
		path := opts.Path
		if path == "" {
			path = db.DefaultPath()
		}
		d, err := db.OpenAt(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return NewSQLiteBackend(d), nil
	case BackendPostgres:
		return NewPostgresBackend(opts.DSN)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

// Scoped persists one scope's connection state through a Backend. It
// satisfies connection.Store: failures are logged once and the scope
// degrades to process memory for the rest of the session.
type Scoped struct {
	scope   Scope
	logger  *slog.Logger
	backend Backend

	mu       sync.Mutex
	degraded bool
	fallback *MemoryBackend
	written  connection.State
}

// NewScoped binds backend to scope. A nil logger uses slog.Default().
func NewScoped(backend Backend, scope Scope, logger *slog.Logger) *Scoped {
	if logger == nil {
		logger = slog.Default()
	}
	if backend == nil {
		backend = NewMemoryBackend()
	}
	return &Scoped{
		scope:    scope,
		logger:   logger,
		backend:  backend,
		fallback: NewMemoryBackend(),
	}
}

// Scope returns the bound scope.
func (s *Scoped) Scope() Scope { return s.scope }

// Degraded reports whether the scope fell back to memory.
func (s *Scoped) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Load reads the scope's record. A missing or unreadable record yields
// every service disconnected.
func (s *Scoped) Load(ctx context.Context) connection.State {
	key := s.scope.Key()
	record, ok, err := s.active().Get(ctx, key)
	if err != nil {
		s.degrade("load", err)
		record, ok, _ = s.fallback.Get(ctx, key)
	}
	if !ok {
		return connection.NewState()
	}

	st, err := DecodeState(record)
	if err != nil {
		s.logger.Warn("discarding unreadable connection record",
			"scope", key,
			"error", err,
			"action", "decode_skip")
		return connection.NewState()
	}
	return st
}

// Save writes st as the scope's record. An all-disconnected state deletes
// the record instead.
func (s *Scoped) Save(ctx context.Context, st connection.State) {
	if st.IsDefault() {
		s.Purge(ctx)
		return
	}
	record, err := EncodeState(st)
	if err != nil {
		s.logger.Error("encoding connection record", "error", err)
		return
	}
	key := s.scope.Key()
	if err := s.active().Put(ctx, key, record); err != nil {
		s.degrade("save", err)
		_ = s.fallback.Put(ctx, key, record)
	}
	s.remember(st)
}

// Purge deletes the scope's record.
func (s *Scoped) Purge(ctx context.Context) {
	key := s.scope.Key()
	if err := s.active().Delete(ctx, key); err != nil {
		s.degrade("purge", err)
	}
	_ = s.fallback.Delete(ctx, key)
	s.remember(connection.NewState())
}

// External re-reads the record and reports whether it differs from what
// this Scoped last wrote, meaning another process changed it.
func (s *Scoped) External(ctx context.Context) (connection.State, bool) {
	st := s.Load(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.written != nil && s.written.Equal(st) {
		return st, false
	}
	s.written = st.Clone()
	return st, true
}

func (s *Scoped) remember(st connection.State) {
	s.mu.Lock()
	s.written = st.Clone()
	s.mu.Unlock()
}

func (s *Scoped) active() Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		return s.fallback
	}
	return s.backend
}

func (s *Scoped) degrade(op string, err error) {
	s.mu.Lock()
	already := s.degraded
	s.degraded = true
	s.mu.Unlock()
	if already {
		return
	}
	level := slog.LevelWarn
	if !errors.Is(err, ErrUnavailable) {
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, "connection store unavailable, keeping state in memory",
		"scope", s.scope.Key(),
		"op", op,
		"error", err,
		"action", "degrade")
}

// EncodeState renders st as {"slack":"connected",...}.
func EncodeState(st connection.State) ([]byte, error) {
	out := make(map[string]string, len(connection.Services()))
	for _, svc := range connection.Services() {
		out[string(svc)] = st[svc].String()
	}
	return json.Marshal(out)
}

// DecodeState parses a record. Unknown services are ignored; known
// services with an unknown status are left disconnected.
func DecodeState(record []byte) (connection.State, error) {
	var raw map[string]string
	if err := json.Unmarshal(record, &raw); err != nil {
		return nil, fmt.Errorf("parsing connection record: %w", err)
	}
	st := connection.NewState()
	for name, text := range raw {
		svc, err := connection.ParseService(name)
		if err != nil {
			continue
		}
		status, err := connection.ParseStatus(text)
		if err != nil {
			continue
		}
		st[svc] = status
	}
	return st, nil
}
