package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/connection"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/db"
)

type failingBackend struct {
	calls int
}

func (f *failingBackend) Get(context.Context, string) ([]byte, bool, error) {
	f.calls++
	return nil, false, ErrUnavailable
}

func (f *failingBackend) Put(context.Context, string, []byte) error {
	f.calls++
	return ErrUnavailable
}

func (f *failingBackend) Delete(context.Context, string) error {
	f.calls++
	return ErrUnavailable
}

func (f *failingBackend) Close() error { return nil }

func TestScopeKey(t *testing.T) {
	tests := []struct {
		name  string
		scope Scope
		want  string
	}{
		{"anonymous default", Scope{}, "hrconnect:local:anon:connections"},
		{"session tier", Scope{Tier: TierSession, Label: "connections"}, "hrconnect:session:anon:connections"},
		{"blank user is anonymous", Scope{Tier: TierShared, UserID: "  "}, "hrconnect:shared:anon:connections"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.scope.Key())
		})
	}
}

func TestScopeKey_HashesUserID(t *testing.T) {
	key := Scope{Tier: TierLocal, UserID: "alice@example.com"}.Key()
	assert.NotContains(t, key, "alice")
	assert.True(t, strings.HasPrefix(key, "hrconnect:local:u"))

	other := Scope{Tier: TierLocal, UserID: "bob@example.com"}.Key()
	assert.NotEqual(t, key, other)
	assert.Equal(t, key, Scope{Tier: TierLocal, UserID: "alice@example.com"}.Key())
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier("")
	require.NoError(t, err)
	assert.Equal(t, TierLocal, tier)

	tier, err = ParseTier("Shared")
	require.NoError(t, err)
	assert.Equal(t, TierShared, tier)

	_, err = ParseTier("cloud")
	assert.Error(t, err)
}

func TestScoped_RoundTripPerScope(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	alice := NewScoped(backend, Scope{Tier: TierLocal, UserID: "alice"}, nil)
	bob := NewScoped(backend, Scope{Tier: TierLocal, UserID: "bob"}, nil)

	st := connection.NewState()
	st[connection.ServiceSlack] = connection.StatusConnected
	alice.Save(ctx, st)

	assert.Equal(t, connection.StatusConnected, alice.Load(ctx)[connection.ServiceSlack])
	assert.True(t, bob.Load(ctx).IsDefault(), "scopes must not share state")
}

func TestScoped_DefaultStateDeletesRecord(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s := NewScoped(backend, Scope{}, nil)

	st := connection.NewState()
	st[connection.ServiceTrello] = connection.StatusError
	s.Save(ctx, st)
	require.Equal(t, 1, backend.Len())

	s.Save(ctx, connection.NewState())
	assert.Equal(t, 0, backend.Len())
}

func TestScoped_Purge(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s := NewScoped(backend, Scope{}, nil)

	st := connection.NewState()
	st[connection.ServiceSlack] = connection.StatusConnected
	s.Save(ctx, st)
	s.Purge(ctx)

	assert.Equal(t, 0, backend.Len())
	assert.True(t, s.Load(ctx).IsDefault())
}

func TestScoped_DegradesOnceToMemory(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	backend := &failingBackend{}
	s := NewScoped(backend, Scope{}, logger)

	st := connection.NewState()
	st[connection.ServiceSlack] = connection.StatusConnected
	s.Save(ctx, st)
	s.Save(ctx, st)

	assert.True(t, s.Degraded())
	assert.Equal(t, 1, backend.calls, "failed backend should not be retried")
	assert.Equal(t, 1, strings.Count(logs.String(), "action=degrade"))
	assert.Equal(t, connection.StatusConnected, s.Load(ctx)[connection.ServiceSlack])
}

func TestDecodeState_IgnoresUnknownEntries(t *testing.T) {
	st, err := DecodeState([]byte(`{"slack":"connected","jira":"connected","trello":"bogus"}`))
	require.NoError(t, err)
	assert.Equal(t, connection.StatusConnected, st[connection.ServiceSlack])
	assert.Equal(t, connection.StatusDisconnected, st[connection.ServiceTrello])
	assert.Len(t, st, len(connection.Services()))
}

func TestScoped_CorruptRecordLoadsDefault(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	scope := Scope{}
	require.NoError(t, backend.Put(ctx, scope.Key(), []byte("{not json")))

	s := NewScoped(backend, scope, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	assert.True(t, s.Load(ctx).IsDefault())
	assert.False(t, s.Degraded())
}

func TestFileBackend_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "connections.json")

	first := NewFileBackend(path)
	require.NoError(t, first.Put(ctx, "a", []byte(`{"slack":"connected"}`)))
	require.NoError(t, first.Put(ctx, "b", []byte(`{"trello":"error"}`)))

	second := NewFileBackend(path)
	rec, ok, err := second.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"slack":"connected"}`, string(rec))

	require.NoError(t, second.Delete(ctx, "a"))
	_, ok, err = first.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileBackend_RejectsNewerVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99, "records": {}}`), 0600))

	_, _, err := NewFileBackend(path).Get(context.Background(), "a")
	assert.Error(t, err)
}

func TestDefaultFilePath_HonorsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HRCONNECT_HOME", home)
	assert.Equal(t, filepath.Join(home, "data", "connections.json"), DefaultFilePath())
}

func TestSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	d, err := db.OpenAt(filepath.Join(t.TempDir(), "hrconnect.db"))
	require.NoError(t, err)
	b := NewSQLiteBackend(d)
	t.Cleanup(func() { _ = b.Close() })

	_, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Put(ctx, "k", []byte(`{"slack":"detecting"}`)))
	require.NoError(t, b.Put(ctx, "k", []byte(`{"slack":"connected"}`)))

	rec, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"slack":"connected"}`, string(rec))

	require.NoError(t, b.Delete(ctx, "k"))
	_, ok, err = b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenBackend(t *testing.T) {
	dir := t.TempDir()

	b, err := OpenBackend(TierSession, Options{Backend: BackendFile})
	require.NoError(t, err)
	assert.IsType(t, &MemoryBackend{}, b)

	b, err = OpenBackend(TierLocal, Options{Path: filepath.Join(dir, "c.json")})
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, b)

	b, err = OpenBackend(TierLocal, Options{Backend: BackendSQLite, Path: filepath.Join(dir, "c.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteBackend{}, b)
	require.NoError(t, b.Close())

	_, err = OpenBackend(TierShared, Options{})
	assert.Error(t, err, "shared tier needs a dsn")

	_, err = OpenBackend(TierLocal, Options{Backend: "redis"})
	assert.Error(t, err)
}

func TestPostgresBackend_OpenFailureIsUnavailable(t *testing.T) {
	b, err := NewPostgresBackend("postgres://example.invalid/hr")
	require.NoError(t, err)
	b.openDB = func(string, string) (*sql.DB, error) {
		return nil, errors.New("dial refused")
	}

	_, _, err = b.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrUnavailable)

	// The init result is cached.
	err = b.Put(context.Background(), "k", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestScoped_ExternalSkipsOwnWrites(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	scope := Scope{}
	s := NewScoped(backend, scope, nil)

	st := connection.NewState()
	st[connection.ServiceSlack] = connection.StatusConnected
	s.Save(ctx, st)

	_, changed := s.External(ctx)
	assert.False(t, changed, "own write is not external")

	other := NewScoped(backend, scope, nil)
	st[connection.ServiceTrello] = connection.StatusError
	other.Save(ctx, st)

	got, changed := s.External(ctx)
	assert.True(t, changed)
	assert.Equal(t, connection.StatusError, got[connection.ServiceTrello])

	_, changed = s.External(ctx)
	assert.False(t, changed)
}
