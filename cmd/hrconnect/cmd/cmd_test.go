package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/browser"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/config"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/connection"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/db"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/store"
)

// newTestCmd isolates every global the commands read and returns a
// command whose output is captured.
func newTestCmd(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HRCONNECT_HOME", home)

	flagConfig = ""
	flagVerbose = false
	flagUser = ""
	flagLabel = ""
	flagTier = ""
	statusJSON = true
	configForce = false
	historyLimit = 20

	c := &cobra.Command{}
	c.SetContext(context.Background())
	buf := new(bytes.Buffer)
	c.SetOut(buf)
	return c, buf
}

func readStatus(t *testing.T, c *cobra.Command, buf *bytes.Buffer) StatusOutput {
	t.Helper()
	buf.Reset()
	require.NoError(t, runStatus(c, nil))
	var out StatusOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestStatus_DefaultsToDisconnected(t *testing.T) {
	c, buf := newTestCmd(t)

	out := readStatus(t, c, buf)
	assert.Equal(t, "hrconnect:local:anon:connections", out.Scope)
	for _, svc := range connection.Services() {
		assert.Equal(t, connection.StatusDisconnected, out.Services[svc])
	}
}

func TestMarkThenStatusThenReset(t *testing.T) {
	c, buf := newTestCmd(t)

	require.NoError(t, runMark(c, []string{"Slack", "connected"}))
	assert.Equal(t, "slack: disconnected -> connected\n", buf.String())

	out := readStatus(t, c, buf)
	assert.Equal(t, connection.StatusConnected, out.Services[connection.ServiceSlack])
	assert.Equal(t, connection.StatusDisconnected, out.Services[connection.ServiceTrello])

	// The record lives in the state file under the scope key.
	data, err := os.ReadFile(filepath.Join(os.Getenv("HRCONNECT_HOME"), "data", "connections.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hrconnect:local:anon:connections")

	buf.Reset()
	require.NoError(t, runReset(c, nil))
	assert.Contains(t, buf.String(), "Reset all connections")

	out = readStatus(t, c, buf)
	assert.Equal(t, connection.StatusDisconnected, out.Services[connection.ServiceSlack])
}

// setFlag marks name as given on the command line with value.
func setFlag(t *testing.T, c *cobra.Command, name, value string, target *string) {
	t.Helper()
	c.Flags().String(name, "", "")
	require.NoError(t, c.Flags().Set(name, value))
	*target = value
}

func TestMark_ScopesAreIsolated(t *testing.T) {
	c, buf := newTestCmd(t)
	setFlag(t, c, "user", "alice@example.com", &flagUser)
	require.NoError(t, runMark(c, []string{"trello", "connected"}))

	alice := readStatus(t, c, buf)
	assert.NotEqual(t, "hrconnect:local:anon:connections", alice.Scope)
	assert.Equal(t, connection.StatusConnected, alice.Services[connection.ServiceTrello])

	anon := &cobra.Command{}
	anon.SetContext(context.Background())
	anon.SetOut(buf)
	out := readStatus(t, anon, buf)
	assert.Equal(t, "hrconnect:local:anon:connections", out.Scope)
	assert.Equal(t, connection.StatusDisconnected, out.Services[connection.ServiceTrello])
}

func TestMark_RejectsUnknownNames(t *testing.T) {
	c, _ := newTestCmd(t)

	err := runMark(c, []string{"jira", "connected"})
	assert.ErrorIs(t, err, connection.ErrUnknownService)

	err = runMark(c, []string{"slack", "sideways"})
	assert.Error(t, err)
}

func TestSessionTierKeepsNothing(t *testing.T) {
	c, buf := newTestCmd(t)
	setFlag(t, c, "tier", "session", &flagTier)

	require.NoError(t, runMark(c, []string{"slack", "connected"}))

	out := readStatus(t, c, buf)
	assert.Equal(t, "hrconnect:session:anon:connections", out.Scope)
	assert.Equal(t, connection.StatusDisconnected, out.Services[connection.ServiceSlack])

	buf.Reset()
	require.NoError(t, runHistory(c, nil))
	assert.Contains(t, buf.String(), "No history is kept")
}

func TestStatusTable(t *testing.T) {
	var buf bytes.Buffer
	st := connection.NewState()
	st[connection.ServiceSlack] = connection.StatusError
	writeStatusTable(&buf, store.Scope{Tier: store.TierLocal}, st)

	out := buf.String()
	assert.Contains(t, out, "Scope: hrconnect:local:anon:connections")
	assert.Contains(t, out, "slack")
	assert.Contains(t, out, "error")
	assert.Contains(t, out, "trello")
}

func TestIsTerminal_BufferIsNot(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))
	assert.False(t, isTerminal(io.Discard))
}

func TestHistory(t *testing.T) {
	c, buf := newTestCmd(t)

	require.NoError(t, runHistory(c, nil))
	assert.Contains(t, buf.String(), "No status changes recorded")

	d, err := db.OpenAt(db.DefaultPath())
	require.NoError(t, err)
	require.NoError(t, d.RecordEvent(context.Background(), db.Event{
		Timestamp: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
		ScopeKey:  "hrconnect:local:anon:connections",
		Service:   "slack",
		From:      "detecting",
		To:        "connected",
		Reason:    "message:CONNECTION_SUCCESS",
	}))
	require.NoError(t, d.Close())

	buf.Reset()
	require.NoError(t, runHistory(c, nil))
	assert.Contains(t, buf.String(), "slack")
	assert.Contains(t, buf.String(), "message:CONNECTION_SUCCESS")
}

func TestConfigInitShowPath(t *testing.T) {
	c, buf := newTestCmd(t)
	flagConfig = filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, configPathCmd.RunE(c, nil))
	assert.Equal(t, flagConfig+"\n", buf.String())

	buf.Reset()
	require.NoError(t, runConfigInit(c, nil))
	assert.FileExists(t, flagConfig)

	err := runConfigInit(c, nil)
	assert.Error(t, err)
	configForce = true
	assert.NoError(t, runConfigInit(c, nil))

	cfg, err := config.LoadFrom(flagConfig)
	require.NoError(t, err)
	cfg.Services["slack"] = config.ServiceConfig{AuthURL: "https://slack.com/oauth/v2/authorize", ClientSecret: "s3cret"}
	require.NoError(t, cfg.SaveTo(flagConfig))

	buf.Reset()
	require.NoError(t, runConfigShow(c, nil))
	assert.Contains(t, buf.String(), "listen: 127.0.0.1:8765")
	assert.NotContains(t, buf.String(), "s3cret")
}

func TestBuildConnector(t *testing.T) {
	cfg := config.DefaultConfig()
	sc := cfg.Services["slack"]
	sc.ClientID = "client-1"
	cfg.Services["slack"] = sc

	conn := buildConnector(cfg)
	u, err := conn.AuthURL(connection.ServiceSlack, "run-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "https://slack.com/oauth/v2/authorize?"))
	assert.Contains(t, u, "client_id=client-1")
	assert.Contains(t, u, "state=run-1")
	assert.Equal(t, "http://127.0.0.1:8765/callback?service=slack", conn.CallbackURL(connection.ServiceSlack))
}

func TestOpenEventLog_SharesSQLiteBackend(t *testing.T) {
	_, _ = newTestCmd(t)
	cfg := config.DefaultConfig()
	cfg.Store.Backend = store.BackendSQLite
	cfg.Store.Path = filepath.Join(t.TempDir(), "state.db")

	backend, scope, err := openStore(cfg)
	require.NoError(t, err)
	defer backend.Close()

	events, closeFn, err := openEventLog(cfg, backend, scope)
	require.NoError(t, err)
	defer closeFn()
	assert.Same(t, backend.(*store.SQLiteBackend).DB(), events)
}

func TestBlockedOpener(t *testing.T) {
	w, err := blockedOpener{}.Open(context.Background(), "https://example.test", browser.DefaultFeatures())
	assert.Nil(t, w)
	assert.Error(t, err)
}

func TestHubConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	hc := hubConfig(cfg, store.NewMemoryBackend(), store.Scope{}, blockedOpener{}, nil)
	assert.Equal(t, cfg.Thresholds(), hc.Thresholds)
	assert.Equal(t, 600, hc.Features.Width)
	assert.Equal(t, connection.DefaultFallbackTimeout, hc.FallbackTimeout)
	assert.NotNil(t, hc.Connector)
}
