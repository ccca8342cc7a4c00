package tui

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/browser/browsertest"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/callback"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/clock"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/connection"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/hub"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/store"
)

func newServer(t *testing.T) (*hub.Hub, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := hub.New(context.Background(), hub.Config{
		Backend: store.NewMemoryBackend(),
		Scope:   store.Scope{Tier: store.TierSession},
		Opener:  browsertest.NewOpener(),
		Clock:   clock.Fake(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)),
		Logger:  logger,
	})
	t.Cleanup(h.Close)

	srv, err := callback.NewServer(h, "127.0.0.1:0", logger)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return h, ts
}

// step runs cmd and feeds its message back into the model.
func step(t *testing.T, m Model, cmd tea.Cmd) (Model, tea.Cmd) {
	t.Helper()
	require.NotNil(t, cmd)
	next, cmd := m.Update(cmd())
	return next.(Model), cmd
}

func keyPress(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func online(t *testing.T, m Model) (Model, tea.Cmd) {
	t.Helper()
	m, cmd := step(t, m, m.dial())
	require.True(t, m.online)
	return step(t, m, cmd)
}

func TestNew(t *testing.T) {
	m := New(NewClient("http://127.0.0.1:1/"))
	assert.Equal(t, "http://127.0.0.1:1", m.client.BaseURL())
	assert.Equal(t, connection.Services(), m.services)
	assert.Equal(t, "Loading...", m.View())
}

func TestFeed_SnapshotUpdatesModel(t *testing.T) {
	h, ts := newServer(t)
	h.ManuallyMarkConnected(connection.ServiceTrello)

	m := New(NewClient(ts.URL))
	m, _ = online(t, m)
	t.Cleanup(func() { m.feed.Close() })

	assert.Equal(t, h.Scope().Key(), m.status.Scope)
	assert.Equal(t, connection.StatusConnected, m.status.Services[connection.ServiceTrello])
	assert.Empty(t, m.lastSeen)
}

func TestMarkKey_ChangeArrivesOnFeed(t *testing.T) {
	h, ts := newServer(t)
	m := New(NewClient(ts.URL))
	m, wait := online(t, m)
	t.Cleanup(func() { m.feed.Close() })

	next, action := m.Update(keyPress('m'))
	m = next.(Model)
	m, _ = step(t, m, action)
	assert.Equal(t, "marked slack connected", m.statusMsg)
	assert.Equal(t, connection.StatusConnected, h.Status(connection.ServiceSlack))

	m, _ = step(t, m, wait)
	assert.Equal(t, connection.StatusConnected, m.status.Services[connection.ServiceSlack])
	assert.Contains(t, m.lastSeen, "slack: disconnected -> connected (manual)")
}

func TestConnectKey_UsesSelectedService(t *testing.T) {
	h, ts := newServer(t)
	m := New(NewClient(ts.URL))

	next, _ := m.Update(keyPress('j'))
	m = next.(Model)
	assert.Equal(t, connection.ServiceTrello, m.current())

	// No authorization endpoint is configured, so the attempt ends in error.
	next, action := m.Update(keyPress('c'))
	m = next.(Model)
	m, _ = step(t, m, action)
	assert.Equal(t, "opened trello authorization", m.statusMsg)
	assert.Equal(t, connection.StatusError, h.Status(connection.ServiceTrello))
}

func TestResetKey(t *testing.T) {
	h, ts := newServer(t)
	h.ManuallyMarkConnected(connection.ServiceSlack)
	m := New(NewClient(ts.URL))

	next, action := m.Update(keyPress('r'))
	m = next.(Model)
	m, _ = step(t, m, action)
	assert.Equal(t, "reset all connections", m.statusMsg)
	assert.Equal(t, connection.StatusDisconnected, h.Status(connection.ServiceSlack))
}

func TestDialFailure_SchedulesReconnect(t *testing.T) {
	_, ts := newServer(t)
	base := ts.URL
	ts.Close()

	m := New(NewClient(base))
	m, cmd := step(t, m, m.dial())
	assert.False(t, m.online)
	assert.Error(t, m.err)
	assert.NotNil(t, cmd)

	next, cmd := m.Update(reconnectMsg{})
	assert.NotNil(t, cmd)
	m = next.(Model)

	next, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 10})
	assert.Contains(t, ansi.Strip(next.View()), "offline")
}

func TestFeedClosed_GoesOffline(t *testing.T) {
	m := New(NewClient("http://127.0.0.1:1"))
	m.online = true

	next, cmd := m.Update(feedClosedMsg{err: errors.New("eof")})
	m = next.(Model)
	assert.False(t, m.online)
	assert.Nil(t, m.feed)
	assert.NotNil(t, cmd)
}

func TestStatusMessageExpires(t *testing.T) {
	m := New(NewClient("http://127.0.0.1:1"))
	next, _ := m.Update(actionDoneMsg{action: "first"})
	m = next.(Model)
	next, _ = m.Update(actionDoneMsg{action: "second", err: errors.New("boom")})
	m = next.(Model)
	assert.Equal(t, "second failed: boom", m.statusMsg)

	// A stale clear does not wipe the newer message.
	next, _ = m.Update(statusClearMsg{seq: 1})
	m = next.(Model)
	assert.Equal(t, "second failed: boom", m.statusMsg)

	next, _ = m.Update(statusClearMsg{seq: 2})
	assert.Empty(t, next.(Model).statusMsg)
}

func TestView(t *testing.T) {
	m := New(NewClient("http://127.0.0.1:1"))
	m.online = true
	m.status = callback.StatusResponse{
		Scope: "hrconnect:local:anon:connections",
		Services: connection.State{
			connection.ServiceSlack:  connection.StatusDetecting,
			connection.ServiceTrello: connection.StatusConnected,
		},
		Pending: []connection.Service{connection.ServiceSlack},
	}
	next, _ := m.Update(tea.WindowSizeMsg{Width: 60, Height: 12})

	view := ansi.Strip(next.View())
	assert.Contains(t, view, "hrconnect - integrations")
	assert.Contains(t, view, "detecting")
	assert.Contains(t, view, "connected")
	assert.Contains(t, view, "mark connected")
	for _, line := range strings.Split(view, "\n") {
		assert.LessOrEqual(t, ansi.StringWidth(line), 60)
	}
}

func TestHelpToggle(t *testing.T) {
	m := New(NewClient("http://127.0.0.1:1"))
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 20})
	next, _ = next.Update(keyPress('?'))
	assert.Contains(t, next.View(), "Keyboard Shortcuts")

	next, _ = next.Update(keyPress('x'))
	assert.NotContains(t, next.View(), "Keyboard Shortcuts")

	_, cmd := next.Update(keyPress('q'))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
