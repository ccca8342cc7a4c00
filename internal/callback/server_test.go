package callback

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/browser/browsertest"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/clock"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/connection"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/connector"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/hub"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/store"
)

type fixture struct {
	hub    *hub.Hub
	server *Server
	http   *httptest.Server
	opener *browsertest.Opener
	clock  *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		opener: browsertest.NewOpener(),
		clock:  clock.Fake(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)),
	}
	conn := connector.New("http://127.0.0.1:8765", map[connection.Service]connector.Endpoint{
		connection.ServiceSlack:  {ClientID: "c1", AuthURL: "https://slack.com/oauth/v2/authorize"},
		connection.ServiceTrello: {AuthURL: "https://trello.com/1/authorize"},
	}, nil)
	f.hub = hub.New(context.Background(), hub.Config{
		Backend:   store.NewMemoryBackend(),
		Scope:     store.Scope{Tier: store.TierLocal, UserID: "u-1"},
		Opener:    f.opener,
		Connector: conn,
		Clock:     f.clock,
		Logger:    logger,
	})
	t.Cleanup(f.hub.Close)

	srv, err := NewServer(f.hub, "127.0.0.1:0", logger)
	require.NoError(t, err)
	f.server = srv
	f.http = httptest.NewServer(srv.Handler())
	t.Cleanup(f.http.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.http.URL+path, rdr)
	require.NoError(t, err)
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (f *fixture) openPopup(t *testing.T, svc connection.Service) string {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/connect/"+string(svc)+"/popup", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[ServiceResponse](t, resp)
	require.Equal(t, connection.StatusDetecting, got.Status)

	u, err := url.Parse(f.opener.Last().OpenedURL())
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[HealthResponse](t, resp)
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, f.hub.Scope().Key(), got.Scope)
}

func TestStatus_ReportsEveryService(t *testing.T) {
	f := newFixture(t)
	f.hub.ManuallyMarkConnected(connection.ServiceTrello)

	resp := f.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[StatusResponse](t, resp)
	assert.Equal(t, connection.StatusDisconnected, got.Services[connection.ServiceSlack])
	assert.Equal(t, connection.StatusConnected, got.Services[connection.ServiceTrello])
	assert.Empty(t, got.Pending)
}

func TestConnectPopup_ArmsDetection(t *testing.T) {
	f := newFixture(t)
	state := f.openPopup(t, connection.ServiceSlack)

	assert.NotEmpty(t, state)
	assert.Equal(t, []connection.Service{connection.ServiceSlack}, f.hub.Pending())
}

func TestConnectPopup_Blocked(t *testing.T) {
	f := newFixture(t)
	f.opener.SetBlocked(true)

	resp := f.do(t, http.MethodPost, "/connect/slack/popup", `{"url":"https://example.test/auth"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[ServiceResponse](t, resp)
	assert.Equal(t, connection.StatusError, got.Status)
	assert.Zero(t, f.clock.PendingCount())
}

func TestUnknownService(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/connect/jira", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	got := decode[ErrorResponse](t, resp)
	assert.Contains(t, got.Error, "unknown service")
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		accepted bool
		applied  bool
		want     connection.Status
	}{
		{
			name:     "success",
			body:     `{"type":"CONNECTION_SUCCESS","service":"slack"}`,
			accepted: true,
			applied:  true,
			want:     connection.StatusConnected,
		},
		{
			name:     "failure",
			body:     `{"type":"CONNECTION_FAILURE","service":"slack","detail":"denied"}`,
			accepted: true,
			applied:  true,
			want:     connection.StatusError,
		},
		{
			name: "unknown type",
			body: `{"type":"HELLO","service":"slack"}`,
			want: connection.StatusDetecting,
		},
		{
			name: "unknown service",
			body: `{"type":"CONNECTION_SUCCESS","service":"jira"}`,
			want: connection.StatusDetecting,
		},
		{
			name: "missing service",
			body: `{"type":"CONNECTION_SUCCESS"}`,
			want: connection.StatusDetecting,
		},
		{
			name: "not json",
			body: `hello`,
			want: connection.StatusDetecting,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.openPopup(t, connection.ServiceSlack)

			resp := f.do(t, http.MethodPost, "/message", tt.body)
			require.Equal(t, http.StatusAccepted, resp.StatusCode)
			got := decode[MessageResponse](t, resp)
			assert.Equal(t, tt.accepted, got.Accepted)
			assert.Equal(t, tt.applied, got.Applied)
			assert.Equal(t, tt.want, f.hub.Status(connection.ServiceSlack))
		})
	}
}

func TestMessage_DuplicateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.openPopup(t, connection.ServiceSlack)

	body := `{"type":"CONNECTION_SUCCESS","service":"slack"}`
	first := decode[MessageResponse](t, f.do(t, http.MethodPost, "/message", body))
	second := decode[MessageResponse](t, f.do(t, http.MethodPost, "/message", body))

	assert.True(t, first.Applied)
	assert.False(t, second.Applied)
	assert.Equal(t, connection.StatusConnected, f.hub.Status(connection.ServiceSlack))
	assert.Zero(t, f.clock.PendingCount())
}

func TestCallback_Success(t *testing.T) {
	f := newFixture(t)
	state := f.openPopup(t, connection.ServiceSlack)

	resp := f.do(t, http.MethodGet, "/callback?service=slack&code=abc&state="+state, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "<title>Connection successful</title>")
	assert.Equal(t, connection.StatusConnected, f.hub.Status(connection.ServiceSlack))
	assert.True(t, f.opener.Last().Closed())
}

func TestCallback_Failure(t *testing.T) {
	f := newFixture(t)
	f.openPopup(t, connection.ServiceTrello)

	resp := f.do(t, http.MethodGet, "/callback?service=trello&error=access_denied", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "<title>Connection failed</title>")
	assert.Contains(t, string(body), "access_denied")
	assert.Equal(t, connection.StatusError, f.hub.Status(connection.ServiceTrello))
}

func TestCallback_ForeignRunIgnored(t *testing.T) {
	f := newFixture(t)
	f.openPopup(t, connection.ServiceSlack)

	resp := f.do(t, http.MethodGet, "/callback?service=slack&code=abc&state=someone-else", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, connection.StatusDetecting, f.hub.Status(connection.ServiceSlack))
}

func TestCallback_NoMarkerRedirects(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/callback?service=slack", "")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestCallback_UnknownService(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/callback?service=jira&code=1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPut, "/status/trello", `{"status":"error"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, connection.StatusError, decode[ServiceResponse](t, resp).Status)

	resp = f.do(t, http.MethodPut, "/status/trello", `{"status":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMarkConnectedAndReset(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/status/slack/connected", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, connection.StatusConnected, f.hub.Status(connection.ServiceSlack))

	f.openPopup(t, connection.ServiceTrello)
	resp = f.do(t, http.MethodPost, "/reset", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[StatusResponse](t, resp)
	for _, svc := range connection.Services() {
		assert.Equal(t, connection.StatusDisconnected, got.Services[svc])
	}
	assert.Empty(t, got.Pending)
	assert.Zero(t, f.clock.PendingCount())
}

func TestResume(t *testing.T) {
	f := newFixture(t)
	f.openPopup(t, connection.ServiceSlack)

	resp := f.do(t, http.MethodPost, "/resume?event=focus", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[ResumeResponse](t, resp)
	assert.Equal(t, []connection.Service{connection.ServiceSlack}, got.Resolved)
	assert.Equal(t, connection.StatusConnected, f.hub.Status(connection.ServiceSlack))

	resp = f.do(t, http.MethodPost, "/resume?event=blur", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	f.hub.ManuallyMarkConnected(connection.ServiceSlack)

	resp := f.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `id="status-slack">connected`)
	assert.Contains(t, string(body), `id="status-trello">disconnected`)

	resp = f.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFeed_SnapshotThenChanges(t *testing.T) {
	f := newFixture(t)

	wsURL := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first FeedFrame
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, FrameSnapshot, first.Type)
	assert.Nil(t, first.Change)
	assert.Equal(t, connection.StatusDisconnected, first.Status.Services[connection.ServiceSlack])

	require.Eventually(t, func() bool { return f.server.FeedCount() == 1 }, time.Second, 10*time.Millisecond)
	f.hub.ManuallyMarkConnected(connection.ServiceSlack)

	var next FeedFrame
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, FrameChange, next.Type)
	require.NotNil(t, next.Change)
	assert.Equal(t, connection.ServiceSlack, next.Change.Service)
	assert.Equal(t, connection.StatusConnected, next.Change.To)
	assert.Equal(t, "manual", next.Change.Reason)
	assert.Equal(t, connection.StatusConnected, next.Status.Services[connection.ServiceSlack])
}

func TestShutdown_ClosesFeeds(t *testing.T) {
	f := newFixture(t)

	wsURL := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first FeedFrame
	require.NoError(t, conn.ReadJSON(&first))
	require.Eventually(t, func() bool { return f.server.FeedCount() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.server.Shutdown(ctx))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return f.server.FeedCount() == 0 }, time.Second, 10*time.Millisecond)
}
