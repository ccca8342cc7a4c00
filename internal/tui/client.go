package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/callback"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/connection"
)

// Client talks to a running hrconnect server.
type Client struct {
	base   string
	http   *http.Client
	dialer *websocket.Dialer
}

// NewClient returns a client for the server at base, e.g.
// "http://127.0.0.1:8765".
func NewClient(base string) *Client {
	return &Client{
		base:   strings.TrimRight(base, "/"),
		http:   &http.Client{Timeout: 30 * time.Second},
		dialer: &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
	}
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string { return c.base }

// Status fetches the current snapshot.
func (c *Client) Status(ctx context.Context) (callback.StatusResponse, error) {
	var out callback.StatusResponse
	err := c.do(ctx, http.MethodGet, "/status", &out)
	return out, err
}

// ConnectPopup asks the server to open an authorization window for svc.
func (c *Client) ConnectPopup(ctx context.Context, svc connection.Service) (connection.Status, error) {
	var out callback.ServiceResponse
	err := c.do(ctx, http.MethodPost, "/connect/"+url.PathEscape(string(svc))+"/popup", &out)
	return out.Status, err
}

// MarkConnected marks svc connected.
func (c *Client) MarkConnected(ctx context.Context, svc connection.Service) (connection.Status, error) {
	var out callback.ServiceResponse
	err := c.do(ctx, http.MethodPost, "/status/"+url.PathEscape(string(svc))+"/connected", &out)
	return out.Status, err
}

// Reset disconnects every service.
func (c *Client) Reset(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/reset", nil)
}

func (c *Client) do(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var e callback.ErrorResponse
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, e.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// Feed is an open status feed.
type Feed struct {
	conn *websocket.Conn
}

// Dial opens the server's status feed.
func (c *Client) Dial(ctx context.Context) (*Feed, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return nil, fmt.Errorf("parsing server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dialing status feed: %w", err)
	}
	return &Feed{conn: conn}, nil
}

// Next blocks for the next frame.
func (f *Feed) Next() (callback.FeedFrame, error) {
	var frame callback.FeedFrame
	if err := f.conn.ReadJSON(&frame); err != nil {
		return callback.FeedFrame{}, err
	}
	return frame, nil
}

// Close closes the feed.
func (f *Feed) Close() error {
	if f == nil {
		return nil
	}
	return f.conn.Close()
}
