// Package callback serves the HTTP surface of a running tracker: the
// return-navigation page authorization windows land on, the completion
// message endpoint, status actions and a live status feed.
package callback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/browser"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/connection"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/hub"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/popup"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// Server exposes a Hub over HTTP.
type Server struct {
	hub       *hub.Hub
	server    *http.Server
	validator *messageValidator
	upgrader  websocket.Upgrader
	logger    *slog.Logger
	started   time.Time

	mu      sync.Mutex
	feeds   map[*websocket.Conn]struct{}
	closing bool
}

// NewServer creates a server for h listening on addr.
func NewServer(h *hub.Hub, addr string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	validator, err := newMessageValidator()
	if err != nil {
		return nil, err
	}

	s := &Server{
		hub:       h,
		validator: validator,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  4096,
		},
		logger:  logger,
		started: time.Now(),
		feeds:   make(map[*websocket.Conn]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /callback", s.handleCallback)
	mux.HandleFunc("POST /message", s.handleMessage)
	mux.HandleFunc("POST /connect/{service}", s.handleConnect)
	mux.HandleFunc("POST /connect/{service}/popup", s.handleConnectPopup)
	mux.HandleFunc("PUT /status/{service}", s.handleUpdateStatus)
	mux.HandleFunc("POST /status/{service}/connected", s.handleMarkConnected)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("POST /resume", s.handleResume)
	mux.HandleFunc("GET /ws", s.handleFeed)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.withLogging(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Connect checks can take a while; feeds reset their own deadlines.
		WriteTimeout: 60 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.server.Addr }

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting callback server", "addr", ln.Addr().String())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and closes every status feed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	feeds := make([]*websocket.Conn, 0, len(s.feeds))
	for c := range s.feeds {
		feeds = append(feeds, c)
	}
	s.mu.Unlock()

	for _, c := range feeds {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
			time.Now().Add(time.Second))
		c.Close()
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

// HealthResponse is the response from /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Scope     string    `json:"scope"`
	Uptime    string    `json:"uptime,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Scope:     s.hub.Scope().Key(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	})
}

// StatusResponse is the response from /status and the body of every feed
// frame.
type StatusResponse struct {
	Scope    string               `json:"scope"`
	Services connection.State     `json:"services"`
	Pending  []connection.Service `json:"pending"`
}

func (s *Server) snapshot() StatusResponse {
	pending := s.hub.Pending()
	if pending == nil {
		pending = []connection.Service{}
	}
	return StatusResponse{
		Scope:    s.hub.Scope().Key(),
		Services: s.hub.State(),
		Pending:  pending,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

// ServiceResponse reports one service after an action.
type ServiceResponse struct {
	Service connection.Service `json:"service"`
	Status  connection.Status  `json:"status"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.pathService(w, r)
	if !ok {
		return
	}
	status := s.hub.ConnectService(r.Context(), svc)
	writeJSON(w, http.StatusOK, ServiceResponse{Service: svc, Status: status})
}

// PopupRequest is the optional body of /connect/{service}/popup.
type PopupRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleConnectPopup(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.pathService(w, r)
	if !ok {
		return
	}
	var req PopupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	// The run outlives the request.
	status := s.hub.ConnectServiceViaPopup(context.WithoutCancel(r.Context()), svc, req.URL)
	writeJSON(w, http.StatusOK, ServiceResponse{Service: svc, Status: status})
}

// UpdateRequest is the body of PUT /status/{service}.
type UpdateRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.pathService(w, r)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	status, err := connection.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.hub.UpdateConnectionStatus(svc, status)
	writeJSON(w, http.StatusOK, ServiceResponse{Service: svc, Status: s.hub.Status(svc)})
}

func (s *Server) handleMarkConnected(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.pathService(w, r)
	if !ok {
		return
	}
	s.hub.ManuallyMarkConnected(svc)
	writeJSON(w, http.StatusOK, ServiceResponse{Service: svc, Status: s.hub.Status(svc)})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.hub.ResetAllConnections()
	writeJSON(w, http.StatusOK, s.snapshot())
}

// ResumeResponse lists the services a host event resolved.
type ResumeResponse struct {
	Event    browser.HostEvent    `json:"event"`
	Resolved []connection.Service `json:"resolved"`
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	ev, err := browser.ParseHostEvent(r.URL.Query().Get("event"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resolved := s.hub.HandleHostEvent(ev)
	if resolved == nil {
		resolved = []connection.Service{}
	}
	writeJSON(w, http.StatusOK, ResumeResponse{Event: ev, Resolved: resolved})
}

// MessageResponse acknowledges a posted completion message.
type MessageResponse struct {
	Accepted bool   `json:"accepted"`
	Applied  bool   `json:"applied"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("reading body: %w", err))
		return
	}
	msg, err := s.validator.decode(raw)
	if err != nil {
		// Foreign or malformed messages are ignored, not rejected.
		s.logger.Debug("message ignored", "error", err, "action", "ignore")
		writeJSON(w, http.StatusAccepted, MessageResponse{Accepted: false, Error: err.Error()})
		return
	}
	applied := s.hub.DeliverMessage(msg)
	writeJSON(w, http.StatusAccepted, MessageResponse{Accepted: true, Applied: applied})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	outcome, ok := callbackOutcome(q)
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	svc, err := connection.ParseService(q.Get("service"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	msg := popup.Message{Type: outcome, Service: svc, RunID: q.Get("state")}
	if outcome == popup.MessageFailure {
		msg.Detail = q.Get("error")
	}
	applied := s.hub.DeliverMessage(msg)
	s.logger.Info("return navigation",
		"service", svc,
		"run_id", msg.RunID,
		"type", string(outcome),
		"applied", applied,
		"action", "callback")

	page := resultPage{Service: string(svc), Success: outcome == popup.MessageSuccess, Detail: msg.Detail}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := resultTemplate.Execute(w, page); err != nil {
		s.logger.Debug("rendering result page", "error", err)
	}
}

// callbackOutcome reads the return-navigation query. Any positive marker
// wins over an error.
func callbackOutcome(q map[string][]string) (popup.MessageType, bool) {
	for _, key := range []string{"success", "connected", "authorized", "code"} {
		if _, ok := q[key]; ok {
			return popup.MessageSuccess, true
		}
	}
	if _, ok := q["error"]; ok {
		return popup.MessageFailure, true
	}
	return "", false
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot()
	rows := make([]dashboardRow, 0, len(snap.Services))
	pending := make(map[connection.Service]bool, len(snap.Pending))
	for _, svc := range snap.Pending {
		pending[svc] = true
	}
	for _, svc := range connection.Services() {
		rows = append(rows, dashboardRow{
			Service: string(svc),
			Status:  snap.Services[svc].String(),
			Pending: pending[svc],
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := dashboardTemplate.Execute(w, dashboardPage{Scope: snap.Scope, Rows: rows}); err != nil {
		s.logger.Debug("rendering dashboard", "error", err)
	}
}

func (s *Server) pathService(w http.ResponseWriter, r *http.Request) (connection.Service, bool) {
	svc, err := connection.ParseService(r.PathValue("service"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return "", false
	}
	return svc, true
}

// decodeBody reads an optional JSON body into v. An empty body leaves v
// untouched.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, ErrorResponse{Error: err.Error()})
}
