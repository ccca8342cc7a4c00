// Package hub is the surface the UI talks to. Every call maps failures to a
// status; nothing is returned as an error to the caller.
package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/browser"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/clock"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/connection"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/connector"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/db"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/detect"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/popup"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/resume"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/store"
)

// EventRecorder keeps a history of status changes.
type EventRecorder interface {
	RecordEvent(ctx context.Context, e db.Event) error
}

// Config configures a Hub.
type Config struct {
	// Backend persists every scope. Defaults to a MemoryBackend.
	Backend store.Backend
	// Scope is the initial identity scope.
	Scope store.Scope

	Opener    browser.Opener
	Connector *connector.Connector

	// Events, when set, receives every status change.
	Events EventRecorder

	Clock           clock.Clock
	Thresholds      detect.Thresholds
	Features        browser.Features
	FallbackTimeout time.Duration
	Logger          *slog.Logger
}

// Hub ties the machine, the popup manager and the resume detector together
// for one active scope.
type Hub struct {
	backend   store.Backend
	connector *connector.Connector
	events    EventRecorder
	logger    *slog.Logger

	machine *connection.Machine
	popups  *popup.Manager
	resume  *resume.Detector

	mu     sync.RWMutex
	scope  store.Scope
	scoped *store.Scoped

	stopRecording func()
	recordDone    chan struct{}
	closeOnce     sync.Once
}

// New builds a Hub and loads the state of cfg.Scope.
func New(ctx context.Context, cfg Config) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Backend == nil {
		cfg.Backend = store.NewMemoryBackend()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}

	scoped := store.NewScoped(cfg.Backend, cfg.Scope, cfg.Logger)
	machine := connection.NewMachine(connection.Config{
		Store:           scoped,
		Clock:           cfg.Clock,
		FallbackTimeout: cfg.FallbackTimeout,
		Logger:          cfg.Logger,
	})
	h := &Hub{
		backend:   cfg.Backend,
		connector: cfg.Connector,
		events:    cfg.Events,
		logger:    cfg.Logger,
		machine:   machine,
		popups: popup.NewManager(popup.Config{
			Machine:    machine,
			Opener:     cfg.Opener,
			Clock:      cfg.Clock,
			Thresholds: cfg.Thresholds,
			Features:   cfg.Features,
			Logger:     cfg.Logger,
		}),
		resume: resume.New(machine, cfg.Logger),
		scope:  cfg.Scope,
		scoped: scoped,
	}

	if h.events != nil {
		changes, stop := machine.Subscribe(64)
		h.stopRecording = stop
		h.recordDone = make(chan struct{})
		go h.record(changes)
	}

	machine.Load(ctx)
	return h
}

// ConnectService connects svc without a popup: loading, a reachability
// check, then connected or error. It blocks until settled. A service that
// is not disconnected keeps its status.
func (h *Hub) ConnectService(ctx context.Context, svc connection.Service) connection.Status {
	if err := h.machine.Transition(svc, connection.StatusLoading, "connect"); err != nil {
		h.logger.Debug("connect refused", "service", svc, "error", err, "action", "stale_skip")
		return h.machine.Status(svc)
	}

	var err error
	if h.connector != nil {
		err = h.connector.Check(ctx, svc)
	}
	to := connection.StatusConnected
	reason := "check_ok"
	if err != nil {
		to = connection.StatusError
		reason = "check_failed"
		h.logger.Warn("connect check failed", "service", svc, "error", err)
	}

	if err := h.machine.Transition(svc, to, reason); err != nil {
		// Something else moved the service while the check ran.
		h.logger.Debug("connect result discarded", "service", svc, "error", err, "action", "stale_skip")
	}
	return h.machine.Status(svc)
}

// ConnectServiceViaPopup opens an authorization window for svc and returns
// the status right after arming detection. An empty url is built from the
// service's authorization endpoint.
func (h *Hub) ConnectServiceViaPopup(ctx context.Context, svc connection.Service, url string) connection.Status {
	runID := uuid.New().String()
	credited := h.machine.Status(svc) == connection.StatusDetecting && h.machine.Pending(svc)

	if url == "" {
		if h.connector == nil {
			h.machine.Set(svc, connection.StatusError, "no_connector")
			return h.machine.Status(svc)
		}
		built, err := h.connector.AuthURL(svc, runID)
		if err != nil {
			h.logger.Warn("cannot build authorization url", "service", svc, "error", err)
			h.machine.Set(svc, connection.StatusError, "auth_url")
			return h.machine.Status(svc)
		}
		url = built
	} else if err := connector.ValidateEndpoint(url, nil); err != nil {
		h.logger.Warn("refusing authorization address", "service", svc, "error", err)
		h.machine.Set(svc, connection.StatusError, "invalid_url")
		return h.machine.Status(svc)
	}

	// The manager tears down a previous run before it arms detecting, and
	// arms nothing when the window cannot be opened.
	if _, err := h.popups.Open(ctx, svc, url, popup.WithRunID(runID), popup.WithCredit(credited)); err != nil {
		h.machine.Set(svc, connection.StatusError, "popup_blocked")
	}
	return h.machine.Status(svc)
}

// UpdateConnectionStatus injects a status directly.
func (h *Hub) UpdateConnectionStatus(svc connection.Service, status connection.Status) {
	h.machine.Set(svc, status, "update")
}

// ManuallyMarkConnected marks svc connected.
func (h *Hub) ManuallyMarkConnected(svc connection.Service) {
	h.machine.Set(svc, connection.StatusConnected, "manual")
}

// ResetAllConnections disconnects everything and purges the scope.
func (h *Hub) ResetAllConnections() {
	h.popups.CloseAll("reset")
	h.machine.Reset()
}

// DeliverMessage routes a completion message. With a live run the run
// handles it; otherwise it only applies while the service is still
// awaiting a result. It reports whether the message changed a status.
func (h *Hub) DeliverMessage(msg popup.Message) bool {
	if !msg.Valid() {
		return false
	}
	if h.popups.Active(msg.Service) != nil {
		before := h.machine.Status(msg.Service)
		h.popups.Bus().Publish(msg)
		return h.machine.Status(msg.Service) != before
	}
	if h.machine.Status(msg.Service) != connection.StatusDetecting {
		h.logger.Debug("message without a pending detection ignored",
			"service", msg.Service,
			"type", string(msg.Type),
			"action", "stale_skip")
		return false
	}
	return h.machine.Resolve(msg.Service, msg.Status(), "message:"+string(msg.Type))
}

// HandleHostEvent applies a host window signal.
func (h *Hub) HandleHostEvent(ev browser.HostEvent) []connection.Service {
	return h.resume.Handle(ev)
}

// RunResume feeds host events until ctx is done or events closes.
func (h *Hub) RunResume(ctx context.Context, events <-chan browser.HostEvent) {
	h.resume.Run(ctx, events)
}

// SwitchScope tears down every run and loads the state of scope. Nothing
// from the previous scope carries over.
func (h *Hub) SwitchScope(ctx context.Context, scope store.Scope) {
	h.popups.CloseAll("scope_switch")

	scoped := store.NewScoped(h.backend, scope, h.logger)
	h.mu.Lock()
	prev := h.scope
	h.scope = scope
	h.scoped = scoped
	h.mu.Unlock()

	h.machine.Rebind(ctx, scoped)
	h.logger.Info("scope switched",
		"from_scope", prev.Key(),
		"to_scope", scope.Key(),
		"action", "scope_switch")
}

// Scope returns the active scope.
func (h *Hub) Scope() store.Scope {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.scope
}

// State returns a snapshot of every service's status.
func (h *Hub) State() connection.State { return h.machine.State() }

// Status returns one service's status.
func (h *Hub) Status(svc connection.Service) connection.Status { return h.machine.Status(svc) }

// Pending lists services with an armed detection.
func (h *Hub) Pending() []connection.Service { return h.machine.PendingServices() }

// Subscribe streams status changes; see connection.Machine.Subscribe.
func (h *Hub) Subscribe(buffer int) (<-chan connection.Change, func()) {
	return h.machine.Subscribe(buffer)
}

// Refresh re-reads the active scope and applies it when another process
// changed it. It reports whether anything was applied.
func (h *Hub) Refresh(ctx context.Context) bool {
	h.mu.RLock()
	scoped := h.scoped
	h.mu.RUnlock()

	st, changed := scoped.External(ctx)
	if !changed {
		return false
	}
	h.machine.Sync(st)
	h.logger.Debug("external state applied", "scope", scoped.Scope().Key(), "state", st.String())
	return true
}

// Close ends every run and stops event recording.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.popups.CloseAll("shutdown")
		if h.stopRecording != nil {
			h.stopRecording()
			<-h.recordDone
		}
	})
}

func (h *Hub) record(changes <-chan connection.Change) {
	defer close(h.recordDone)
	for ch := range changes {
		e := db.Event{
			Timestamp: ch.At,
			ScopeKey:  h.Scope().Key(),
			Service:   string(ch.Service),
			From:      ch.From.String(),
			To:        ch.To.String(),
			Reason:    ch.Reason,
		}
		if err := h.events.RecordEvent(context.Background(), e); err != nil {
			h.logger.Debug("recording event", "error", err)
		}
	}
}
