// Package popup owns the lifecycle of authorization windows: opening them,
// polling them for completion and tearing every run down exactly once.
package popup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/browser"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/clock"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/connection"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/detect"
)

// ErrPopupBlocked is returned by Open when the window could not be created.
var ErrPopupBlocked = errors.New("popup blocked")

// Config configures a Manager.
type Config struct {
	Machine *connection.Machine
	Opener  browser.Opener

	// Bus carries completion messages. Defaults to a new Bus.
	Bus *Bus

	// Clock drives the poll and closure timers. Defaults to clock.Real().
	Clock clock.Clock

	// Thresholds for the completion detector.
	// Default: detect.DefaultThresholds()
	Thresholds detect.Thresholds

	// Features of the opened window. Default: browser.DefaultFeatures()
	Features browser.Features

	// Logger for structured logging.
	Logger *slog.Logger
}

// Manager runs at most one popup per service.
type Manager struct {
	machine    *connection.Machine
	opener     browser.Opener
	bus        *Bus
	clock      clock.Clock
	thresholds detect.Thresholds
	features   browser.Features
	logger     *slog.Logger

	openMu sync.Mutex
	mu     sync.Mutex
	runs   map[connection.Service]*Handle
}

// NewManager creates a manager and registers it with the machine so runs
// end whenever their service leaves detecting.
func NewManager(cfg Config) *Manager {
	if cfg.Bus == nil {
		cfg.Bus = NewBus()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Thresholds == (detect.Thresholds{}) {
		cfg.Thresholds = detect.DefaultThresholds()
	}
	if cfg.Features == (browser.Features{}) {
		cfg.Features = browser.DefaultFeatures()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	m := &Manager{
		machine:    cfg.Machine,
		opener:     cfg.Opener,
		bus:        cfg.Bus,
		clock:      cfg.Clock,
		thresholds: cfg.Thresholds,
		features:   cfg.Features,
		logger:     cfg.Logger,
		runs:       make(map[connection.Service]*Handle),
	}
	m.machine.OnChange(m.onChange)
	return m
}

// Bus returns the message bus runs listen on.
func (m *Manager) Bus() *Bus { return m.bus }

// OpenOption adjusts a single Open call.
type OpenOption func(*Handle)

// WithRunID sets the run identifier instead of generating one.
func WithRunID(id string) OpenOption {
	return func(h *Handle) {
		if id != "" {
			h.RunID = id
		}
	}
}

// WithCredit marks the run as credited: the service was already awaiting
// a result, so a quick close resolves as success.
func WithCredit(credited bool) OpenOption {
	return func(h *Handle) { h.credited = credited }
}

// Open tears down any run for svc, opens a new window on url and, once the
// window exists, moves svc into detecting. On ErrPopupBlocked the status is
// untouched and no timer or subscription is left behind.
func (m *Manager) Open(ctx context.Context, svc connection.Service, url string, opts ...OpenOption) (*Handle, error) {
	m.openMu.Lock()
	defer m.openMu.Unlock()

	if old := m.Active(svc); old != nil {
		old.teardown("superseded")
	}

	h := &Handle{
		RunID:   uuid.New().String(),
		Service: svc,
		m:       m,
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}

	win, err := m.opener.Open(ctx, url, m.features)
	if err != nil {
		m.logger.Warn("popup blocked",
			"service", svc,
			"run_id", h.RunID,
			"error", err,
			"action", "popup_blocked")
		return nil, fmt.Errorf("%w: %v", ErrPopupBlocked, err)
	}

	h.window = win
	h.startedAt = m.clock.Now()
	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.arming = m.machine.Arm(svc, "popup_open")

	m.mu.Lock()
	m.runs[svc] = h
	m.mu.Unlock()

	h.unsubscribe = m.bus.Subscribe(h.onMessage)
	h.mu.Lock()
	h.armPollLocked()
	h.armClosureLocked()
	h.mu.Unlock()

	m.logger.Info("popup opened",
		"service", svc,
		"run_id", h.RunID,
		"url", browser.RedactURL(url),
		"window", win.ID(),
		"credited", h.credited,
		"action", "popup_open")
	return h, nil
}

// Active returns the live run for svc, or nil.
func (m *Manager) Active(svc connection.Service) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[svc]
}

// CloseAll tears down every run.
func (m *Manager) CloseAll(reason string) {
	m.mu.Lock()
	runs := make([]*Handle, 0, len(m.runs))
	for _, h := range m.runs {
		runs = append(runs, h)
	}
	m.mu.Unlock()

	for _, h := range runs {
		h.teardown(reason)
	}
}

func (m *Manager) onChange(ch connection.Change) {
	if ch.From != connection.StatusDetecting || ch.To == connection.StatusDetecting {
		return
	}
	if h := m.Active(ch.Service); h != nil {
		h.teardown("left_detecting:" + ch.To.String())
	}
}

// Handle is one popup run.
type Handle struct {
	RunID   string
	Service connection.Service

	m         *Manager
	window    browser.Window
	arming    connection.Arming
	credited  bool
	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc

	unsubscribe func()
	once        sync.Once
	doneCh      chan struct{}

	mu       sync.Mutex
	done     bool
	attempts int
	poll     clock.Timer
	closure  clock.Timer
	reason   string
}

// Done is closed once the run is torn down.
func (h *Handle) Done() <-chan struct{} { return h.doneCh }

// Attempts returns the number of poll ticks so far.
func (h *Handle) Attempts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts
}

// Reason returns why the run ended, or "" while it is live.
func (h *Handle) Reason() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reason
}

// Window returns the run's window.
func (h *Handle) Window() browser.Window { return h.window }

// Cancel ends the run without resolving the service.
func (h *Handle) Cancel() { h.teardown("cancelled") }

func (h *Handle) armPollLocked() {
	if h.done {
		return
	}
	h.poll = h.m.clock.AfterFunc(h.m.thresholds.PollInterval, h.tick)
}

func (h *Handle) armClosureLocked() {
	if h.done {
		return
	}
	h.closure = h.m.clock.AfterFunc(h.m.thresholds.ClosureInterval, h.checkClosure)
}

// tick is one poll: probe the window and evaluate.
func (h *Handle) tick() {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.attempts++
	attempts := h.attempts
	h.mu.Unlock()

	if !h.m.machine.Pending(h.Service) {
		h.teardown("not_pending")
		return
	}

	obs := detect.Probe(h.ctx, h.window, attempts, h.credited)
	if v := detect.Evaluate(obs, h.m.thresholds); v.Done() {
		h.finish(v)
		return
	}

	h.mu.Lock()
	h.armPollLocked()
	h.mu.Unlock()
}

func (h *Handle) checkClosure() {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	attempts := h.attempts
	h.mu.Unlock()

	if h.window.Closed() {
		v := detect.Evaluate(detect.Observation{
			Attempts: attempts,
			Closed:   true,
			Credited: h.credited,
		}, h.m.thresholds)
		h.finish(v)
		return
	}

	h.mu.Lock()
	h.armClosureLocked()
	h.mu.Unlock()
}

func (h *Handle) finish(v detect.Verdict) {
	var to connection.Status
	switch v.Outcome {
	case detect.Success:
		to = connection.StatusConnected
	case detect.Failure:
		to = connection.StatusError
	case detect.Abandoned:
		to = connection.StatusDisconnected
	default:
		return
	}

	if v.Heuristic {
		h.m.logger.Warn("popup resolved by heuristic",
			"service", h.Service,
			"run_id", h.RunID,
			"reason", v.Reason,
			"attempts", h.Attempts(),
			"trust", "heuristic",
			"action", "heuristic_resolve")
	}
	h.teardown(v.Reason)
	h.m.machine.ResolveArming(h.Service, h.arming, to, v.Reason)
}

func (h *Handle) onMessage(msg Message) {
	if msg.Service != h.Service {
		return
	}
	if msg.RunID != "" && msg.RunID != h.RunID {
		h.m.logger.Debug("message for another run ignored",
			"service", h.Service,
			"run_id", h.RunID,
			"message_run_id", msg.RunID,
			"action", "stale_skip")
		return
	}
	h.mu.Lock()
	done := h.done
	h.mu.Unlock()
	if done {
		return
	}

	reason := "message:" + string(msg.Type)
	h.teardown(reason)
	h.m.machine.ResolveArming(h.Service, h.arming, msg.Status(), reason)
}

// teardown stops both timers, leaves the bus and closes the window. Only
// the first call has any effect.
func (h *Handle) teardown(reason string) {
	h.once.Do(func() {
		h.mu.Lock()
		h.done = true
		h.reason = reason
		poll, closure := h.poll, h.closure
		h.mu.Unlock()

		if poll != nil {
			poll.Stop()
		}
		if closure != nil {
			closure.Stop()
		}
		if h.unsubscribe != nil {
			h.unsubscribe()
		}
		if h.cancel != nil {
			h.cancel()
		}
		if h.window != nil {
			if err := h.window.Close(); err != nil {
				h.m.logger.Debug("closing popup window", "run_id", h.RunID, "error", err)
			}
		}

		h.m.mu.Lock()
		if h.m.runs[h.Service] == h {
			delete(h.m.runs, h.Service)
		}
		h.m.mu.Unlock()
		close(h.doneCh)

		h.m.logger.Info("popup run ended",
			"service", h.Service,
			"run_id", h.RunID,
			"reason", reason,
			"duration", h.m.clock.Now().Sub(h.startedAt),
			"action", "teardown")
	})
}
