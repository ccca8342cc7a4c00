package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/clock"
)

// ErrInvalidTransition is returned by Transition for moves the state
// machine does not allow.
var ErrInvalidTransition = errors.New("invalid status transition")

// DefaultFallbackTimeout resolves a detection nothing else resolved.
const DefaultFallbackTimeout = 90 * time.Second

// transitions lists the allowed moves. detecting -> detecting supersedes a
// run; detecting -> disconnected is the quick-abandonment outcome.
var transitions = map[Status][]Status{
	StatusDisconnected: {StatusLoading, StatusDetecting},
	StatusLoading:      {StatusConnected, StatusError},
	StatusDetecting:    {StatusConnected, StatusError, StatusDisconnected, StatusDetecting},
	StatusConnected:    {StatusDisconnected},
	StatusError:        {StatusDetecting, StatusDisconnected},
}

// CanTransition reports whether from -> to is an allowed move.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Store persists the state of one scope. Implementations handle their own
// failures; the machine never sees storage errors.
type Store interface {
	Load(ctx context.Context) State
	Save(ctx context.Context, st State)
	Purge(ctx context.Context)
}

// Change describes one status change.
type Change struct {
	Service Service
	From    Status
	To      Status
	Reason  string
	At      time.Time
}

// Config configures a Machine.
type Config struct {
	// Store persists every change. Nil keeps state in memory only.
	Store Store

	// Clock drives the fallback timers. Defaults to clock.Real().
	Clock clock.Clock

	// FallbackTimeout is how long a detection may stay pending before it is
	// resolved as connected. Default: DefaultFallbackTimeout.
	FallbackTimeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// Arming identifies one entry into detecting. The zero value matches no
// arming.
type Arming uint64

// pending is the bookkeeping for an unresolved detecting status.
type pending struct {
	id      Arming
	timer   clock.Timer
	armedAt time.Time
}

// Machine is the authoritative per-service status holder.
type Machine struct {
	// writeMu orders every mutation with its store write and its
	// notifications. Always taken before mu.
	writeMu sync.Mutex

	mu      sync.Mutex
	store   Store
	clock   clock.Clock
	timeout time.Duration
	logger  *slog.Logger

	state   State
	pending map[Service]*pending
	lastArm Arming

	observers []func(Change)
	subs      map[int]chan Change
	nextSub   int
}

// NewMachine creates a machine with every service disconnected. Call Load
// to read the persisted state.
func NewMachine(cfg Config) *Machine {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.FallbackTimeout <= 0 {
		cfg.FallbackTimeout = DefaultFallbackTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Machine{
		store:   cfg.Store,
		clock:   cfg.Clock,
		timeout: cfg.FallbackTimeout,
		logger:  cfg.Logger,
		state:   NewState(),
		pending: make(map[Service]*pending),
		subs:    make(map[int]chan Change),
	}
}

// Status returns the current status of svc.
func (m *Machine) Status(svc Service) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state[svc]
}

// State returns a snapshot of every service's status.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Pending reports whether svc has an unresolved detection armed.
func (m *Machine) Pending(svc Service) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[svc]
	return ok
}

// PendingServices lists services with an armed detection.
func (m *Machine) PendingServices() []Service {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Service
	for _, svc := range Services() {
		if _, ok := m.pending[svc]; ok {
			out = append(out, svc)
		}
	}
	return out
}

// Set replaces the status of svc without transition checks. Entering
// detecting arms a pending detection; leaving it clears the detection.
func (m *Machine) Set(svc Service, to Status, reason string) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	ch, changed := m.applyLocked(svc, to, reason, true)
	st, store := m.state.Clone(), m.store
	m.mu.Unlock()

	if changed {
		save(store, st)
		m.publish(ch)
	}
}

// Arm moves svc into detecting with a fresh pending detection and returns
// its identity for ResolveArming.
func (m *Machine) Arm(svc Service, reason string) Arming {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	ch, _ := m.applyLocked(svc, StatusDetecting, reason, true)
	id := m.pending[svc].id
	st, store := m.state.Clone(), m.store
	m.mu.Unlock()

	save(store, st)
	m.publish(ch)
	return id
}

// Transition moves svc to the given status if the move is allowed.
func (m *Machine) Transition(svc Service, to Status, reason string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	from := m.state[svc]
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, svc, from, to)
	}
	ch, changed := m.applyLocked(svc, to, reason, true)
	st, store := m.state.Clone(), m.store
	m.mu.Unlock()

	if changed {
		save(store, st)
		m.publish(ch)
	}
	return nil
}

// Resolve settles a pending detection. It only applies while svc is
// detecting with its pending flag set; any other call is a stale signal and
// returns false without changing anything.
func (m *Machine) Resolve(svc Service, to Status, reason string) bool {
	return m.resolve(svc, 0, to, reason)
}

// ResolveArming is Resolve restricted to one arming. A run that was
// superseded cannot settle the detection that replaced it.
func (m *Machine) ResolveArming(svc Service, id Arming, to Status, reason string) bool {
	if id == 0 {
		return false
	}
	return m.resolve(svc, id, to, reason)
}

func (m *Machine) resolve(svc Service, id Arming, to Status, reason string) bool {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	p, armed := m.pending[svc]
	if !armed || m.state[svc] != StatusDetecting || to == StatusDetecting || (id != 0 && p.id != id) {
		m.mu.Unlock()
		m.logger.Debug("stale resolution ignored",
			"service", svc,
			"to_state", to.String(),
			"reason", reason,
			"action", "stale_skip")
		return false
	}
	ch, _ := m.applyLocked(svc, to, reason, true)
	st, store := m.state.Clone(), m.store
	m.mu.Unlock()

	save(store, st)
	m.publish(ch)
	return true
}

// Reset forces every service to disconnected, cancels every pending
// detection and purges the persisted record.
func (m *Machine) Reset() {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	var changes []Change
	for _, svc := range Services() {
		m.clearPendingLocked(svc)
		if ch, changed := m.applyLocked(svc, StatusDisconnected, "reset", false); changed {
			changes = append(changes, ch)
		}
	}
	store := m.store
	m.mu.Unlock()

	if store != nil {
		store.Purge(context.Background())
	}
	for _, ch := range changes {
		m.publish(ch)
	}
	m.logger.Info("all connections reset", "changed", len(changes), "action", "reset")
}

// Load replaces the in-memory state with the store's record. A loaded
// loading status becomes disconnected since nothing is in flight after a
// restart; a loaded detecting status re-arms its pending detection.
func (m *Machine) Load(ctx context.Context) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	store := m.store
	m.mu.Unlock()
	if store == nil {
		return
	}
	m.replace(store.Load(ctx), "load")
}

// Rebind points the machine at another store, as on a login or logout,
// and loads that store's state. Nothing from the previous scope survives.
func (m *Machine) Rebind(ctx context.Context, store Store) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	m.store = store
	m.mu.Unlock()

	var loaded State
	if store != nil {
		loaded = store.Load(ctx)
	}
	m.replace(loaded, "scope_switch")
}

// Sync applies a record observed outside this process without writing it
// back to the store. A synced detecting status is not armed: the run
// belongs to the process that started it, which writes the outcome.
func (m *Machine) Sync(st State) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	var changes []Change
	for _, svc := range Services() {
		if m.state[svc] == st[svc] {
			continue
		}
		if ch, changed := m.applyLocked(svc, st[svc], "sync", false); changed {
			changes = append(changes, ch)
		}
	}
	m.mu.Unlock()

	for _, ch := range changes {
		m.publish(ch)
	}
}

func (m *Machine) replace(loaded State, reason string) {
	next := NewState()
	for svc, status := range loaded {
		if status == StatusLoading {
			status = StatusDisconnected
		}
		next[svc] = status
	}

	m.mu.Lock()
	var changes []Change
	for _, svc := range Services() {
		m.clearPendingLocked(svc)
		if ch, changed := m.applyLocked(svc, next[svc], reason, true); changed {
			changes = append(changes, ch)
		}
	}
	m.mu.Unlock()

	for _, ch := range changes {
		m.publish(ch)
	}
}

// OnChange registers fn to be called synchronously after every change, in
// order. fn must not block or call back into the machine.
func (m *Machine) OnChange(fn func(Change)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Subscribe returns a channel of changes and a function to stop the
// subscription. Changes are dropped when the channel is full.
func (m *Machine) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Change, buffer)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// applyLocked sets svc to status and keeps the pending bookkeeping in step.
// Entering detecting arms a detection only when arm is set. Must be called
// with m.mu held.
func (m *Machine) applyLocked(svc Service, to Status, reason string, arm bool) (Change, bool) {
	from := m.state[svc]
	ch := Change{Service: svc, From: from, To: to, Reason: reason, At: m.clock.Now()}

	// Re-entering detecting supersedes the previous arming.
	m.clearPendingLocked(svc)
	if to == StatusDetecting && arm {
		m.armLocked(svc)
	}

	if from == to && to != StatusDetecting {
		return ch, false
	}
	m.state[svc] = to

	m.logger.Info("state transition",
		"service", svc,
		"from_state", from.String(),
		"to_state", to.String(),
		"reason", reason,
		"action", "transition")
	return ch, true
}

func (m *Machine) armLocked(svc Service) {
	m.lastArm++
	p := &pending{id: m.lastArm, armedAt: m.clock.Now()}
	p.timer = m.clock.AfterFunc(m.timeout, func() { m.expire(svc, p) })
	m.pending[svc] = p
}

// clearPendingLocked is the only place a pending detection is removed, so
// the timer is always stopped with it.
func (m *Machine) clearPendingLocked(svc Service) {
	p, ok := m.pending[svc]
	if !ok {
		return
	}
	p.timer.Stop()
	delete(m.pending, svc)
}

func (m *Machine) expire(svc Service, p *pending) {
	m.mu.Lock()
	if m.pending[svc] != p {
		m.mu.Unlock()
		return
	}
	waited := m.clock.Now().Sub(p.armedAt)
	m.mu.Unlock()

	m.logger.Warn("detection fallback timeout",
		"service", svc,
		"waited", waited,
		"trust", "heuristic",
		"action", "timeout_connect")
	m.resolve(svc, p.id, StatusConnected, "fallback_timeout")
}

func save(store Store, st State) {
	if store != nil {
		store.Save(context.Background(), st)
	}
}

func (m *Machine) publish(ch Change) {
	m.mu.Lock()
	observers := slices.Clone(m.observers)
	for _, sub := range m.subs {
		select {
		case sub <- ch:
		default:
			// Slow subscriber; it will catch up from the next snapshot.
		}
	}
	m.mu.Unlock()

	for _, fn := range observers {
		fn(ch)
	}
}
