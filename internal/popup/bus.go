package popup

import (
	"sync"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/connection"
)

// MessageType is the kind of completion message a window can post.
type MessageType string

const (
	MessageSuccess MessageType = "CONNECTION_SUCCESS"
	MessageFailure MessageType = "CONNECTION_FAILURE"
)

// Message is a completion signal from an authorization window.
type Message struct {
	Type    MessageType        `json:"type"`
	Service connection.Service `json:"service"`
	// RunID, when present, must match the run it is meant for.
	RunID  string `json:"run_id,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Valid reports whether the message has a known type and service.
func (m Message) Valid() bool {
	if m.Type != MessageSuccess && m.Type != MessageFailure {
		return false
	}
	_, err := connection.ParseService(string(m.Service))
	return err == nil
}

// Status returns the status the message asks for.
func (m Message) Status() connection.Status {
	if m.Type == MessageSuccess {
		return connection.StatusConnected
	}
	return connection.StatusError
}

// Bus fans messages out to the active runs.
type Bus struct {
	mu   sync.Mutex
	subs map[int]func(Message)
	next int
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Message))}
}

// Subscribe registers fn for every published message. The returned
// function removes it and may be called more than once.
func (b *Bus) Subscribe(fn func(Message)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers msg synchronously to the current subscribers and
// returns how many there were. Invalid messages are dropped.
func (b *Bus) Publish(msg Message) int {
	if !msg.Valid() {
		return 0
	}
	b.mu.Lock()
	fns := make([]func(Message), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
	return len(fns)
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
