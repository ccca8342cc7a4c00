package store

import (
	"context"
	"errors"
	"sync"
)

// ErrUnavailable marks a backend that cannot be reached or written.
var ErrUnavailable = errors.New("storage unavailable")

// Backend is a key/value medium for persisted records.
type Backend interface {
	// Get returns the record stored under key. ok is false when absent.
	Get(ctx context.Context, key string) (record []byte, ok bool, err error)
	Put(ctx context.Context, key string, record []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// MemoryBackend keeps records in process memory. It backs the session tier
// and is the fallback when another backend fails.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string][]byte)}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.records[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), rec...), true, nil
}

func (b *MemoryBackend) Put(_ context.Context, key string, record []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[key] = append([]byte(nil), record...)
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.records, key)
	return nil
}

// Len returns the number of stored keys.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}

func (b *MemoryBackend) Close() error { return nil }
