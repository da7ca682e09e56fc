package wal

import (
	"sync"

	"github.com/skillrun/agentcore/internal/engine"
)

// MemoryBackend is an in-process Backend used by tests and by embedders
// that don't want a WAL file on disk. Events are retained in order.
type MemoryBackend struct {
	mu     sync.Mutex
	Events []engine.Event
	closed bool
}

// NewMemoryBackend constructs an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend { return &MemoryBackend{} }

// Append implements Backend.
func (b *MemoryBackend) Append(e engine.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Events = append(b.Events, e)
	return nil
}

// Close implements Backend.
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Snapshot returns a copy of the events appended so far.
func (b *MemoryBackend) Snapshot() []engine.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]engine.Event, len(b.Events))
	copy(out, b.Events)
	return out
}
