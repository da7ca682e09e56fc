// Package wal implements the append-only JSONL event journal and the
// unified emitter that multiplexes a run's events to the journal, to
// registered hooks, and to consumer streams. The journal sits behind a
// Backend interface so tests can swap in an in-memory backend.
package wal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skillrun/agentcore/internal/engine"
)

// Backend is the storage surface an Emitter writes to. FileBackend is the
// default; MemoryBackend exists for tests and for embedding the engine
// without a filesystem.
type Backend interface {
	Append(e engine.Event) error
	Close() error
}

// Header is the first line written to a WAL file.
type Header struct {
	Version     int    `json:"version"`
	RunID       string `json:"run_id"`
	StartedAt   string `json:"started_at"`
	AppVersion  string `json:"app_version,omitempty"`
	Environment string `json:"environment,omitempty"`
}

const HeaderVersion = 1

// Hook observes every emitted event. Hook panics/errors are caught and
// logged, never propagated — the WAL append is the authoritative record.
type Hook func(e engine.Event)

// Emitter is the sole event funnel for a run: every event a component
// wants to journal flows through Emit, which appends to the backend,
// invokes hooks in registration order, and broadcasts to subscribed
// streams.
type Emitter struct {
	mu       sync.Mutex
	runID    string
	backend  Backend
	hooks    []Hook
	subs     []chan engine.Event
	redactor engine.Redactor
	logger   *slog.Logger
	seq      int64
}

// NewEmitter constructs an Emitter bound to one run and one backend.
func NewEmitter(runID string, backend Backend, redactor engine.Redactor, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{runID: runID, backend: backend, redactor: redactor, logger: logger}
}

// AddHook registers an observer invoked synchronously on every Emit, in
// registration order.
func (em *Emitter) AddHook(h Hook) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.hooks = append(em.hooks, h)
}

// Subscribe returns a channel that receives every subsequently emitted
// event. The caller must drain it; Unsubscribe removes it.
func (em *Emitter) Subscribe() chan engine.Event {
	ch := make(chan engine.Event, 64)
	em.mu.Lock()
	em.subs = append(em.subs, ch)
	em.mu.Unlock()
	return ch
}

// Unsubscribe removes a previously subscribed channel and closes it.
func (em *Emitter) Unsubscribe(ch chan engine.Event) {
	em.mu.Lock()
	defer em.mu.Unlock()
	for i, c := range em.subs {
		if c == ch {
			em.subs = append(em.subs[:i], em.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Emit appends the event to the WAL, fans it out to hooks and
// subscriptions, and never returns an error for hook/stream failures —
// only a backend append failure is reported, and even that is logged
// rather than panicking — emission must never throw.
func (em *Emitter) Emit(typ engine.EventType, turnID, stepID string, payload map[string]any) engine.Event {
	if payload == nil {
		payload = map[string]any{}
	}
	redacted := em.redactPayload(payload)
	em.mu.Lock()
	em.seq++
	em.mu.Unlock()

	e := engine.Event{
		Type:      typ,
		RunID:     em.runID,
		TurnID:    turnID,
		StepID:    stepID,
		Payload:   redacted,
		Timestamp: time.Now().UTC(),
	}

	if err := em.backend.Append(e); err != nil {
		em.logger.Error("wal append failed", "run_id", em.runID, "type", typ, "error", err)
	}

	em.mu.Lock()
	hooks := append([]Hook(nil), em.hooks...)
	subs := append([]chan engine.Event(nil), em.subs...)
	em.mu.Unlock()

	for _, h := range hooks {
		safeInvokeHook(em.logger, h, e)
	}
	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			em.logger.Warn("wal subscriber channel full, dropping event", "run_id", em.runID, "type", typ)
		}
	}
	return e
}

func safeInvokeHook(logger *slog.Logger, h Hook, e engine.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("wal hook panicked", "recover", fmt.Sprint(r))
		}
	}()
	h(e)
}

func (em *Emitter) redactPayload(payload map[string]any) map[string]any {
	if em.redactor == nil {
		return payload
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = em.redactor(k, v)
	}
	return out
}

// Close releases the underlying backend.
func (em *Emitter) Close() error { return em.backend.Close() }

// marshalEvent is shared by FileBackend and tests that need the exact
// on-disk line representation.
func marshalEvent(e engine.Event) ([]byte, error) {
	line, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}
