package wal

import (
	"fmt"
	"io"
	"time"

	"github.com/skillrun/agentcore/internal/engine"
)

// ReplaySpeed controls pacing during Replay.
type ReplaySpeed int

const (
	// ReplayInstant emits every event with no delay (the default — used
	// by everything except human-facing "watch a past run" tooling).
	ReplayInstant ReplaySpeed = 0
	// ReplayRealtime reproduces the original inter-event delays.
	ReplayRealtime ReplaySpeed = 1
)

// ReplayOption configures a Replay call.
type ReplayOption func(*replayOpts)

type replayOpts struct {
	speed   ReplaySpeed
	fromSeq int
	toSeq   int // 0 means unbounded
}

// WithSpeed selects pacing.
func WithSpeed(s ReplaySpeed) ReplayOption { return func(o *replayOpts) { o.speed = s } }

// WithSequenceRange restricts replay to a 1-indexed [from, to] inclusive
// range of events in file order; to=0 means "to the end".
func WithSequenceRange(from, to int) ReplayOption {
	return func(o *replayOpts) { o.fromSeq = from; o.toSeq = to }
}

// Stats summarizes a completed replay.
type Stats struct {
	TotalEvents  int
	InvalidLines int
	FirstType    engine.EventType
	LastType     engine.EventType
}

// Valid reports whether the replayed stream satisfies the
// single-terminal-event invariant: first event is run_started, last is
// one of the terminal events, and nothing looks truncated mid-stream.
func (s Stats) Valid() bool {
	if s.TotalEvents == 0 {
		return false
	}
	if s.FirstType != engine.EventRunStarted {
		return false
	}
	switch s.LastType {
	case engine.EventRunCompleted, engine.EventRunFailed, engine.EventRunCancelled:
		return true
	default:
		return false
	}
}

// Replay streams a WAL file's events to sink, honoring sequence-range and
// pacing options, and returns summary Stats.
func Replay(path string, sink func(engine.Event), opts ...ReplayOption) (Stats, error) {
	o := replayOpts{speed: ReplayInstant}
	for _, opt := range opts {
		opt(&o)
	}

	r, err := NewReader(path)
	if err != nil {
		return Stats{}, err
	}
	defer r.Close()

	var stats Stats
	var prevTS time.Time
	idx := 0
	for {
		e, err := r.ReadEvent()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("wal: replay read: %w", err)
		}
		idx++
		if idx < o.fromSeq {
			continue
		}
		if o.toSeq > 0 && idx > o.toSeq {
			break
		}
		if o.speed == ReplayRealtime && !prevTS.IsZero() {
			time.Sleep(e.Timestamp.Sub(prevTS))
		}
		prevTS = e.Timestamp

		if stats.TotalEvents == 0 {
			stats.FirstType = e.Type
		}
		stats.LastType = e.Type
		stats.TotalEvents++
		sink(e)
	}
	stats.InvalidLines = r.InvalidWAL
	return stats, nil
}

// ToStats replays without a sink, useful for validating a WAL file offline
// (e.g. a "doctor" command).
func ToStats(path string) (Stats, error) {
	return Replay(path, func(engine.Event) {})
}
