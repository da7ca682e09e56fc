package wal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/skillrun/agentcore/internal/engine"
)

// FileBackend is the default Backend: one JSONL file under
// <workspace>/<runtime_dir>/runs/<run_id>/events.jsonl, header-first,
// fsync'd after every append for crash safety.
type FileBackend struct {
	mu          sync.Mutex
	file        *os.File
	wroteHeader bool
	header      Header
}

// RunsDir returns the persisted-layout path for a run's directory.
func RunsDir(workspace, runtimeDir, runID string) string {
	return filepath.Join(workspace, runtimeDir, "runs", runID)
}

// NewFileBackend creates (or appends to, on resume) the events.jsonl file
// for a run.
func NewFileBackend(workspace, runtimeDir, runID, appVersion, environment string) (*FileBackend, error) {
	dir := RunsDir(workspace, runtimeDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create run dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "artifacts"), 0o755); err != nil {
		return nil, fmt.Errorf("wal: create artifacts dir: %w", err)
	}
	path := filepath.Join(dir, "events.jsonl")
	wroteHeader := fileNonEmpty(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open events file: %w", err)
	}
	return &FileBackend{
		file:        f,
		wroteHeader: wroteHeader,
		header: Header{
			Version:     HeaderVersion,
			RunID:       runID,
			StartedAt:   time.Now().UTC().Format(time.RFC3339Nano),
			AppVersion:  appVersion,
			Environment: environment,
		},
	}, nil
}

func fileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// Append implements Backend.
func (b *FileBackend) Append(e engine.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.wroteHeader {
		hdr, err := marshalHeader(b.header)
		if err != nil {
			return err
		}
		if _, err := b.file.Write(hdr); err != nil {
			return err
		}
		b.wroteHeader = true
	}

	line, err := marshalEvent(e)
	if err != nil {
		return err
	}
	if _, err := b.file.Write(line); err != nil {
		return err
	}
	return b.file.Sync()
}

// Close implements Backend.
func (b *FileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}

func marshalHeader(h Header) ([]byte, error) {
	line, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}
