package wal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/skillrun/agentcore/internal/engine"
)

// Reader streams a WAL file back as Events, validating the header and
// skipping-and-counting malformed lines rather than failing replay.
type Reader struct {
	scanner    *bufio.Scanner
	file       *os.File
	Header     Header
	InvalidWAL int
}

// NewReader opens a WAL file and validates its header line.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wal: open for replay: %w", err)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	if !scanner.Scan() {
		f.Close()
		return nil, fmt.Errorf("wal: empty file")
	}
	var hdr Header
	if err := json.Unmarshal(scanner.Bytes(), &hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("wal: invalid header: %w", err)
	}
	if hdr.Version != HeaderVersion {
		f.Close()
		return nil, fmt.Errorf("wal: unsupported header version %d", hdr.Version)
	}
	return &Reader{scanner: scanner, file: f, Header: hdr}, nil
}

// ReadEvent returns the next event, io.EOF when the file is exhausted.
// Lines that fail to parse are skipped and counted in InvalidWAL rather
// than returned as an error.
func (r *Reader) ReadEvent() (engine.Event, error) {
	for r.scanner.Scan() {
		var e engine.Event
		if err := json.Unmarshal(r.scanner.Bytes(), &e); err != nil {
			r.InvalidWAL++
			continue
		}
		return e, nil
	}
	if err := r.scanner.Err(); err != nil {
		return engine.Event{}, err
	}
	return engine.Event{}, io.EOF
}

// ReadAll drains the remaining events.
func (r *Reader) ReadAll() ([]engine.Event, error) {
	var out []engine.Event
	for {
		e, err := r.ReadEvent()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}

// Close releases the underlying file.
func (r *Reader) Close() error { return r.file.Close() }
