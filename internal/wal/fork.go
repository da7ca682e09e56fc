package wal

import (
	"bufio"
	"fmt"
	"os"
)

// ForkRun copies a prefix of src's events.jsonl (the header plus events
// 0..upToIndexInclusive, 0-indexed) into dst's events.jsonl. Returns the
// number of event lines copied (the header line is not counted).
// Resuming on dst is the caller's responsibility: it should re-emit
// run_started with resume={enabled:true, strategy, previous_events: count}.
func ForkRun(srcPath, dstPath string, upToIndexInclusive int) (int, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("wal: fork: open source: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("wal: fork: open dest: %w", err)
	}
	defer dst.Close()

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	writer := bufio.NewWriter(dst)

	if !scanner.Scan() {
		return 0, fmt.Errorf("wal: fork: source has no header")
	}
	if _, err := writer.Write(scanner.Bytes()); err != nil {
		return 0, err
	}
	if err := writer.WriteByte('\n'); err != nil {
		return 0, err
	}

	copied := 0
	for copied <= upToIndexInclusive && scanner.Scan() {
		if _, err := writer.Write(scanner.Bytes()); err != nil {
			return copied, err
		}
		if err := writer.WriteByte('\n'); err != nil {
			return copied, err
		}
		copied++
	}
	if err := scanner.Err(); err != nil {
		return copied, err
	}
	if err := writer.Flush(); err != nil {
		return copied, err
	}
	if err := dst.Sync(); err != nil {
		return copied, err
	}
	return copied, nil
}
