package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// MatchLog appends raw snapshot payloads to a per-match JSONL file. It is
// the flat-file twin of the raw snapshot archive: one line per live tick,
// replayable without a database.
type MatchLog struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
	lines  int
}

// OpenMatchLog creates (or reopens for append) the log for a match under
// baseDir.
func OpenMatchLog(baseDir, matchID string) (*MatchLog, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(baseDir, matchID+".jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open match log: %w", err)
	}

	return &MatchLog{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
	}, nil
}

// Append writes one raw payload line. The payload is trusted to be a
// single JSON document without newlines.
func (l *MatchLog) Append(payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("match log %s is closed", l.path)
	}

	if _, err := l.writer.Write(payload); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := l.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	l.lines++

	// Flush per line: ticks are small and a crash mid-match should lose
	// at most the current one.
	return l.writer.Flush()
}

// Path returns the log file location.
func (l *MatchLog) Path() string {
	return l.path
}

// Lines returns how many snapshots this process appended.
func (l *MatchLog) Lines() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lines
}

// Close flushes and closes the file.
func (l *MatchLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	if err := l.writer.Flush(); err != nil {
		return err
	}
	err := l.file.Close()
	l.file = nil
	return err
}
