package tracer

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Sink is an append-only, line-oriented destination for change events.
type Sink interface {
	// Append writes one line. The newline is added by the sink.
	Append(line []byte) error
	// Lines returns every line written so far, without newlines.
	Lines() ([]string, error)
}

// DefaultLogPath is where events go when no sink is configured.
func DefaultLogPath() string {
	return filepath.Join(os.TempDir(), "log.txt")
}

// maxLineSize bounds a single record when reading a log back.
const maxLineSize = 16 << 20

// FileSink appends lines to a file, opening and closing it for every
// append so no handle is held between events.
type FileSink struct {
	Path string
}

// NewFileSink returns a sink writing to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{Path: path}
}

// Append writes line plus a newline in a single write.
func (s *FileSink) Append(line []byte) error {
	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log %s: %w", s.Path, err)
	}
	buf := make([]byte, 0, len(line)+1)
	buf = append(append(buf, line...), '\n')
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("appending to log %s: %w", s.Path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing log %s: %w", s.Path, err)
	}
	return nil
}

// Lines reads the whole log. A missing file is an empty log.
func (s *FileSink) Lines() ([]string, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading log %s: %w", s.Path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return lines, fmt.Errorf("reading log %s: %w", s.Path, err)
	}
	return lines, nil
}

// Clear removes the log file. Clearing a missing log is not an error.
func (s *FileSink) Clear() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clearing log %s: %w", s.Path, err)
	}
	return nil
}

// MemorySink keeps lines in memory. It is safe for concurrent use.
type MemorySink struct {
	mu    sync.Mutex
	lines []string
}

// Append stores a copy of line.
func (s *MemorySink) Append(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, string(line))
	return nil
}

// Lines returns the stored lines in append order.
func (s *MemorySink) Lines() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out, nil
}

// Clear drops every line.
func (s *MemorySink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = nil
	return nil
}
