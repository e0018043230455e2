// Package logview reads change logs back and replays them into a timeline of
// cumulative object state.
package logview

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/fakeyudi/snaptrace/tracer"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNoLog is returned when the log file does not exist.
var ErrNoLog = errors.New("no log file")

var errNotEvent = errors.New("not a change event")

// LineError describes a log line that could not be decoded.
type LineError struct {
	Line int // 1-based
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Log is the decoded content of a change log. Malformed lines do not stop
// decoding; they are collected in Errors.
type Log struct {
	Events []tracer.ChangeEvent
	Errors []*LineError
}

// ReadFile reads and parses the log at path.
func ReadFile(path string) (*Log, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoLog, path)
		}
		return nil, err
	}
	return Parse(data), nil
}

// Parse decodes one event per line. Objects written back to back on one
// line are split apart.
func Parse(content []byte) *Log {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 64*1024), len(content)+1)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return ParseLines(lines)
}

// ParseLines is Parse for content already split into lines.
func ParseLines(lines []string) *Log {
	parsed := &Log{}
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(line))
		for dec.More() {
			var ev tracer.ChangeEvent
			if err := dec.Decode(&ev); err != nil {
				parsed.Errors = append(parsed.Errors, &LineError{Line: i + 1, Text: line, Err: err})
				break
			}
			if ev.Class == "" && ev.Method == "" {
				parsed.Errors = append(parsed.Errors, &LineError{Line: i + 1, Text: line, Err: errNotEvent})
				break
			}
			parsed.Events = append(parsed.Events, ev)
		}
	}
	return parsed
}
