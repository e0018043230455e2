package tracer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

// ErrRecordFailed wraps every failure to write a change event.
var ErrRecordFailed = errors.New("recording change event failed")

// json sorts map keys, so equal events always encode to the same line.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ChangeEvent is one observed mutation: which method of which class changed
// which fields, and the call stack that led there.
type ChangeEvent struct {
	ID        string       `json:"id,omitempty"`
	Class     string       `json:"class"`
	Method    string       `json:"method"`
	Changes   ChangeSet    `json:"changes"`
	Backtrace []StackFrame `json:"backtrace"`
}

// NewChangeEvent builds an event with a fresh ID.
func NewChangeEvent(class, method string, changes ChangeSet, backtrace []StackFrame) ChangeEvent {
	return ChangeEvent{
		ID:        uuid.NewString(),
		Class:     class,
		Method:    method,
		Changes:   changes,
		Backtrace: backtrace,
	}
}

// Encode returns the single-line form of ev.
func (ev ChangeEvent) Encode() ([]byte, error) {
	return json.Marshal(ev)
}

// DecodeEvent parses one log line.
func DecodeEvent(line []byte) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return ChangeEvent{}, err
	}
	return ev, nil
}

// Recorder writes change events to a Sink, one line each. Appends from a
// single Recorder never interleave.
type Recorder struct {
	mu   sync.Mutex
	sink Sink
}

// NewRecorder returns a Recorder writing to sink.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

// Sink returns the destination of the recorder.
func (r *Recorder) Sink() Sink {
	return r.sink
}

// Record appends ev to the sink.
func (r *Recorder) Record(ev ChangeEvent) error {
	line, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("%w: encoding %s.%s: %w", ErrRecordFailed, ev.Class, ev.Method, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.sink.Append(line); err != nil {
		return fmt.Errorf("%w: %w", ErrRecordFailed, err)
	}
	return nil
}
