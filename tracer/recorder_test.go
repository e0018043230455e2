package tracer_test

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fakeyudi/snaptrace/tracer"
)

func sampleEvent() tracer.ChangeEvent {
	return tracer.NewChangeEvent("Dict", "Insert",
		tracer.ChangeSet{"entries": {Before: map[string]any{}, After: map[string]any{"k": int64(1)}}},
		[]tracer.StackFrame{{File: "main.go", Line: 3, Function: "main.main", Code: "d.Insert()"}},
	)
}

func TestRecordWritesOneLine(t *testing.T) {
	sink := &tracer.MemorySink{}
	rec := tracer.NewRecorder(sink)

	ev := sampleEvent()
	if err := rec.Record(ev); err != nil {
		t.Fatalf("Record: %v", err)
	}

	lines, _ := sink.Lines()
	if len(lines) != 1 {
		t.Fatalf("want 1 line, got %d", len(lines))
	}
	if strings.Contains(lines[0], "\n") {
		t.Errorf("record must be a single line: %q", lines[0])
	}
	for _, key := range []string{`"class":"Dict"`, `"method":"Insert"`, `"changes":`, `"backtrace":`, `"before":{}`, `"after":{"k":1}`} {
		if !strings.Contains(lines[0], key) {
			t.Errorf("line missing %s: %s", key, lines[0])
		}
	}

	decoded, err := tracer.DecodeEvent([]byte(lines[0]))
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if decoded.ID != ev.ID || decoded.Class != "Dict" || decoded.Method != "Insert" {
		t.Errorf("decoded header mismatch: %+v", decoded)
	}
	if len(decoded.Backtrace) != 1 || decoded.Backtrace[0].Line != 3 {
		t.Errorf("decoded backtrace mismatch: %+v", decoded.Backtrace)
	}
}

func TestRecordEncodesAbsentAsNull(t *testing.T) {
	sink := &tracer.MemorySink{}
	ev := tracer.NewChangeEvent("T", "M", tracer.ChangeSet{"x": {Before: tracer.Absent, After: int64(1)}}, nil)
	if err := tracer.NewRecorder(sink).Record(ev); err != nil {
		t.Fatalf("Record: %v", err)
	}
	lines, _ := sink.Lines()
	if !strings.Contains(lines[0], `"x":{"before":null,"after":1}`) {
		t.Errorf("absent should encode as null: %s", lines[0])
	}
}

func TestFileSinkAppendAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	sink := tracer.NewFileSink(path)

	lines, err := sink.Lines()
	if err != nil || len(lines) != 0 {
		t.Fatalf("missing log should read as empty, got %v, %v", lines, err)
	}

	rec := tracer.NewRecorder(sink)
	for i := 0; i < 3; i++ {
		if err := rec.Record(sampleEvent()); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	lines, err = sink.Lines()
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("want 3 lines, got %d", len(lines))
	}

	if err := sink.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := sink.Clear(); err != nil {
		t.Fatalf("second Clear should be a no-op: %v", err)
	}
	lines, _ = sink.Lines()
	if len(lines) != 0 {
		t.Errorf("want empty log after Clear, got %d lines", len(lines))
	}
}

func TestRecordFailureIsReported(t *testing.T) {
	sink := tracer.NewFileSink(filepath.Join(t.TempDir(), "missing", "dir", "log.txt"))
	err := tracer.NewRecorder(sink).Record(sampleEvent())
	if err == nil {
		t.Fatal("expected an error writing into a missing directory")
	}
	if !errors.Is(err, tracer.ErrRecordFailed) {
		t.Errorf("expected ErrRecordFailed, got %v", err)
	}
}

func TestConcurrentRecordsKeepWholeLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	sink := tracer.NewFileSink(path)

	const writers = 32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Separate recorders share only the file.
			if err := tracer.NewRecorder(sink).Record(sampleEvent()); err != nil {
				t.Errorf("Record: %v", err)
			}
		}()
	}
	wg.Wait()

	lines, err := sink.Lines()
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}
	if len(lines) != writers {
		t.Fatalf("want %d lines, got %d", writers, len(lines))
	}
	for i, line := range lines {
		if _, err := tracer.DecodeEvent([]byte(line)); err != nil {
			t.Errorf("line %d is not a whole record: %v", i, err)
		}
	}
}
