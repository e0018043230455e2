package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fakeyudi/snaptrace/tracer"
)

const waitFor = 5 * time.Second

type tailHarness struct {
	sink   *tracer.FileSink
	events chan tracer.ChangeEvent
	done   chan error
}

func startTail(t *testing.T, path string) *tailHarness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := &tailHarness{
		sink:   tracer.NewFileSink(path),
		events: make(chan tracer.ChangeEvent, 64),
		done:   make(chan error, 1),
	}
	go func() {
		h.done <- Tail(ctx, path, func(ev tracer.ChangeEvent) { h.events <- ev })
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-h.done:
			if err != nil {
				t.Errorf("Tail returned error: %v", err)
			}
		case <-time.After(waitFor):
			t.Error("Tail did not stop after cancel")
		}
	})
	return h
}

func (h *tailHarness) record(t *testing.T, method string) {
	t.Helper()
	ev := tracer.NewChangeEvent("Log", method, tracer.ChangeSet{"n": {Before: 0, After: 1}}, nil)
	if err := tracer.NewRecorder(h.sink).Record(ev); err != nil {
		t.Fatalf("Record: %v", err)
	}
}

func (h *tailHarness) expect(t *testing.T, method string) {
	t.Helper()
	select {
	case ev := <-h.events:
		if ev.Method != method {
			t.Fatalf("want event %q, got %q", method, ev.Method)
		}
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for event %q", method)
	}
}

func TestTailEmitsExistingThenAppended(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	sink := tracer.NewFileSink(path)
	rec := tracer.NewRecorder(sink)
	if err := rec.Record(tracer.NewChangeEvent("Log", "first", tracer.ChangeSet{"n": {After: 1}}, nil)); err != nil {
		t.Fatal(err)
	}

	h := startTail(t, path)
	h.expect(t, "first")

	h.record(t, "second")
	h.expect(t, "second")
	h.record(t, "third")
	h.expect(t, "third")
}

func TestTailWaitsForMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	h := startTail(t, path)

	// Nothing to sync on yet, so keep writing until the watcher sees one.
	deadline := time.Now().Add(waitFor)
	for {
		h.record(t, "created")
		select {
		case ev := <-h.events:
			if ev.Method != "created" {
				t.Fatalf("unexpected event %q", ev.Method)
			}
			return
		case <-time.After(100 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the created log")
		}
	}
}

func TestTailRestartsAfterClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	h := startTail(t, path)
	h.record(t, "before")
	h.expect(t, "before")

	if err := h.sink.Clear(); err != nil {
		t.Fatal(err)
	}
	h.record(t, "after")
	h.expect(t, "after")
}

func TestTailJoinsPartialLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	h := startTail(t, path)
	h.record(t, "sync")
	h.expect(t, "sync")

	line, err := tracer.NewChangeEvent("Log", "split", tracer.ChangeSet{"n": {After: 2}}, nil).Encode()
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	half := len(line) / 2
	if _, err := f.Write(line[:half]); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-h.events:
		t.Fatalf("half a line should not be emitted, got %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
	if _, err := f.Write(append(line[half:], '\n')); err != nil {
		t.Fatal(err)
	}
	h.expect(t, "split")
}

func TestTailSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	if err := os.WriteFile(path, []byte("garbage\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := startTail(t, path)
	h.record(t, "good")
	h.expect(t, "good")
}

func TestTailMissingDirectory(t *testing.T) {
	err := Tail(context.Background(), filepath.Join(t.TempDir(), "nope", "log.txt"), func(tracer.ChangeEvent) {})
	if err == nil {
		t.Fatal("expected an error for a missing directory")
	}
}
