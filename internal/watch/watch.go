// Package watch follows a change log as it grows.
package watch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/fakeyudi/snaptrace/internal/logging"
	"github.com/fakeyudi/snaptrace/internal/logview"
	"github.com/fakeyudi/snaptrace/tracer"
)

// Tailer delivers every event of the log at Path, then each event appended
// later, until its context is cancelled. The file may be absent at start and
// may be cleared while tailing; a shrunk or removed file is read again from
// the beginning.
type Tailer struct {
	Path   string
	Logger *slog.Logger

	offset  int64
	line    int
	partial []byte
}

// Tail runs a Tailer on path with no logging.
func Tail(ctx context.Context, path string, fn func(tracer.ChangeEvent)) error {
	return (&Tailer{Path: path}).Run(ctx, fn)
}

// Run blocks until ctx is cancelled or the watcher fails to start.
func (t *Tailer) Run(ctx context.Context, fn func(tracer.ChangeEvent)) error {
	if t.Logger == nil {
		t.Logger = logging.NewDiscardLogger()
	}
	path := filepath.Clean(t.Path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory so creation and removal of the log are seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	t.catchUp(path, fn)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				t.Logger.Debug("log removed", "path", path)
				t.reset()
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				t.catchUp(path, fn)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.Logger.Warn("watcher error", "error", err)
		}
	}
}

func (t *Tailer) reset() {
	t.offset = 0
	t.line = 0
	t.partial = nil
}

// catchUp reads whatever was appended since the last call and emits the
// complete lines.
func (t *Tailer) catchUp(path string, fn func(tracer.ChangeEvent)) {
	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			t.Logger.Warn("failed to open log", "path", path, "error", err)
		}
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		t.Logger.Warn("failed to stat log", "path", path, "error", err)
		return
	}
	if info.Size() < t.offset {
		t.Logger.Debug("log truncated", "path", path)
		t.reset()
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		t.Logger.Warn("failed to seek log", "path", path, "error", err)
		return
	}
	data, err := io.ReadAll(f)
	if err != nil {
		t.Logger.Warn("failed to read log", "path", path, "error", err)
		return
	}
	t.offset += int64(len(data))

	buf := append(t.partial, data...)
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		t.line++
		t.emit(string(buf[:i]), fn)
		buf = buf[i+1:]
	}
	t.partial = append([]byte(nil), buf...)
}

func (t *Tailer) emit(line string, fn func(tracer.ChangeEvent)) {
	parsed := logview.ParseLines([]string{line})
	for _, lerr := range parsed.Errors {
		t.Logger.Warn("skipping malformed log line", "line", t.line, "error", lerr.Err)
	}
	for _, ev := range parsed.Events {
		fn(ev)
	}
}
