package logtail

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/telhawk-systems/eventd/internal/logging"
	"github.com/telhawk-systems/eventd/internal/metrics"
)

// Sink receives batches produced by a read pass.
type Sink interface {
	// Interested reports whether anyone wants log records right now.
	Interested() bool
	// DispatchLog fans one batch out to subscribers.
	DispatchLog(records []LogRecord)
}

// Executor schedules fn onto the goroutine that owns the tailer. It may
// block until there is room; false means the owner has stopped.
type Executor func(fn func()) bool

// WatchState describes which inotify watches are installed.
type WatchState int

const (
	Unwatched WatchState = iota
	DirWatched
	DirAndFileWatched
)

func (s WatchState) String() string {
	switch s {
	case DirWatched:
		return "dir"
	case DirAndFileWatched:
		return "dir+file"
	default:
		return "unwatched"
	}
}

// Tailer follows one log file. All methods except Close must run on the
// goroutine behind the Executor.
type Tailer struct {
	path   string
	dir    string
	cursor *Cursor
	sink   Sink
	exec   Executor
	logger *slog.Logger

	watcher *fsnotify.Watcher
	state   WatchState
}

// New creates a tailer for path that resumes from cursor.
func New(path string, cursor *Cursor, sink Sink, exec Executor, logger *slog.Logger) *Tailer {
	if cursor == nil {
		cursor = &Cursor{}
	}
	path = filepath.Clean(path)
	return &Tailer{
		path:   path,
		dir:    filepath.Dir(path),
		cursor: cursor,
		sink:   sink,
		exec:   exec,
		logger: logger.With(logging.Path(path)),
	}
}

// Cursor returns the tailer's cursor.
func (t *Tailer) Cursor() *Cursor { return t.cursor }

// State returns the current watch state.
func (t *Tailer) State() WatchState { return t.state }

// Activate is called when the first log subscriber appears. The first call
// skips existing content (no history replay) and installs the watches; later
// calls are no-ops because the watches are never removed on Deactivate.
func (t *Tailer) Activate() error {
	if t.watcher != nil {
		return nil
	}
	n, err := t.CatchUp()
	if err != nil {
		return err
	}
	t.logger.Info("event log catch-up complete",
		logging.Offset(t.cursor.ByteOffset), slog.Int("skipped", n))
	return t.watch()
}

// Deactivate keeps the watches installed; batches are discarded by the sink
// check in Poll, so the cursor keeps advancing.
func (t *Tailer) Deactivate() {}

// CatchUp consumes everything after the cursor without dispatching it. Ids are
// still computed so same-second ids stay unique once new lines arrive.
func (t *Tailer) CatchUp() (int, error) {
	records, err := t.readPass()
	return len(records), err
}

func (t *Tailer) watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(t.dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", t.dir, err)
	}
	t.watcher = w
	t.state = DirWatched
	t.watchFile()

	go t.forward(w)
	return nil
}

// forward moves watcher events onto the owning goroutine.
func (t *Tailer) forward(w *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !t.exec(func() { t.Handle(ev) }) {
				t.logger.Debug("owner stopped, no longer forwarding file events", slog.String("op", ev.Op.String()))
				return
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			t.logger.Warn("file watcher error", logging.Error(err))
		}
	}
}

// watchFile installs the modify watch; failure is not fatal because the
// directory watch reports the file's creation later.
func (t *Tailer) watchFile() {
	if err := t.watcher.Add(t.path); err != nil {
		t.logger.Debug("file watch not installed", logging.Error(err))
		t.state = DirWatched
		return
	}
	t.state = DirAndFileWatched
}

func (t *Tailer) unwatchFile() {
	if t.state != DirAndFileWatched {
		return
	}
	_ = t.watcher.Remove(t.path)
	t.state = DirWatched
}

// Handle reacts to one filesystem event.
func (t *Tailer) Handle(ev fsnotify.Event) {
	if filepath.Clean(ev.Name) != t.path {
		return
	}
	switch {
	case ev.Has(fsnotify.Create):
		t.logger.Info("event log created, reading from start")
		if t.watcher != nil {
			t.unwatchFile()
			t.watchFile()
		}
		t.cursor.Reset()
		t.Poll()
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		t.logger.Info("event log moved away", slog.String("op", ev.Op.String()))
		if t.watcher != nil {
			t.unwatchFile()
		}
	case ev.Has(fsnotify.Write):
		t.Poll()
	}
}

// Poll runs one read pass and hands the batch to the sink when it is
// interested. Discarded batches are not replayed.
func (t *Tailer) Poll() {
	records, err := t.readPass()
	if err != nil {
		t.logger.Warn("event log read failed", logging.Error(err))
	}
	if len(records) == 0 {
		return
	}
	if !t.sink.Interested() {
		metrics.RecordsDropped.WithLabelValues("no_subscribers").Add(float64(len(records)))
		t.logger.Debug("discarding log batch, no subscribers", logging.Count(len(records)))
		return
	}
	t.sink.DispatchLog(records)
}

// readPass reads complete lines after the cursor. The cursor ends on the
// boundary of the last complete line; a partial trailing line is left for the
// next pass.
func (t *Tailer) readPass() ([]LogRecord, error) {
	f, err := os.Open(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(t.cursor.ByteOffset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek event log: %w", err)
	}

	var records []LogRecord
	r := bufio.NewReaderSize(f, 64*1024)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			metrics.LogtailOffset.Set(float64(t.cursor.ByteOffset))
			return records, fmt.Errorf("read event log: %w", err)
		}
		t.cursor.ByteOffset += int64(len(line))

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		rec, ok := ParseLine(t.cursor, line)
		if !ok {
			metrics.RecordsDropped.WithLabelValues("unparsable_line").Inc()
			t.logger.Debug("skipping unparsable log line", slog.String("line", line))
			continue
		}
		records = append(records, rec)
	}
	metrics.LogtailOffset.Set(float64(t.cursor.ByteOffset))
	return records, nil
}

// Close removes all watches. Call it after the owning loop has stopped.
func (t *Tailer) Close() error {
	if t.watcher == nil {
		return nil
	}
	err := t.watcher.Close()
	t.watcher = nil
	t.state = Unwatched
	return err
}
