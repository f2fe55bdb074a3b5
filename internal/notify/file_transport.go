package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/notesmith/notesmith/internal/clock"
)

// messageFile is the transient file broadcasts are written through. The
// writer clears it shortly after writing so a repeated identical
// broadcast still produces a distinct filesystem event.
const messageFile = "note-update.json"

const defaultClearDelay = 150 * time.Millisecond

// fileTransport broadcasts by writing the message file inside a shared
// directory and watching that directory with fsnotify. Every process
// pointed at the same directory sees every broadcast, including its own;
// receivers are expected to tolerate echoes.
type fileTransport struct {
	path       string
	clock      clock.Clock
	clearDelay time.Duration
	watcher    *fsnotify.Watcher
	broker     *broker
	done       chan struct{}
}

func newFileTransport(dir string, clk clock.Clock) (*fileTransport, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("os.MkdirAll(%s) > %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify.NewWatcher > %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watcher.Add(%s) > %w", dir, err)
	}

	t := &fileTransport{
		path:       filepath.Join(dir, messageFile),
		clock:      clk,
		clearDelay: defaultClearDelay,
		watcher:    watcher,
		broker:     newBroker(),
		done:       make(chan struct{}),
	}
	go t.run()
	return t, nil
}

func (t *fileTransport) Send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("json.Marshal(message) > %w", err)
	}
	// Write-then-rename publishes the message atomically and produces a
	// single Create event on the watched path, so one broadcast is
	// dispatched at most once per watcher.
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("os.WriteFile(%s) > %w", tmp, err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("os.Rename(%s) > %w", t.path, err)
	}

	// Clear the transient file so the next broadcast, even an identical
	// one, is observable as a fresh change.
	t.clock.AfterFunc(t.clearDelay, func() {
		_ = os.Remove(t.path)
	})
	return nil
}

func (t *fileTransport) Subscribe(handler Handler) func() {
	return t.broker.Subscribe(handler)
}

func (t *fileTransport) Close() error {
	if err := t.watcher.Close(); err != nil {
		return fmt.Errorf("watcher.Close > %w", err)
	}
	<-t.done
	return t.broker.Close()
}

func (t *fileTransport) run() {
	defer close(t.done)
	for {
		select {
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if event.Name != t.path {
				continue
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			t.dispatch()
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			slog.Default().Error("sync watcher error", "error", err)
		}
	}
}

func (t *fileTransport) dispatch() {
	data, err := os.ReadFile(t.path)
	if err != nil || len(data) == 0 {
		// The file may already have been cleared; broadcasts are
		// best-effort, so a missed read is not an error.
		return
	}
	msg, ok := decodeMessage(data)
	if !ok {
		slog.Default().Debug("ignoring malformed sync message", "path", t.path)
		return
	}
	_ = t.broker.Send(msg)
}
