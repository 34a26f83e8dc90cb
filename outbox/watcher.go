// Package outbox watches the recordings directory so a finished capture can
// be attached to the next outgoing message without the user naming the file.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher announces new .wav recordings appearing in one directory.
type Watcher struct {
	dir        string
	watcher    *fsnotify.Watcher
	discovered chan string
}

func New(dir string) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		dir:        dir,
		watcher:    watcher,
		discovered: make(chan string, 16),
	}, nil
}

// Recordings delivers the path of each new recording.
func (w *Watcher) Recordings() <-chan string {
	return w.discovered
}

// Run watches until the context ends.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	if err := w.watcher.Add(w.dir); err != nil {
		slog.Error("Failed to start watching recordings directory",
			"error", err,
			"path", w.dir)
		return
	}

	slog.Info("Watching recordings directory", "path", w.dir)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("File watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	// Skip temporary files and non-create events
	if strings.HasSuffix(event.Name, ".tmp") || event.Op != fsnotify.Create {
		return
	}
	if !strings.HasSuffix(event.Name, ".wav") {
		return
	}

	select {
	case w.discovered <- event.Name:
		slog.Info("Found new recording", "file", filepath.Base(event.Name))
	default:
		slog.Warn("Recording queue is full, dropping", "file", filepath.Base(event.Name))
	}
}
