package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ritzau/tag-flow/pkg/catalog"
	"github.com/ritzau/tag-flow/pkg/debounce"
	"github.com/ritzau/tag-flow/pkg/logging"
)

// Watcher reloads the workspace catalog whenever its file changes
type Watcher struct {
	path      string
	watcher   *fsnotify.Watcher
	debouncer *debounce.Debouncer[fsnotify.Event]
	onChange  func(*catalog.Catalog)
	logger    *slog.Logger
}

// NewWatcher creates a watcher for the workspace file at path.
// The parent directory is watched so that editors replacing the file are seen.
func NewWatcher(path string, quietPeriod time.Duration, onChange func(*catalog.Catalog)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:      abs,
		watcher:   fsw,
		debouncer: debounce.New[fsnotify.Event](quietPeriod, 4*quietPeriod),
		onChange:  onChange,
		logger:    logging.New("workspace.watcher"),
	}, nil
}

// Start processes file events until ctx is cancelled
func (w *Watcher) Start(ctx context.Context) {
	w.debouncer.Start(ctx)
	go w.processEvents(ctx)
	go w.reloadLoop()
	w.logger.Info("watching workspace", "path", w.path)
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("workspace file changed", "op", event.Op.String())
			w.debouncer.Trigger(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) reloadLoop() {
	for range w.debouncer.Output() {
		cat, err := LoadCatalog(w.path)
		if err != nil {
			// Keep the previous catalog; the next write will retry
			w.logger.Warn("failed to reload workspace", "error", err)
			continue
		}
		w.logger.Info("workspace reloaded", "factSheetTypes", len(cat.FactSheetTypes))
		w.onChange(cat)
	}
}
