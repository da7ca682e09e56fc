package skills

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates a Manager's cache on filesystem changes under one or
// more roots, so long-lived deployments pick up skill edits without a
// manual refresh.
type Watcher struct {
	fsw     *fsnotify.Watcher
	manager *Manager
	logger  *slog.Logger
	done    chan struct{}
}

// NewWatcher creates (but does not start) a watcher over the given root
// directories.
func NewWatcher(manager *Manager, roots []string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, root := range roots {
		if err := fsw.Add(root); err != nil {
			logger.Warn("skills: watch root unavailable", "root", root, "error", err)
		}
	}
	return &Watcher{fsw: fsw, manager: manager, logger: logger, done: make(chan struct{})}, nil
}

// Run blocks, refreshing the manager's cache on each write/create/remove/
// rename event, until Stop is called.
func (w *Watcher) Run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				if _, err := w.manager.Refresh(); err != nil {
					w.logger.Error("skills: watch-triggered refresh failed", "error", err)
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("skills: watch error", "error", err)
		case <-w.done:
			return
		}
	}
}

// Stop terminates Run and closes the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	close(w.done)
	w.fsw.Close()
}
