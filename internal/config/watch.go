package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Config from disk whenever its source file changes,
// applying the new values onto the live *Config in place (via
// ReplaceFrom) so callers holding a pointer see the update without a
// restart.
type Watcher struct {
	path    string
	cfg     *Config
	watcher *fsnotify.Watcher
	log     *slog.Logger
	done    chan struct{}
}

// NewWatcher starts watching path for writes and renames (editors
// typically replace the file rather than writing in place) and applies
// each successfully-parsed reload onto cfg.
func NewWatcher(path string, cfg *Config, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{path: path, cfg: cfg, watcher: fw, log: log, done: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Editors that replace-on-save (rename-into-place) drop the
			// watch on the old inode; re-add defensively every time.
			_ = w.watcher.Add(w.path)

			reloaded, err := Load(w.path)
			if err != nil {
				w.log.Warn("config reload failed, keeping previous config", "path", w.path, "err", err)
				continue
			}
			w.cfg.ReplaceFrom(reloaded)
			w.log.Info("config reloaded", "path", w.path)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", "err", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
