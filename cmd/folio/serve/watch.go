package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/papercomputeco/folio/pkg/pipeline"
)

const reloadDebounce = 250 * time.Millisecond

// configTarget receives reloaded pipeline settings.
type configTarget interface {
	SetConfig(cfg pipeline.Config) error
}

// configWatcher reapplies the [pipeline] section whenever config.toml
// changes. Other sections need a restart.
type configWatcher struct {
	path   string
	load   func() (pipeline.Config, error)
	target configTarget
	logger *slog.Logger
}

// run watches the config file's directory until ctx is done. Editors often
// replace files by rename, so events are matched by name.
func (w *configWatcher) run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching config dir: %w", err)
	}

	w.logger.Info("watching config for changes", "path", w.path)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(reloadDebounce)
			pending = timer.C

		case <-pending:
			pending = nil
			w.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config_watch_error", "error", err)
		}
	}
}

// reload keeps the previous settings when the new file is invalid.
func (w *configWatcher) reload() {
	cfg, err := w.load()
	if err != nil {
		w.logger.Error("config_reload_failed", "error", err)
		return
	}
	if err := w.target.SetConfig(cfg); err != nil {
		w.logger.Error("config_reload_failed", "error", err)
		return
	}
	w.logger.Info("config_reloaded", "path", w.path)
}
