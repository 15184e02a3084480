package bridge

import (
	"context"
	"strings"
	"time"

	"github.com/conneroisu/djbridge/internal/logging"
	"github.com/conneroisu/djbridge/internal/plugins"
)

// PyCacheDir is never added to the watcher.
const PyCacheDir = "__pycache__"

// ReloadWatcher turns backend file changes into full-reload messages.
type ReloadWatcher struct {
	predicate func(path string) bool
	delay     time.Duration
	watch     []string
	afterFunc func(d time.Duration, fn func())
	logger    logging.Logger
}

// NewReloadWatcher returns a watcher for cfg, or nil when reloading is
// disabled.
func NewReloadWatcher(cfg *ResolvedConfig, logger logging.Logger) *ReloadWatcher {
	predicate := cfg.Reload().Predicate()
	if predicate == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &ReloadWatcher{
		predicate: predicate,
		delay:     cfg.Delay(),
		watch:     FilterWatchPaths(cfg.Watch()),
		afterFunc: func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
		logger:    logger,
	}
}

// Attach registers the change callback and the extra watch paths. Every
// qualifying change schedules its own message after the delay; bursts are
// not coalesced.
func (rw *ReloadWatcher) Attach(w plugins.Watcher, hot plugins.HotChannel) {
	w.OnChange(func(path string) {
		if !rw.predicate(path) {
			return
		}
		rw.logger.Debug(context.Background(), "Backend file changed", "path", path)
		rw.afterFunc(rw.delay, func() {
			if err := hot.Send(plugins.FullReload("*")); err != nil {
				rw.logger.Warn(context.Background(), err, "Failed to send full reload")
			}
		})
	})

	if len(rw.watch) == 0 {
		return
	}
	if err := w.Add(rw.watch...); err != nil {
		rw.logger.Warn(context.Background(), err, "Failed to watch extra paths", "paths", rw.watch)
	}
}

// FilterWatchPaths drops paths that contain a Python bytecode cache segment.
func FilterWatchPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if strings.Contains(p, PyCacheDir) {
			continue
		}
		out = append(out, p)
	}
	return out
}
