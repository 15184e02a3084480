package devserver

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/conneroisu/djbridge/internal/plugins"
	"github.com/conneroisu/djbridge/internal/watcher"
)

// watchAdapter exposes the file watcher to plugins.
type watchAdapter struct {
	fw *watcher.FileWatcher
}

var _ plugins.Watcher = (*watchAdapter)(nil)

func (a *watchAdapter) OnChange(fn func(path string)) {
	a.fw.Subscribe(func(e watcher.ChangeEvent) {
		fn(e.Path)
	})
}

// Add watches files directly and directories recursively.
func (a *watchAdapter) Add(paths ...string) error {
	var errs []error
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("watch %s: %w", p, err))
			continue
		}
		if info.IsDir() {
			err = a.fw.AddRecursive(p, watcher.IgnoredDir)
		} else {
			err = a.fw.AddPath(p)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("watch %s: %w", p, err))
		}
	}
	return stderrors.Join(errs...)
}
