package bridge

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/conneroisu/djbridge/internal/errors"
)

// WriteMarker publishes url in the marker file at path, creating parent
// directories as needed. While the file exists the backend serves assets
// from the dev server instead of the build output.
func WriteMarker(path, url string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.NewIOError(errors.ErrCodeMarkerWrite, "cannot create marker directory", err).
			WithFile(path)
	}
	if err := os.WriteFile(path, []byte(url), 0o644); err != nil {
		return errors.NewIOError(errors.ErrCodeMarkerWrite, "cannot write marker file", err).
			WithFile(path)
	}
	return nil
}

// RemoveMarker deletes the marker file. A missing file is not an error.
func RemoveMarker(path string) error {
	err := os.Remove(path)
	if err == nil || stderrors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return errors.NewIOError(errors.ErrCodeMarkerRemove, "cannot remove marker file", err).
		WithFile(path)
}
