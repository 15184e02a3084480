package devserver

import (
	"bytes"
	"context"
	stderrors "errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/conneroisu/djbridge/internal/errors"
	"github.com/conneroisu/djbridge/internal/logging"
	"github.com/conneroisu/djbridge/internal/plugins"
)

// sourceExtensions are served through the transform chain.
var sourceExtensions = map[string]string{
	".js":     "text/javascript; charset=utf-8",
	".mjs":    "text/javascript; charset=utf-8",
	".jsx":    "text/javascript; charset=utf-8",
	".ts":     "text/javascript; charset=utf-8",
	".tsx":    "text/javascript; charset=utf-8",
	".vue":    "text/javascript; charset=utf-8",
	".svelte": "text/javascript; charset=utf-8",
	".css":    "text/css; charset=utf-8",
	".html":   "text/html; charset=utf-8",
	".json":   "application/json",
}

// IsSource reports whether path is served through the transform chain.
func IsSource(path string) bool {
	_, ok := sourceExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Transformer runs served sources through the plugin transform chain.
type Transformer interface {
	Transform(ctx context.Context, code, id string) (string, error)
}

// mount maps a URL prefix to a directory.
type mount struct {
	prefix string
	dir    string
}

// staticHandler serves files from the root and from alias directories.
type staticHandler struct {
	mounts      []mount
	transformer Transformer
	logger      logging.Logger
}

func newStaticHandler(cfg *plugins.ResolvedHostConfig, transformer Transformer, logger logging.Logger) *staticHandler {
	mounts := make([]mount, 0, len(cfg.Resolve.Alias)+1)
	for _, a := range cfg.Resolve.Alias {
		if a.Find == "" || a.Replacement == "" || strings.Contains(a.Find, "/") {
			continue
		}
		mounts = append(mounts, mount{prefix: "/" + a.Find + "/", dir: a.Replacement})
	}
	// longest prefix first
	sort.SliceStable(mounts, func(i, j int) bool { return len(mounts[i].prefix) > len(mounts[j].prefix) })
	mounts = append(mounts, mount{prefix: "/", dir: cfg.Root})

	return &staticHandler{mounts: mounts, transformer: transformer, logger: logger}
}

// resolve maps a URL path to a file inside one of the mounts.
func (h *staticHandler) resolve(urlPath string) (string, error) {
	if strings.ContainsRune(urlPath, 0) {
		return "", errors.NewValidationError(errors.ErrCodeInvalidPath, "path contains NUL byte")
	}
	clean := path.Clean("/" + urlPath)

	for _, m := range h.mounts {
		if !strings.HasPrefix(clean+"/", m.prefix) && clean != strings.TrimSuffix(m.prefix, "/") {
			continue
		}
		rel := strings.TrimPrefix(clean, strings.TrimSuffix(m.prefix, "/"))
		rel = strings.TrimPrefix(rel, "/")

		base, err := filepath.Abs(m.dir)
		if err != nil {
			return "", err
		}
		full := filepath.Join(base, filepath.FromSlash(rel))
		within, err := filepath.Rel(base, full)
		if err != nil || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
			return "", errors.NewValidationError(errors.ErrCodeInvalidPath, "path escapes served directory").
				WithFile(urlPath)
		}
		return full, nil
	}

	return "", errors.NewValidationError(errors.ErrCodeInvalidPath, "no mount for path").WithFile(urlPath)
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	file, err := h.resolve(r.URL.Path)
	if err != nil {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	info, err := os.Stat(file)
	if err != nil || info.IsDir() {
		if err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			h.logger.Warn(r.Context(), err, "Failed to stat file", "path", file)
		}
		http.NotFound(w, r)
		return
	}

	if !IsSource(file) {
		http.ServeFile(w, r, file)
		return
	}

	h.serveSource(w, r, file)
}

// serveSource transforms on every request. Output depends on the live dev
// server URL, so no modification time is sent.
func (h *staticHandler) serveSource(w http.ResponseWriter, r *http.Request, file string) {
	data, err := os.ReadFile(file)
	if err != nil {
		h.logger.Warn(r.Context(), err, "Failed to read source", "path", file)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	code, err := h.transformer.Transform(r.Context(), string(data), r.URL.Path)
	if err != nil {
		h.logger.Error(r.Context(), err, "Transform failed", "path", r.URL.Path)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ext := strings.ToLower(filepath.Ext(file))
	if ext == ".html" {
		code = InjectClient(code)
	}

	w.Header().Set("Content-Type", sourceExtensions[ext])
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, filepath.Base(file), time.Time{}, bytes.NewReader([]byte(code)))
}
