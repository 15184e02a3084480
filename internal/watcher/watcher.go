package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/djbridge/internal/logging"
)

// FileWatcher watches files and directories. Every event that passes the
// filters is delivered immediately to change subscribers, and grouped by the
// debouncer for batch handlers.
type FileWatcher struct {
	watcher     *fsnotify.Watcher
	debouncer   *Debouncer
	filters     []FileFilter
	handlers    []ChangeHandler
	subscribers []func(ChangeEvent)
	watched     map[string]struct{}
	logger      logging.Logger
	mutex       sync.RWMutex
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter determines if a file should be watched
type FileFilter func(path string) bool

// ChangeHandler handles a debounced batch of change events
type ChangeHandler func(events []ChangeEvent) error

// Debouncer groups rapid file changes together
type Debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	timer   *time.Timer
	pending []ChangeEvent
	mutex   sync.Mutex
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(debounceDelay time.Duration) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debouncer := &Debouncer{
		delay:   debounceDelay,
		events:  make(chan ChangeEvent, 100),
		output:  make(chan []ChangeEvent, 10),
		pending: make([]ChangeEvent, 0),
	}

	return &FileWatcher{
		watcher:   watcher,
		debouncer: debouncer,
		filters:   make([]FileFilter, 0),
		handlers:  make([]ChangeHandler, 0),
		watched:   make(map[string]struct{}),
		logger:    logging.Nop(),
	}, nil
}

// SetLogger sets the logger for watch and handler errors.
func (fw *FileWatcher) SetLogger(l logging.Logger) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.logger = l.WithComponent("watcher")
}

// AddFilter adds a file filter. An event is dropped as soon as one filter
// rejects its path.
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a debounced batch handler
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// Subscribe registers fn for every accepted event, without debouncing.
func (fw *FileWatcher) Subscribe(fn func(ChangeEvent)) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.subscribers = append(fw.subscribers, fn)
}

// AddPath adds a single file or directory to watch
func (fw *FileWatcher) AddPath(path string) error {
	cleanPath, err := cleanWatchPath(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	return fw.add(cleanPath)
}

// AddRecursive adds a directory and all subdirectories to watch. Directories
// rejected by skipDir are not descended into.
func (fw *FileWatcher) AddRecursive(root string, skipDir func(name string) bool) error {
	cleanRoot, err := cleanWatchPath(root)
	if err != nil {
		return fmt.Errorf("invalid root path: %w", err)
	}

	return filepath.WalkDir(cleanRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != cleanRoot && skipDir != nil && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return fw.add(path)
	})
}

func (fw *FileWatcher) add(path string) error {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()

	if _, ok := fw.watched[path]; ok {
		return nil
	}
	if err := fw.watcher.Add(path); err != nil {
		return err
	}
	fw.watched[path] = struct{}{}
	return nil
}

// WatchedPaths returns the watched paths in lexical order.
func (fw *FileWatcher) WatchedPaths() []string {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()

	paths := make([]string, 0, len(fw.watched))
	for p := range fw.watched {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// cleanWatchPath resolves path to an absolute, cleaned form. Backend sources
// usually live outside the front-end root, so paths are not confined to the
// working directory.
func cleanWatchPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("path contains NUL byte")
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}

	if _, err := os.Stat(absPath); err != nil {
		return "", err
	}

	return absPath, nil
}

// Start starts the file watcher
func (fw *FileWatcher) Start(ctx context.Context) error {
	go fw.debouncer.start(ctx)
	go fw.processEvents(ctx)
	go fw.watchLoop(ctx)

	return nil
}

// Stop stops the file watcher and cleans up resources
func (fw *FileWatcher) Stop() error {
	fw.debouncer.mutex.Lock()
	if fw.debouncer.timer != nil {
		fw.debouncer.timer.Stop()
	}
	fw.debouncer.mutex.Unlock()

	return fw.watcher.Close()
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log().Warn(ctx, err, "File watcher error")
		}
	}
}

func (fw *FileWatcher) log() logging.Logger {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()
	return fw.logger
}

func (fw *FileWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	changeEvent, ok := fw.toChangeEvent(event)
	if !ok {
		return
	}

	fw.dispatch(changeEvent)
}

func (fw *FileWatcher) toChangeEvent(event fsnotify.Event) (ChangeEvent, bool) {
	fw.mutex.RLock()
	filters := fw.filters
	fw.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(event.Name) {
			return ChangeEvent{}, false
		}
	}

	var modTime time.Time
	var size int64
	if info, err := os.Stat(event.Name); err == nil {
		modTime = info.ModTime()
		size = info.Size()
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = EventTypeCreated
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = EventTypeModified
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		eventType = EventTypeDeleted
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = EventTypeRenamed
	default:
		eventType = EventTypeModified
	}

	return ChangeEvent{
		Type:    eventType,
		Path:    event.Name,
		ModTime: modTime,
		Size:    size,
	}, true
}

// dispatch delivers an accepted event to subscribers and the debouncer.
func (fw *FileWatcher) dispatch(event ChangeEvent) {
	fw.mutex.RLock()
	subscribers := fw.subscribers
	fw.mutex.RUnlock()

	for _, fn := range subscribers {
		fn(event)
	}

	select {
	case fw.debouncer.events <- event:
	default:
		// Channel full, skip this event
	}
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-fw.debouncer.output:
			fw.mutex.RLock()
			handlers := fw.handlers
			fw.mutex.RUnlock()

			for _, handler := range handlers {
				if err := handler(events); err != nil {
					fw.log().Warn(ctx, err, "File watcher handler failed", "events", len(events))
				}
			}
		}
	}
}

// Debouncer implementation
func (d *Debouncer) start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.events:
			d.addEvent(event)
		}
	}
}

func (d *Debouncer) addEvent(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.pending = append(d.pending, event)

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(d.pending) == 0 {
		return
	}

	// Deduplicate events by path, keeping the latest
	eventMap := make(map[string]ChangeEvent)
	order := make([]string, 0, len(d.pending))
	for _, event := range d.pending {
		if _, seen := eventMap[event.Path]; !seen {
			order = append(order, event.Path)
		}
		eventMap[event.Path] = event
	}

	events := make([]ChangeEvent, 0, len(eventMap))
	for _, path := range order {
		events = append(events, eventMap[path])
	}

	select {
	case d.output <- events:
	default:
		// Channel full, skip
	}

	d.pending = d.pending[:0]
}

// Common file filters

// NoGitFilter rejects paths inside .git directories.
func NoGitFilter(path string) bool {
	return !hasSegment(path, ".git")
}

// NoNodeModulesFilter rejects paths inside node_modules.
func NoNodeModulesFilter(path string) bool {
	return !hasSegment(path, "node_modules")
}

// NoPyCacheFilter rejects Python bytecode caches.
func NoPyCacheFilter(path string) bool {
	return !strings.Contains(path, "__pycache__") && filepath.Ext(path) != ".pyc"
}

// NoEditorTempFilter rejects editor swap and backup files.
func NoEditorTempFilter(path string) bool {
	base := filepath.Base(path)
	return !strings.HasSuffix(base, "~") &&
		!strings.HasSuffix(base, ".swp") &&
		!strings.HasPrefix(base, ".#")
}

// IgnoredDir reports whether a directory should never be watched recursively.
func IgnoredDir(name string) bool {
	switch name {
	case ".git", "node_modules", "__pycache__", ".venv", "venv":
		return true
	}
	return false
}

func hasSegment(path, segment string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == segment {
			return true
		}
	}
	return false
}
