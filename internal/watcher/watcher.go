// Package watcher watches split image directories and schedules debounced artifact rebuilds.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 2 * time.Second

// Watcher maps file events in split directories to a per-split change callback.
// Bursts of events for one split collapse into a single callback after the debounce interval.
type Watcher struct {
	dirs        map[string]string // cleaned dir -> split name
	extensions  []string
	onChange    func(split string)
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets the quiet period before onChange fires.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher. splitDirs maps split name to image directory; extensions
// filter which files count as changes (empty = all).
func NewWatcher(splitDirs map[string]string, extensions []string, onChange func(split string), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dirs:        make(map[string]string, len(splitDirs)),
		extensions:  extensions,
		onChange:    onChange,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
	}
	for split, dir := range splitDirs {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		w.dirs[filepath.Clean(dir)] = split
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. Missing split directories are created so that images added later are
// seen. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	for dir := range w.dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			_ = watcher.Close()
			w.mu.Unlock()
			return err
		}
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			w.mu.Unlock()
			return err
		}
	}
	w.watcher = watcher
	w.started = true
	if w.logger != nil {
		w.logger.Debug("watcher starting", zap.Strings("dirs", w.directoriesLocked()), zap.Duration("debounce", w.debounce))
	}
	w.mu.Unlock()
	go w.run(ctx, watcher)
	return nil
}

func (w *Watcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Warn("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	split, ok := w.splitFor(ev.Name)
	if !ok || !matchExtension(ev.Name, w.extensions) {
		return
	}
	if w.logger != nil {
		w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name), zap.String("split", split))
	}
	w.schedule(split)
}

// splitFor returns the split whose directory directly contains path.
func (w *Watcher) splitFor(path string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	split, ok := w.dirs[filepath.Dir(filepath.Clean(path))]
	return split, ok
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) schedule(split string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if t, ok := w.debounceMap[split]; ok {
		t.Stop()
	}
	w.debounceMap[split] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, split)
		logger := w.logger
		w.mu.Unlock()
		if logger != nil {
			logger.Info("split changed, rebuilding", zap.String("split", split))
		}
		if w.onChange != nil {
			w.onChange(split)
		}
	})
}

// Directories returns the watched image directories, sorted.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.directoriesLocked()
}

func (w *Watcher) directoriesLocked() []string {
	out := make([]string, 0, len(w.dirs))
	for dir := range w.dirs {
		out = append(out, dir)
	}
	sort.Strings(out)
	return out
}

// Stop stops the watcher, drops pending rebuilds, and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for split, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, split)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
