// Package watch invalidates thumbnail cache entries when files under the
// media root change on disk.
package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gobbledegook/creevey/internal/logging"
	"github.com/gobbledegook/creevey/internal/media"
	"github.com/gobbledegook/creevey/internal/metrics"
)

// DefaultDelay is how long a path has to stay quiet before it is invalidated.
// Cameras and copy tools write a file in many small chunks.
const DefaultDelay = 250 * time.Millisecond

// Invalidator is told about paths whose contents changed or disappeared.
type Invalidator interface {
	Invalidate(path string)
}

// Watcher watches a directory tree and forwards debounced changes to an
// Invalidator.
type Watcher struct {
	fsw    *fsnotify.Watcher
	root   string
	target Invalidator
	delay  time.Duration

	mu      sync.Mutex
	dirty   map[string]struct{}
	timer   *time.Timer
	started bool
	stopped bool
	dirs    int

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a watcher on every non-hidden directory under root. Call Start
// to begin delivering events.
func New(root string, target Invalidator, delay time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		metrics.WatcherErrors.Inc()
		return nil, err
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	w := &Watcher{
		fsw:    fsw,
		root:   root,
		target: target,
		delay:  delay,
		dirty:  make(map[string]struct{}),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if err := w.addRecursive(root); err != nil {
		if cerr := fsw.Close(); cerr != nil {
			logging.Warn("failed to close file watcher: %v", cerr)
		}
		return nil, err
	}
	logging.Debug("Watcher started, watching %d directories under %s", w.dirs, root)
	return w, nil
}

// addRecursive adds dir and its subdirectories, skipping hidden ones.
func (w *Watcher) addRecursive(dir string) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			logging.Warn("failed to add path to watcher %s: %v", path, addErr)
			metrics.WatcherErrors.Inc()
			return nil
		}
		w.mu.Lock()
		w.dirs++
		w.mu.Unlock()
		metrics.WatchedDirectories.Inc()
		return nil
	})
	return err
}

// Start processes events in the background until Stop.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true
	go w.run()
}

// Stop shuts the watcher down. Pending changes are delivered first.
func (w *Watcher) Stop() {
	w.stopOnce.Do(w.shutdown)
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	started := w.started
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	dirs := w.dirs
	w.mu.Unlock()

	close(w.stop)
	if err := w.fsw.Close(); err != nil {
		logging.Error("failed to close file watcher: %v", err)
	}
	if started {
		<-w.done
	}
	w.flush()
	metrics.WatchedDirectories.Sub(float64(dirs))
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Error("Watcher error: %v", err)
			metrics.WatcherErrors.Inc()
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if strings.Contains(event.Name, string(filepath.Separator)+".") {
		return
	}
	eventType := eventType(event.Op)
	if eventType == "" {
		return
	}
	metrics.WatcherEventsTotal.WithLabelValues(eventType).Inc()

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				logging.Warn("failed to watch new directory %s: %v", event.Name, err)
			}
			return
		}
	}
	if media.IsImage(event.Name) {
		w.record(event.Name)
	}
}

// eventType names the operations that can change a thumbnail. Chmod is
// ignored.
func eventType(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	}
	return ""
}

// record marks path dirty and restarts the quiet period.
func (w *Watcher) record(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.dirty[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.flush)
}

// flush invalidates every dirty path.
func (w *Watcher) flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.dirty))
	for p := range w.dirty {
		paths = append(paths, p)
	}
	clear(w.dirty)
	w.mu.Unlock()

	for _, p := range paths {
		logging.Debug("Invalidating %s", p)
		w.target.Invalidate(p)
	}
}
