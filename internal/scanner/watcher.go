package scanner

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces a burst of filesystem events on the same path
// into a single scan request.
const DefaultDebounce = 500 * time.Millisecond

// debouncer coalesces repeated fsnotify events for the same path into one
// callback invocation, fired Debounce after the last event for that path.
type debouncer struct {
	mu       sync.Mutex
	timers   map[string]*time.Timer
	debounce time.Duration
	fire     func(path string)
}

func newDebouncer(debounce time.Duration, fire func(path string)) *debouncer {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &debouncer{
		timers:   make(map[string]*time.Timer),
		debounce: debounce,
		fire:     fire,
	}
}

func (d *debouncer) touch(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[path]; ok {
		t.Stop()
	}
	d.timers[path] = time.AfterFunc(d.debounce, func() {
		d.mu.Lock()
		delete(d.timers, path)
		d.mu.Unlock()
		d.fire(path)
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.timers {
		t.Stop()
	}
	d.timers = make(map[string]*time.Timer)
}

// Watcher wraps an fsnotify.Watcher with per-path debouncing. Each watched
// worktree root is added recursively by the monitor pool as worktrees are
// discovered.
type Watcher struct {
	fs   *fsnotify.Watcher
	deb  *debouncer
	done chan struct{}
}

// NewWatcher starts a debounced filesystem watcher. onChange is invoked
// (from an internal goroutine) once per path, debounce after the last
// write/create/remove event seen for that path.
func NewWatcher(debounce time.Duration, onChange func(path string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fs:   fsw,
		deb:  newDebouncer(debounce, onChange),
		done: make(chan struct{}),
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.deb.touch(ev.Name)
			}
		case _, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			// Errors are surfaced to callers via the monitor's own git-query
			// failure path on the next scan; a watch-layer error alone
			// shouldn't demote a worktree.
		case <-w.done:
			return
		}
	}
}

// Add begins watching dir (non-recursively; callers add every directory
// that may contain PRP files, typically the worktree root and PRPs/).
func (w *Watcher) Add(dir string) error {
	return w.fs.Add(dir)
}

// AddTree watches root and every subdirectory under it, skipping .git.
func (w *Watcher) AddTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".git") && path != root {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

// Close stops the watcher and its debounce timers.
func (w *Watcher) Close() error {
	close(w.done)
	w.deb.stop()
	return w.fs.Close()
}
