// Package watch turns filesystem notifications under the scan roots into
// debounced batches of changed paths.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"filecatalog/internal/core/walk"
)

type Watcher struct {
	roots     []string
	filters   map[string]*walk.Filter
	ignore    []string
	debouncer *Debouncer
	debounce  time.Duration
	log       *slog.Logger

	watcher   *fsnotify.Watcher
	closeOnce sync.Once
	closed    chan struct{}
}

type Options struct {
	Debounce         time.Duration
	AdaptiveDebounce bool
	DebounceMin      time.Duration
	DebounceMax      time.Duration
	Filter           walk.Options
	// Ignore lists path prefixes whose events are dropped, such as the
	// catalog database and state files when they live under a root.
	Ignore   []string
	OnChange func(paths []string)
	Logger   *slog.Logger
}

func NewWatcher(roots []string, opts Options) (*Watcher, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("at least one root is required")
	}
	if opts.OnChange == nil {
		return nil, fmt.Errorf("OnChange is required")
	}

	w := &Watcher{
		filters: map[string]*walk.Filter{},
		log:     opts.Logger,
		closed:  make(chan struct{}),
	}
	if w.log == nil {
		w.log = slog.Default()
	}
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		abs = filepath.Clean(abs)
		f, err := walk.NewFilter(abs, opts.Filter)
		if err != nil {
			return nil, err
		}
		w.roots = append(w.roots, abs)
		w.filters[abs] = f
	}
	for _, p := range opts.Ignore {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			w.ignore = append(w.ignore, filepath.Clean(abs))
		}
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	minDelay := opts.DebounceMin
	if minDelay <= 0 {
		minDelay = 50 * time.Millisecond
	}
	maxDelay := opts.DebounceMax
	if maxDelay <= 0 {
		maxDelay = 500 * time.Millisecond
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	w.debounce = debounce
	w.debouncer = NewDebouncer(debounce)
	if opts.AdaptiveDebounce {
		w.debouncer.SetDelayFunc(func(count int) time.Duration {
			switch {
			case count <= 10:
				return minDelay
			case count <= 100:
				return minDelay * 2
			case count <= 500:
				return minDelay * 4
			default:
				return maxDelay
			}
		})
	}
	w.debouncer.OnFire(opts.OnChange)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w.watcher = fsw
	for _, root := range w.roots {
		if err := w.addDirRecursive(root); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) Debounce() time.Duration {
	if w == nil {
		return 0
	}
	return w.debounce
}

func (w *Watcher) Roots() []string {
	return append([]string(nil), w.roots...)
}

func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}

	w.closeOnce.Do(func() { close(w.closed) })
	w.debouncer.Stop()

	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}

// Run delivers events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	if w == nil || w.watcher == nil {
		return fmt.Errorf("watcher is not initialized")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.closed:
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	abs := filepath.Clean(ev.Name)
	root, rel, ok := w.locate(abs)
	if !ok || w.isIgnored(abs) {
		return
	}

	if ev.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
		if st, err := os.Stat(abs); err == nil && st.IsDir() {
			if !w.filters[root].ShouldInclude(rel, true) {
				return
			}
			if err := w.addDirRecursive(abs); err != nil {
				w.log.Warn("watch new directory", "dir", abs, "err", err)
			}
			w.debouncer.Push(abs)
			return
		}
	}

	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	// removed directories cannot be told apart from files here; the
	// scanner resolves both
	if ev.Op&(fsnotify.Remove|fsnotify.Rename) == 0 && !w.filters[root].ShouldInclude(rel, false) {
		return
	}
	w.debouncer.Push(abs)
}

// locate returns the root containing abs and abs relative to it.
func (w *Watcher) locate(abs string) (string, string, bool) {
	best := ""
	for _, root := range w.roots {
		if strings.HasPrefix(abs, root+string(filepath.Separator)) && len(root) > len(best) {
			best = root
		}
	}
	if best == "" {
		return "", "", false
	}
	rel, err := filepath.Rel(best, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", "", false
	}
	return best, filepath.ToSlash(rel), true
}

func (w *Watcher) isIgnored(abs string) bool {
	for _, p := range w.ignore {
		if abs == p || strings.HasPrefix(abs, p) {
			return true
		}
	}
	return false
}

func (w *Watcher) addDirRecursive(absDir string) error {
	absDir = filepath.Clean(absDir)

	return filepath.WalkDir(absDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.isIgnored(p) {
			return filepath.SkipDir
		}
		for _, root := range w.roots {
			if p == root {
				return w.watcher.Add(p)
			}
		}

		root, rel, ok := w.locate(p)
		if !ok {
			return nil
		}
		if !w.filters[root].ShouldInclude(rel, true) {
			return filepath.SkipDir
		}
		return w.watcher.Add(p)
	})
}
