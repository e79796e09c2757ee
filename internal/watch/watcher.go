// Package watch rebuilds a project whenever its configuration or one of its
// local patch directories changes.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/rommer/internal/logfields"
	"git.home.luguber.info/inful/rommer/internal/patch"
)

// DefaultDebounce collapses bursts of events (editors, git checkouts) into one build.
const DefaultDebounce = 2 * time.Second

// BuildFunc runs one build. Errors are logged and do not stop watching.
type BuildFunc func(ctx context.Context) error

// Watcher triggers debounced builds. Builds never overlap.
type Watcher struct {
	configPath string
	debounce   time.Duration
	logger     *slog.Logger
	fs         *fsnotify.Watcher

	mu    sync.Mutex
	trees map[string]struct{}
}

// New watches the directory holding configPath and every directory in trees.
func New(configPath string, trees []string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	absConfig, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{
		configPath: absConfig,
		debounce:   debounce,
		logger:     logger,
		fs:         fsw,
		trees:      map[string]struct{}{},
	}
	if err := fsw.Add(filepath.Dir(absConfig)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch config directory %s: %w", filepath.Dir(absConfig), err)
	}
	for _, t := range trees {
		if err := w.AddTree(t); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// AddTree watches dir and all its subdirectories. Adding a tree twice is a no-op.
func (w *Watcher) AddTree(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.trees[abs]; ok {
		return nil
	}
	if _, err := os.Stat(abs); err != nil {
		w.logger.Warn("Not watching missing patch directory", logfields.Path(abs))
		return nil
	}
	w.trees[abs] = struct{}{}
	w.addDirsRecursive(abs)
	return nil
}

func (w *Watcher) addDirsRecursive(root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			if err := w.fs.Add(path); err != nil {
				w.logger.Warn("Watch add failed", logfields.Path(path), logfields.Error(err))
			}
		}
		return nil
	})
}

// Close releases the underlying watcher.
func (w *Watcher) Close() error { return w.fs.Close() }

// Run builds once, then again after every debounced change, until ctx is done.
func (w *Watcher) Run(ctx context.Context, build BuildFunc) error {
	w.logger.Info("Watching for changes", logfields.Path(w.configPath), slog.Duration("debounce", w.debounce))
	w.build(ctx, build)

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("Change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			timerCh = timer.C
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Watcher error", logfields.Error(err))
		case <-timerCh:
			timerCh = nil
			w.build(ctx, build)
		}
	}
}

func (w *Watcher) build(ctx context.Context, build BuildFunc) {
	if ctx.Err() != nil {
		return
	}
	if err := build(ctx); err != nil {
		w.logger.Error("Build failed; waiting for the next change", logfields.Error(err))
	}
}

// relevant filters events down to the config file, its .env files and
// anything inside a watched patch tree.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	if filepath.Dir(ev.Name) == filepath.Dir(w.configPath) {
		switch filepath.Base(ev.Name) {
		case filepath.Base(w.configPath), ".env", ".env.local":
			return true
		}
	}
	if shouldIgnore(ev.Name) {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for root := range w.trees {
		if ev.Name == root || strings.HasPrefix(ev.Name, root+string(filepath.Separator)) {
			if ev.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					w.addDirsRecursive(ev.Name)
				}
			}
			return true
		}
	}
	return false
}

// shouldIgnore drops editor droppings and hidden files other than the
// deletion manifests.
func shouldIgnore(path string) bool {
	base := filepath.Base(path)
	switch base {
	case patch.DirDeletionManifest, patch.FileDeletionManifest:
		return false
	}
	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}
	return base == "Thumbs.db"
}
