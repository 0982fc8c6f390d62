package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events editors emit on save.
const reloadDelay = 250 * time.Millisecond

// Registry holds the live corpus and swaps it when the backing file changes.
type Registry struct {
	path   string
	logger *slog.Logger

	mu        sync.RWMutex
	current   *Corpus
	callbacks []func(*Corpus)
}

// NewRegistry creates a registry for the corpus at path. An empty path
// serves the built-in seed corpus.
func NewRegistry(path string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		path:    path,
		logger:  logger,
		current: Empty(),
	}
}

// NewStaticRegistry serves a fixed corpus; Load and Watch are no-ops.
func NewStaticRegistry(c *Corpus) *Registry {
	return &Registry{logger: slog.Default(), current: c}
}

// Path returns the backing file, if any.
func (r *Registry) Path() string {
	return r.path
}

// Load reads the corpus from disk, or the seed when no path is set.
func (r *Registry) Load() error {
	var (
		c   *Corpus
		err error
	)
	if r.path == "" {
		c = Seed()
	} else if c, err = Load(r.path); err != nil {
		return err
	}
	r.swap(c)
	r.logger.Info("corpus loaded", "path", r.path, "snippets", c.Len())
	return nil
}

// Current returns the active corpus snapshot. It is never nil.
func (r *Registry) Current() *Corpus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// OnReload registers fn to run after every successful swap.
func (r *Registry) OnReload(fn func(*Corpus)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, fn)
}

func (r *Registry) swap(c *Corpus) {
	r.mu.Lock()
	r.current = c
	callbacks := make([]func(*Corpus), len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.Unlock()

	for _, fn := range callbacks {
		fn(c)
	}
}

// Watch reloads the corpus whenever its file changes, until ctx is done.
// A reload that fails to parse keeps the previous snapshot.
func (r *Registry) Watch(ctx context.Context) error {
	if r.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create corpus watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file rather than
	// writing in place, which drops a watch on the file itself.
	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(r.path)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDelay)
			} else {
				timer.Reset(reloadDelay)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := r.Load(); err != nil {
				r.logger.Error("corpus reload failed, keeping previous snapshot", "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("corpus watcher error", "error", err)
		}
	}
}
