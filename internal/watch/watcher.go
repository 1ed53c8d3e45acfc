// Package watch re-runs work when dataset files change on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ricesearch/fairrank/internal/pkg/logger"
)

// DefaultDebounce is how long a file must stay quiet before OnChange runs.
const DefaultDebounce = 300 * time.Millisecond

// Callback is called with the absolute path of a changed file.
type Callback func(ctx context.Context, path string)

// Config configures a Watcher.
type Config struct {
	// Paths are the files to watch.
	Paths []string

	// Debounce collapses bursts of events. Default: DefaultDebounce.
	Debounce time.Duration

	// OnChange runs once per changed file after the burst settles.
	OnChange Callback

	Log *logger.Logger
}

// Watcher watches a set of files. Their parent directories are watched
// instead of the files themselves so that editors which save by renaming a
// temporary file over the original are still noticed.
type Watcher struct {
	files    map[string]bool
	dirs     []string
	debounce time.Duration
	onChange Callback
	log      *logger.Logger
	ready    chan struct{}
}

// New creates a watcher. Paths that do not exist yet are allowed as long as
// their directory does.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Paths) == 0 {
		return nil, fmt.Errorf("no paths to watch")
	}
	if cfg.OnChange == nil {
		return nil, fmt.Errorf("OnChange is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Log == nil {
		cfg.Log = logger.Default()
	}

	w := &Watcher{
		files:    make(map[string]bool, len(cfg.Paths)),
		debounce: cfg.Debounce,
		onChange: cfg.OnChange,
		log:      &logger.Logger{Logger: cfg.Log.With("component", "watcher")},
		ready:    make(chan struct{}),
	}
	for _, p := range cfg.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		w.files[abs] = true
		if dir := filepath.Dir(abs); !slices.Contains(w.dirs, dir) {
			w.dirs = append(w.dirs, dir)
		}
	}
	return w, nil
}

// Ready is closed once the watches are in place.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches until ctx is cancelled. Callbacks run on the calling goroutine,
// one at a time.
func (w *Watcher) Run(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsWatcher.Close()

	for _, dir := range w.dirs {
		if err := fsWatcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	close(w.ready)

	w.log.Info("Watching for changes", "files", len(w.files))

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if !w.files[filepath.Clean(event.Name)] || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			pending[filepath.Clean(event.Name)] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("Watcher error", "error", err)

		case <-timer.C:
			changed := make([]string, 0, len(pending))
			for path := range pending {
				changed = append(changed, path)
			}
			clear(pending)
			slices.Sort(changed)

			for _, path := range changed {
				if ctx.Err() != nil {
					return nil
				}
				w.log.Debug("File changed", "path", path)
				w.onChange(ctx, path)
			}
		}
	}
}
