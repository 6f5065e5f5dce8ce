package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"

	"flacsweep/logger"
)

// watchDebounce coalesces event bursts (a tag editor rewriting a file fires
// several writes) into one invalidation.
const watchDebounce = 2 * time.Second

// WatchLibrary watches root for audio file changes until ctx is done,
// turning remove, rename and write events into scan cache invalidations so
// a root kept open between scans stays honest. Newly created directories
// are added to the watch. onInvalidate, if non-nil, receives each batch of
// invalidated paths after the cache has been updated. Watch errors degrade
// to logging; only failing to establish the watch is returned.
func WatchLibrary(ctx context.Context, root string, onInvalidate func([]string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	addWatchRecursive(watcher, root)

	var (
		mu      sync.Mutex
		pending = make(map[string]bool)
	)
	flush := func() {
		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = make(map[string]bool)
		mu.Unlock()

		sort.Strings(paths)
		InvalidateCacheEntries(paths)
		logger.Debug("watcher invalidated cache entries", logger.Int("paths", len(paths)))
		if onInvalidate != nil {
			onInvalidate(paths)
		}
	}
	debounced := debounce.New(watchDebounce)

	logger.Info("watching library", logger.String("root", root))
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				flush()
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					name := filepath.Base(event.Name)
					if !strings.HasPrefix(name, ".") && name != QuarantineDirName {
						if err := watcher.Add(event.Name); err != nil {
							logger.Debug("watch add failed",
								logger.String("path", event.Name), logger.ErrorField(err))
						}
					}
					continue
				}
			}
			if !IsAudioFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				mu.Lock()
				pending[event.Name] = true
				mu.Unlock()
				debounced(flush)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				flush()
				return nil
			}
			logger.Warn("watcher error", logger.ErrorField(err))

		case <-ctx.Done():
			flush()
			return nil
		}
	}
}

// addWatchRecursive extends the watch to every subdirectory of root,
// skipping hidden directories and the quarantine. Failures on individual
// directories are logged and skipped; new directories are still picked up
// by their create events.
func addWatchRecursive(w *fsnotify.Watcher, root string) {
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root {
			name := d.Name()
			if strings.HasPrefix(name, ".") || name == QuarantineDirName {
				return filepath.SkipDir
			}
			if err := w.Add(path); err != nil {
				logger.Debug("watch add failed",
					logger.String("path", path), logger.ErrorField(err))
			}
		}
		return nil
	})
}
