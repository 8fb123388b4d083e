package cachelayout

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchStaging removes the entries in dir older than staleAfter at startup
// — leftovers from a process that crashed mid-download — then watches dir
// for further writes, periodically sweeping any entry older than
// staleAfter. Entries younger than staleAfter are left in place. Locomote's cache is never
// locally authored (spec §4.2), so this watcher only ever deletes; it
// never needs to push a local change anywhere. Returns a stop function.
func WatchStaging(ctx context.Context, dir string, staleAfter time.Duration, logger *slog.Logger) (func(), error) {
	cleanStaleEntries(dir, staleAfter, logger)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("starting staging watcher: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching staging directory %s: %w", dir, err)
	}

	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(staleAfter)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				watcher.Close()
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				if event.Op&fsnotify.Create != 0 {
					logger.Debug("staging: entry created", "path", event.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}

				logger.Warn("staging watcher error", "error", err)
			case <-ticker.C:
				cleanStaleEntries(dir, staleAfter, logger)
			}
		}
	}()

	return func() {
		watcher.Close()
		<-done
	}, nil
}

// cleanStaleEntries removes any entry in dir whose mtime is older than
// staleAfter — a download or extraction that never reached its
// promote-to-final-location step (spec §4.4's archive-then-extract-then-
// promote flow).
func cleanStaleEntries(dir string, staleAfter time.Duration, logger *slog.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-staleAfter)

	for _, e := range entries {
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			logger.Warn("staging: failed to remove orphaned entry", "path", path, "error", err)
			continue
		}

		logger.Info("staging: removed orphaned entry", "path", path)
	}
}
