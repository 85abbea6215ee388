package paramconfig

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// Watch reloads path whenever it changes on disk until ctx is done. The
// directory is watched rather than the file so that editors doing atomic
// saves (write temp file, rename over target) are still seen. Watch blocks.
func (s *Store) Watch(ctx context.Context, path string) error {
	return s.watch(ctx, path, defaultDebounce)
}

func (s *Store) watch(ctx context.Context, path string, debounce time.Duration) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create params directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}
	slog.Debug("Watching params file", "path", path)

	target := filepath.Clean(path)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				if err := s.Load(path); err != nil {
					slog.Warn("Failed to reload params", "path", path, "error", err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Params watcher error", "error", err)
		}
	}
}
