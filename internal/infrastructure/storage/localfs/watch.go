package localfs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const relevantOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// Watch emits one signal after files ending in suffix stop changing for
// debounce. Signals coalesce while the receiver is busy. The channel closes
// when ctx is done.
func (s *Storage) Watch(ctx context.Context, suffix string, debounce time.Duration) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(s.basePath); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", s.basePath, err)
	}

	changes := make(chan struct{}, 1)
	go func() {
		defer close(changes)
		defer watcher.Close()

		timer := time.NewTimer(debounce)
		if !timer.Stop() {
			<-timer.C
		}
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(relevantOps) || !strings.HasSuffix(event.Name, suffix) {
					continue
				}
				timer.Reset(debounce)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("corpus_watch_error", "path", s.basePath, "error", err)
			case <-timer.C:
				select {
				case changes <- struct{}{}:
				default:
				}
			}
		}
	}()
	return changes, nil
}
