package localstore

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch observes the slot file for rewrites by other processes sharing
// the same account (another tab, another device syncing through the same
// slot) and invokes onExternalChange after reloading. Own writes are
// filtered out by content hash. Returns once the watcher is installed;
// watching stops when ctx is done.
func (s *Store) Watch(ctx context.Context, onExternalChange func()) error {
	dir := filepath.Dir(s.path)
	base := filepath.Base(s.path)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if s.ReloadIfChanged() && onExternalChange != nil {
					onExternalChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.WithError(err).Warn("slot watcher error")
			}
		}
	}()
	return nil
}
