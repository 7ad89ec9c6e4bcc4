package credentials

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch invokes onChange with freshly loaded credentials whenever
// credentials.toml is written or recreated. It blocks until the context is
// cancelled. The directory is watched rather than the file so editors that
// replace the file atomically are still observed.
func (m *Manager) Watch(ctx context.Context, onChange func(*Credentials)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating credentials watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(m.targetPath)); err != nil {
		return fmt.Errorf("watching credentials dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-watcher.Events:
			if filepath.Clean(event.Name) != filepath.Clean(m.targetPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			creds, err := m.Load()
			if err != nil {
				continue
			}
			onChange(creds)
		case err := <-watcher.Errors:
			return fmt.Errorf("credentials watcher error: %w", err)
		}
	}
}
