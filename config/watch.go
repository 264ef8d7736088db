package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/zhubert/codexmonitor/logger"
)

// Watch reloads the config whenever its file is written, created or
// renamed into place, and calls onChange after each successful reload.
// The parent directory is watched so editors that replace the file still
// trigger. Watch blocks until ctx is done.
func (c *Config) Watch(ctx context.Context, onChange func(*Config)) error {
	path := c.FilePath()
	if path == "" {
		return fmt.Errorf("config has no file path")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	log := logger.WithComponent("config")
	target := filepath.Clean(path)

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
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := c.Reload(); err != nil {
				log.Warn("config reload failed", "path", path, "error", err)
				continue
			}
			log.Info("config reloaded", "path", path, "debug", c.GetDebug())
			if onChange != nil {
				onChange(c)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("config watcher error", "error", err)
		}
	}
}
