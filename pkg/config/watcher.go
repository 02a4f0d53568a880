package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/telemetry"
)

// Watch re-reads the configuration file whenever it changes and applies the
// settings that are safe to change at runtime, currently only the log
// level. Invalid edits are logged and ignored; the running configuration
// stays in effect. Blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, log *telemetry.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors replace the file, which drops a watch
	// placed on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	target, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || name != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Editors fire several events per save.
			debounce = time.After(200 * time.Millisecond)

		case <-debounce:
			debounce = nil
			cfg, err := Load(path)
			if err != nil {
				log.WithError(err).Warn("ignoring invalid configuration change")
				continue
			}
			log.SetLevel(cfg.Telemetry.Logging.Level)
			log.WithField("level", cfg.Telemetry.Logging.Level).Info("applied configuration change")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("config watcher error")
		}
	}
}
