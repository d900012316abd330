package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "schoolsync/internal/log"
)

// reloadDelay coalesces the burst of events an editor or an atomic rename
// produces into a single reload.
const reloadDelay = 250 * time.Millisecond

// Watch reloads the config file whenever it changes and hands the result to
// fn. It blocks until ctx is done. The parent directory is watched because
// Save replaces the file by rename.
//
// A file that fails to parse is logged and skipped; fn only ever sees a
// config that loaded cleanly.
func Watch(ctx context.Context, path string, fn func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config watch %s: %w", filepath.Dir(abs), err)
	}
	appLog.Debug("watching config", "path", abs)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDelay)
			} else {
				timer.Reset(reloadDelay)
			}
			fire = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			appLog.Error("config watch error", err, "path", abs)

		case <-fire:
			fire = nil
			cfg, err := reload(abs)
			if err != nil {
				appLog.Error("config reload failed; keeping previous config", err, "path", abs)
				continue
			}
			appLog.Info("config reloaded", "path", abs, "course_count", len(cfg.Schoology.CourseIDs))
			fn(cfg)
		}
	}
}

func reload(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg, os.Getenv); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}
