package config

import (
	"context"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

func waitForChange(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-watcher.Events:
	}
	// Editors often produce a burst of events; let the file settle.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Second / 10):
	}
	return ctx.Err()
}

// Watch loads settings from path and invokes apply with every valid
// version, starting with the initial one. Invalid rewrites of the file are
// logged and skipped; the previous settings stay in effect.
func Watch(ctx context.Context, path string, apply func(*Settings)) error {
	settings, err := FromFile(path)
	if err != nil {
		return err
	}
	log.Infof("Loaded configuration: %v", spew.Sdump(settings))
	apply(settings)
	go func() {
		for ctx.Err() == nil {
			if err := waitForChange(ctx, path); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Errorf("Error waiting for file change: %v", err)
				continue
			}
			settings, err := FromFile(path)
			if err != nil {
				log.Errorf("Failed to load new config: %v", err)
				continue
			}
			log.Infof("Loaded new configuration: %v", spew.Sdump(settings))
			apply(settings)
		}
	}()
	return nil
}
