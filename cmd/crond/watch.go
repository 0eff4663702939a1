package main

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/dailyyoga/cronkit/logger"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 250 * time.Millisecond

// watch calls reload after path changes until ctx is done. The directory is
// watched rather than the file so that editors replacing the file by rename
// are still seen. Bursts of events collapse into one reload.
func watch(ctx context.Context, path string, log logger.Logger, reload func() error) error {
	log = logger.OrNop(log)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	base := filepath.Base(abs)

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	trigger := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, func() {
			if err := reload(); err != nil {
				log.Error("config reload failed", zap.String("path", abs), zap.Error(err))
				return
			}
			log.Info("config reloaded", zap.String("path", abs))
		})
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	log.Info("watching config", zap.String("path", abs))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				trigger()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", zap.Error(err))
		}
	}
}
