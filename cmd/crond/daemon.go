package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dailyyoga/cronkit/ch"
	"github.com/dailyyoga/cronkit/cron"
	"github.com/dailyyoga/cronkit/kafka"
	"github.com/dailyyoga/cronkit/logger"
	"go.uber.org/zap"
)

// daemon owns the process-wide repository and the event sinks. Sinks are
// built once from the startup file; reloads only touch the backend, its
// properties and the task list.
type daemon struct {
	path string
	log  logger.Logger

	mu      sync.Mutex
	backend string
	tasks   map[string]cron.TaskID

	sinks   []cron.Listener
	closers []func() error
	stopped bool
}

// errDaemonStopped is returned by reload once stop has run
var errDaemonStopped = fmt.Errorf("crond: daemon stopped")

func newDaemon(path string, log logger.Logger) *daemon {
	return &daemon{path: path, log: logger.OrNop(log)}
}

// start opens the sinks, starts the repository and registers the tasks of f.
func (d *daemon) start(ctx context.Context, f *File) error {
	if err := d.openSinks(ctx, f); err != nil {
		d.closeSinks()
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.init(f); err != nil {
		d.closeSinks()
		return err
	}
	return nil
}

func (d *daemon) init(f *File) error {
	facade, err := cron.Init(f.backend(), f.Properties, cron.WithLogger(d.log))
	if err != nil {
		return err
	}
	if err := facade.AddListeners(d.sinks...); err != nil {
		_ = cron.Shutdown()
		return err
	}
	d.backend = f.Backend
	return d.register(facade, f.Tasks)
}

func (d *daemon) register(facade *cron.Facade, tasks []TaskConfig) error {
	d.tasks = make(map[string]cron.TaskID, len(tasks))
	var errs []error
	for _, t := range tasks {
		id, err := facade.Register(t.Spec, cron.Direct{Task: commandTask(t, d.log)})
		if err != nil {
			errs = append(errs, fmt.Errorf("crond: register %s: %w", t.Name, err))
			continue
		}
		d.tasks[t.Name] = id
		d.log.Info("task registered", zap.String("task", t.Name), zap.String("spec", t.Spec), zap.String("id", string(id)))
	}
	return errors.Join(errs...)
}

// reload re-reads the config file. The same backend is reloaded in place;
// a different backend replaces the repository. A file that fails to parse
// leaves the running tasks untouched.
func (d *daemon) reload() error {
	f, err := loadFile(d.path, d.log)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return errDaemonStopped
	}

	facade := cron.Default()
	if facade == nil || f.Backend != d.backend {
		if err := cron.Shutdown(); err != nil {
			d.log.Warn("stop previous backend", zap.String("backend", d.backend), zap.Error(err))
		}
		return d.init(f)
	}
	if err := facade.Reload(f.Properties); err != nil {
		return err
	}
	return d.register(facade, f.Tasks)
}

func (d *daemon) openSinks(ctx context.Context, f *File) error {
	if f.Kafka != nil {
		producer, err := kafka.NewProducer(d.log, f.Kafka.Producer)
		if err != nil {
			return err
		}
		pub, err := kafka.NewEventPublisher(producer, f.Kafka.Publisher, d.log)
		if err != nil {
			_ = producer.Close()
			return err
		}
		d.sinks = append(d.sinks, pub)
		d.closers = append(d.closers, func() error {
			pub.Close()
			return producer.Close()
		})
	}

	if f.ClickHouse != nil {
		client, err := ch.NewClient(f.ClickHouse, d.log)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, client.Close)
		if err := client.EnsureTable(ctx); err != nil {
			return err
		}
		rec, err := client.Recorder()
		if err != nil {
			return err
		}
		if err := rec.Start(); err != nil {
			return err
		}
		d.sinks = append(d.sinks, rec)
	}
	return nil
}

func (d *daemon) closeSinks() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	d.sinks = nil
	return errors.Join(errs...)
}

// stop shuts the repository down before the sinks so that the last
// executions are still delivered. Reloads arriving afterwards are refused.
func (d *daemon) stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return nil
	}
	d.stopped = true
	return errors.Join(cron.Shutdown(), d.closeSinks())
}
