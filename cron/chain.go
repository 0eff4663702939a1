package cron

import (
	"context"
	"sync"

	"github.com/dailyyoga/cronkit/logger"
	"go.uber.org/zap"
)

type sharedDataKey struct{}

// SharedData lets the tasks of one Chain run exchange values.
type SharedData struct {
	data sync.Map
}

// GetSharedData retrieves SharedData from the context, nil outside a Chain.
func GetSharedData(ctx context.Context) *SharedData {
	if val, ok := ctx.Value(sharedDataKey{}).(*SharedData); ok {
		return val
	}
	return nil
}

func (s *SharedData) Set(key string, value any) {
	s.data.Store(key, value)
}

func (s *SharedData) Get(key string) (any, bool) {
	return s.data.Load(key)
}

func (s *SharedData) Delete(key string) {
	s.data.Delete(key)
}

// Range iterates over all pairs until f returns false.
func (s *SharedData) Range(f func(key string, value any) bool) {
	s.data.Range(func(k, v any) bool {
		return f(k.(string), v)
	})
}

// Chain returns a Task running tasks sequentially with a fresh SharedData per run.
// The first failing task aborts the run and its error becomes the run's error.
func Chain(name string, log logger.Logger, tasks ...Task) (Task, error) {
	if len(tasks) == 0 {
		return nil, ErrPreconditionf("chain %q has no tasks", name)
	}
	log = logger.OrNop(log)
	return &chainTask{name: name, tasks: tasks, logger: log}, nil
}

type chainTask struct {
	name   string
	tasks  []Task
	logger logger.Logger
}

func (c *chainTask) Name() string { return c.name }

func (c *chainTask) Run(ctx context.Context) error {
	ctx = context.WithValue(ctx, sharedDataKey{}, &SharedData{})

	for _, task := range c.tasks {
		if err := task.Run(ctx); err != nil {
			c.logger.Warn("chain aborted due to task failure",
				zap.String("chain_name", c.name),
				zap.String("task_name", task.Name()),
				zap.Error(err),
			)
			return err
		}
	}
	return nil
}
