package cron

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/dailyyoga/cronkit/logger"
	"github.com/dailyyoga/cronkit/routine"
	"go.uber.org/zap"
)

// Middleware is a function that wraps a Task with additional behavior.
// Every backend applies the controller's middlewares to each body before
// handing it to its engine.
type Middleware func(Task) Task

// ApplyMiddlewares wraps t so that mws[0] is outermost:
// ApplyMiddlewares(t, a, b) runs a(b(t)).
func ApplyMiddlewares(t Task, mws ...Middleware) Task {
	for i := len(mws) - 1; i >= 0; i-- {
		t = mws[i](t)
	}
	return t
}

// DefaultMiddlewares returns the recovery and logging middlewares every
// controller installs ahead of user middlewares.
func DefaultMiddlewares(log logger.Logger) []Middleware {
	return []Middleware{
		RecoveryMiddleware(log),
		LoggingMiddleware(log),
	}
}

// RecoveryMiddleware converts a panicking task into a failed run, so that
// listeners observe OnFailure and the engine goroutine survives.
func RecoveryMiddleware(log logger.Logger) Middleware {
	log = logger.OrNop(log)
	return func(next Task) Task {
		return &wrappedTask{
			name: next.Name(),
			exec: func(ctx context.Context) (err error) {
				defer func() {
					if r := recover(); r != nil {
						log.Error("task panicked",
							zap.String("task", next.Name()),
							taskIDField(ctx),
							zap.Any("panic", r),
							zap.String("stack", string(debug.Stack())),
						)
						err = routine.ErrPanic(r)
					}
				}()
				return next.Run(ctx)
			},
		}
	}
}

// LoggingMiddleware logs start, finish and failure of every run with its duration.
func LoggingMiddleware(log logger.Logger) Middleware {
	log = logger.OrNop(log)
	return func(next Task) Task {
		return &wrappedTask{
			name: next.Name(),
			exec: func(ctx context.Context) error {
				start := time.Now()
				log.Debug("task started", zap.String("task", next.Name()), taskIDField(ctx))

				err := next.Run(ctx)

				duration := time.Since(start)
				if err != nil {
					log.Error("task failed",
						zap.String("task", next.Name()),
						taskIDField(ctx),
						zap.Duration("duration", duration),
						zap.Error(err),
					)
				} else {
					log.Debug("task completed",
						zap.String("task", next.Name()),
						taskIDField(ctx),
						zap.Duration("duration", duration),
					)
				}
				return err
			},
		}
	}
}

func taskIDField(ctx context.Context) zap.Field {
	id, _ := TaskIDFromContext(ctx)
	return zap.String("task_id", string(id))
}

type wrappedTask struct {
	name string
	exec func(ctx context.Context) error
}

func (w *wrappedTask) Name() string {
	return w.name
}

func (w *wrappedTask) Run(ctx context.Context) error {
	return w.exec(ctx)
}
