// Package routine provides goroutine execution with panic recovery and a
// bounded worker pool for engines that do not bring their own.
package routine

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/dailyyoga/cronkit/logger"
	"go.uber.org/zap"
)

// Runner starts goroutines with panic recovery and can wait for all of them.
type Runner interface {
	// GoNamed executes a named function in a new goroutine with panic recovery.
	// The name is used for logging purposes.
	GoNamed(name string, fn func())

	// GoNamedWithContext executes a named function with context in a new goroutine.
	GoNamedWithContext(ctx context.Context, name string, fn func(ctx context.Context))

	// Wait waits for all goroutines started by this runner to complete.
	Wait()
}

type defaultRunner struct {
	log logger.Logger
	wg  sync.WaitGroup
}

// New creates a new Runner with the given logger.
func New(log logger.Logger) Runner {
	return &defaultRunner{
		log: logger.OrNop(log),
	}
}

func (r *defaultRunner) GoNamed(name string, fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer recoverWithLog(r.log, name)
		fn()
	}()
}

func (r *defaultRunner) GoNamedWithContext(ctx context.Context, name string, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer recoverWithLog(r.log, name)
		fn(ctx)
	}()
}

func (r *defaultRunner) Wait() {
	r.wg.Wait()
}

// Go executes a function in a new goroutine with panic recovery.
func Go(log logger.Logger, fn func()) {
	GoNamed(log, "", fn)
}

// GoNamed executes a named function in a new goroutine with panic recovery.
func GoNamed(log logger.Logger, name string, fn func()) {
	go func() {
		defer recoverWithLog(log, name)
		fn()
	}()
}

// Safe runs fn on the calling goroutine and converts a panic into an error.
func Safe(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = ErrPanic(rec)
		}
	}()
	return fn()
}

func recoverWithLog(log logger.Logger, name string) {
	if rec := recover(); rec != nil {
		fields := []zap.Field{
			zap.Any("panic", rec),
			zap.String("stack", string(debug.Stack())),
		}
		if name != "" {
			fields = append([]zap.Field{zap.String("routine", name)}, fields...)
		}
		logger.OrNop(log).Error("goroutine panicked", fields...)
	}
}
