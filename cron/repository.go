// Package cron defines the backend-agnostic cron task repository: the task
// and listener model, the TaskID codec, the error taxonomy, the lifecycle
// controller and the facade callers use.
//
// Engines live in the subpackages crontab, enterprise, minimal and platform.
// Each provides a Backend that the Controller opens exactly once:
//
//	ctrl := cron.NewController(crontab.Backend(), cron.WithLogger(log))
//	if err := ctrl.Start(cron.Properties{"daemon": false}); err != nil {
//		return err
//	}
//	repo := cron.NewFacade(ctrl)
//	id, err := repo.Register("*/5 * * * * *", cron.Func("ping", ping))
package cron

import (
	"github.com/dailyyoga/cronkit/logger"
)

// Repository is the uniform contract over every engine.
type Repository interface {
	// Register schedules body on expression and returns its id. The task
	// fires from now on; past occurrences are never backfilled.
	Register(expression string, body Body) (TaskID, error)
	// Update replaces the trigger of id, keeping body and id.
	Update(id TaskID, expression string) error
	// Remove unregisters id. Running executions are not interrupted.
	// Removing twice fails with ErrTaskNotFound.
	Remove(id TaskID) error
	// AddListener bridges l to the engine's listener mechanism.
	// Adding the same listener again is a no-op.
	AddListener(l Listener) error
	// RemoveListener removes the bridge of l, if any.
	RemoveListener(l Listener) error
	// Tasks lists registered tasks using the engine's introspection.
	Tasks() []TaskInfo
}

// Adapter is a Repository bound to one engine instance.
type Adapter interface {
	Repository
	// Backend returns the backend name, which is also the TaskID discriminator
	Backend() string
	// Start starts the engine
	Start() error
	// Stop stops the engine, waiting for running tasks unless configured as daemon.
	// Calling it more than once is a no-op.
	Stop() error
}

// Executor runs task firings on a caller supplied pool.
// routine.Pool satisfies it.
type Executor interface {
	Submit(fn func()) error
}

// Environment is everything a Backend receives when it is opened.
type Environment struct {
	// Properties are the explicit startup properties; nil means defaults.
	// They are nil whenever Native is set.
	Properties Properties
	// Native is a caller supplied engine instance to adopt as-is
	Native any
	// Executor optionally replaces the engine's own goroutines
	Executor Executor
	// Resolver resolves MethodReference bodies
	Resolver Resolver
	// Middlewares wrap every task body
	Middlewares []Middleware
	Logger      logger.Logger
}

// Prepare turns body into the Task an engine runs: it resolves a
// MethodReference through the environment's Resolver and applies the
// middlewares.
func (e Environment) Prepare(body Body) (Task, error) {
	var task Task
	switch b := body.(type) {
	case Direct:
		if b.Task == nil {
			return nil, ErrPreconditionf("direct body has no task")
		}
		task = b.Task
	case MethodReference:
		if e.Resolver == nil {
			return nil, ErrPreconditionf("no resolver set for method reference %s.%s", b.TypeName, b.MethodName)
		}
		resolved, err := e.Resolver.Resolve(b.TypeName, b.MethodName)
		if err != nil {
			return nil, err
		}
		task = resolved
	default:
		return nil, ErrPreconditionf("unsupported body %T", body)
	}
	return e.Wrap(task), nil
}

// Wrap applies the environment's middlewares to task.
func (e Environment) Wrap(task Task) Task {
	return ApplyMiddlewares(task, e.Middlewares...)
}

// Backend opens adapters for one kind of engine.
type Backend interface {
	Name() string
	Open(env Environment) (Adapter, error)
}

// BackendFunc adapts an open function to Backend.
func BackendFunc(name string, open func(env Environment) (Adapter, error)) Backend {
	return backendFunc{name: name, open: open}
}

type backendFunc struct {
	name string
	open func(env Environment) (Adapter, error)
}

func (b backendFunc) Name() string                          { return b.name }
func (b backendFunc) Open(env Environment) (Adapter, error) { return b.open(env) }
