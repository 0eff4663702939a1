package cron

import (
	"context"
	"time"
)

// Task is a unit of work run on every firing of a schedule.
type Task interface {
	// Name returns a human readable name, used in logs and as the native
	// name on engines that have one
	Name() string
	// Run executes the task. ctx is cancelled when the engine stops
	// without waiting for running tasks.
	Run(ctx context.Context) error
}

// TaskFunc builds a Task from a function.
func TaskFunc(name string, fn func(ctx context.Context) error) Task {
	return &wrappedTask{name: name, exec: fn}
}

// Body is the executable part of a CronTask: either Direct or MethodReference.
type Body interface {
	body()
}

// Direct is a body the caller supplies ready to run.
type Direct struct {
	Task Task
}

// MethodReference names a method that the backend resolves through its
// Resolver. Engines that instantiate jobs themselves resolve it on every firing.
type MethodReference struct {
	TypeName   string
	MethodName string
}

func (Direct) body()          {}
func (MethodReference) body() {}

// Func is shorthand for a Direct body around TaskFunc.
func Func(name string, fn func(ctx context.Context) error) Body {
	return Direct{Task: TaskFunc(name, fn)}
}

// CronTask pairs an expression with a body.
type CronTask struct {
	Expression string
	Body       Body
}

// TaskInfo describes a registered task as seen by its engine.
type TaskInfo struct {
	ID         TaskID
	Name       string
	Expression string
	// Next is the next planned firing, zero if unknown
	Next time.Time
}

type taskIDKey struct{}

// WithTaskID returns ctx carrying id. Backends set it before running a task.
func WithTaskID(ctx context.Context, id TaskID) context.Context {
	return context.WithValue(ctx, taskIDKey{}, id)
}

// TaskIDFromContext returns the id of the running task, if any.
func TaskIDFromContext(ctx context.Context) (TaskID, bool) {
	id, ok := ctx.Value(taskIDKey{}).(TaskID)
	return id, ok
}
