package cron

import (
	"context"
	"testing"

	"github.com/dailyyoga/cronkit/routine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecoveryMiddleware(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	task := RecoveryMiddleware(zap.New(core))(TaskFunc("panicky", func(context.Context) error {
		panic("kaboom")
	}))

	err := task.Run(WithTaskID(context.Background(), "tid"))
	assert.ErrorIs(t, err, routine.ErrPanicRecovered)
	assert.Contains(t, err.Error(), "kaboom")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "tid", logs.All()[0].ContextMap()["task_id"])
	assert.Equal(t, "panicky", task.Name())
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := zap.New(core)

	ok := LoggingMiddleware(log)(TaskFunc("ok", func(context.Context) error { return nil }))
	require.NoError(t, ok.Run(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("task completed").Len())

	failing := LoggingMiddleware(log)(TaskFunc("failing", func(context.Context) error { return errBoom }))
	assert.ErrorIs(t, failing.Run(context.Background()), errBoom)
	assert.Equal(t, 1, logs.FilterMessage("task failed").Len())
}

func TestApplyMiddlewares_Order(t *testing.T) {
	var order []string
	tag := func(s string) Middleware {
		return func(next Task) Task {
			return TaskFunc(next.Name(), func(ctx context.Context) error {
				order = append(order, s)
				return next.Run(ctx)
			})
		}
	}
	task := ApplyMiddlewares(TaskFunc("t", func(context.Context) error {
		order = append(order, "task")
		return nil
	}), tag("outer"), tag("inner"))

	require.NoError(t, task.Run(context.Background()))
	assert.Equal(t, []string{"outer", "inner", "task"}, order)
}

func TestChain(t *testing.T) {
	var steps []string
	first := TaskFunc("first", func(ctx context.Context) error {
		GetSharedData(ctx).Set("user", 42)
		steps = append(steps, "first")
		return nil
	})
	second := TaskFunc("second", func(ctx context.Context) error {
		v, ok := GetSharedData(ctx).Get("user")
		require.True(t, ok)
		assert.Equal(t, 42, v)
		steps = append(steps, "second")
		return errBoom
	})
	third := TaskFunc("third", func(context.Context) error {
		steps = append(steps, "third")
		return nil
	})

	chain, err := Chain("pipeline", nil, first, second, third)
	require.NoError(t, err)
	assert.Equal(t, "pipeline", chain.Name())
	assert.ErrorIs(t, chain.Run(context.Background()), errBoom)
	assert.Equal(t, []string{"first", "second"}, steps)

	_, err = Chain("empty", nil)
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestTaskIDContext(t *testing.T) {
	_, ok := TaskIDFromContext(context.Background())
	assert.False(t, ok)

	id, ok := TaskIDFromContext(WithTaskID(context.Background(), "abc"))
	assert.True(t, ok)
	assert.Equal(t, TaskID("abc"), id)
}
