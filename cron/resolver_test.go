package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reports struct {
	plain, failing, withCtx int
}

func (r *reports) Plain()                            { r.plain++ }
func (r *reports) Failing() error                    { r.failing++; return errBoom }
func (r *reports) WithContext(context.Context) error { r.withCtx++; return nil }
func (r *reports) Unsupported(int)                   {}

func TestMethodRegistry_Resolve(t *testing.T) {
	reg := NewMethodRegistry()
	rep := &reports{}
	require.NoError(t, reg.Register("Reports", rep))

	task, err := reg.Resolve("Reports", "Plain")
	require.NoError(t, err)
	assert.Equal(t, "Reports.Plain", task.Name())
	require.NoError(t, task.Run(context.Background()))

	task, err = reg.Resolve("Reports", "Failing")
	require.NoError(t, err)
	assert.ErrorIs(t, task.Run(context.Background()), errBoom)

	task, err = reg.Resolve("Reports", "WithContext")
	require.NoError(t, err)
	require.NoError(t, task.Run(context.Background()))

	assert.Equal(t, reports{plain: 1, failing: 1, withCtx: 1}, *rep)
}

func TestMethodRegistry_Errors(t *testing.T) {
	reg := NewMethodRegistry()
	require.NoError(t, reg.Register("Reports", &reports{}))

	_, err := reg.Resolve("Missing", "Plain")
	assert.ErrorIs(t, err, ErrMethodNotFound)
	_, err = reg.Resolve("Reports", "Missing")
	assert.ErrorIs(t, err, ErrMethodNotFound)
	_, err = reg.Resolve("Reports", "Unsupported")
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.ErrorIs(t, reg.Register("", &reports{}), ErrPrecondition)
}

func TestEnvironment_PrepareMethodReference(t *testing.T) {
	reg := NewMethodRegistry()
	rep := &reports{}
	require.NoError(t, reg.Register("Reports", rep))

	task, err := Environment{Resolver: reg}.Prepare(MethodReference{TypeName: "Reports", MethodName: "Plain"})
	require.NoError(t, err)
	require.NoError(t, task.Run(context.Background()))
	assert.Equal(t, 1, rep.plain)

	_, err = Environment{}.Prepare(MethodReference{TypeName: "Reports", MethodName: "Plain"})
	assert.ErrorIs(t, err, ErrPrecondition)
}
