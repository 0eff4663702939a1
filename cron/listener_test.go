package cron

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type named struct {
	ListenerFuncs
	name string
}

func (n named) ListenerName() string { return n.name }

type valueListener struct{ tag string }

func (valueListener) OnStart(TaskID)          {}
func (valueListener) OnSuccess(TaskID)        {}
func (valueListener) OnFailure(TaskID, error) {}

type sliceListener []string

func (sliceListener) OnStart(TaskID)          {}
func (sliceListener) OnSuccess(TaskID)        {}
func (sliceListener) OnFailure(TaskID, error) {}

func TestListenerKey(t *testing.T) {
	p1, p2 := &ListenerFuncs{}, &ListenerFuncs{}
	k1, err := ListenerKey(p1)
	require.NoError(t, err)
	k1again, err := ListenerKey(p1)
	require.NoError(t, err)
	k2, err := ListenerKey(p2)
	require.NoError(t, err)
	assert.Equal(t, k1, k1again)
	assert.NotEqual(t, k1, k2)

	n1, err := ListenerKey(&named{name: "audit"})
	require.NoError(t, err)
	n2, err := ListenerKey(&named{name: "audit"})
	require.NoError(t, err)
	assert.Equal(t, "name:audit", n1)
	assert.Equal(t, n1, n2)

	v1, err := ListenerKey(valueListener{tag: "a"})
	require.NoError(t, err)
	v2, err := ListenerKey(valueListener{tag: "b"})
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)

	_, err = ListenerKey(nil)
	assert.ErrorIs(t, err, ErrPrecondition)
	_, err = ListenerKey(sliceListener{"x"})
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestNotifier_RecoversListenerPanic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	n := Notifier{
		Listener: &ListenerFuncs{Success: func(TaskID) { panic("listener bug") }},
		Logger:   zap.New(core),
	}

	assert.NotPanics(t, func() { n.Success("id") })
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "listener panicked", entry.Message)
	assert.Equal(t, "success", entry.ContextMap()["event"])
}

func TestNotifier_NilFieldsSkipped(t *testing.T) {
	n := Notifier{Listener: &ListenerFuncs{}}
	assert.NotPanics(t, func() {
		n.Start("id")
		n.Success("id")
		n.Failure("id", errBoom)
	})
}

func TestBridgeRegistry(t *testing.T) {
	var r BridgeRegistry[string]
	var created atomic.Int32

	added, err := r.Add("a", func() (string, error) { created.Add(1); return "A", nil })
	require.NoError(t, err)
	assert.True(t, added)
	added, err = r.Add("a", func() (string, error) { created.Add(1); return "A2", nil })
	require.NoError(t, err)
	assert.False(t, added)
	assert.EqualValues(t, 1, created.Load())

	_, err = r.Add("b", func() (string, error) { return "", errBoom })
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, r.Len())

	snap := r.Snapshot()
	_, _ = r.Add("c", func() (string, error) { return "C", nil })
	assert.Equal(t, []string{"A"}, snap, "snapshots are immutable")

	v, ok := r.Get("c")
	assert.True(t, ok)
	assert.Equal(t, "C", v)

	removed, err := r.Remove("a", func(string) error { return errBoom })
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, removed)
	assert.Equal(t, 2, r.Len())

	removed, err = r.Remove("a", nil)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = r.Remove("a", nil)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, []string{"C"}, r.Snapshot())
}

func TestBridgeRegistry_Concurrent(t *testing.T) {
	var r BridgeRegistry[int]
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, _ = r.Add("k", func() (int, error) { return i, nil })
		}(i)
		go func() {
			defer wg.Done()
			_ = r.Snapshot()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, r.Len())
}
