// Package crontest is the conformance suite every cron backend runs from
// its own tests:
//
//	func TestConformance(t *testing.T) {
//		crontest.Run(t, crontest.Suite{Backend: crontab.Backend()})
//	}
package crontest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dailyyoga/cronkit/cron"
	"github.com/dailyyoga/cronkit/routine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	// EverySecond fires on every second under every backend's grammar.
	EverySecond = "* * * * * *"
	// EveryNthSecond is EverySecond written with a step.
	EveryNthSecond = "*/1 * * * * *"
	// Yearly fires at midnight on January 1st; tests never see it run.
	Yearly = "0 0 0 1 1 *"
	// Yearly2 is a second rarely firing expression, for updates.
	Yearly2 = "0 30 1 1 1 *"
	// NotACron is rejected by every backend.
	NotACron = "not-a-cron"
)

// Suite configures a conformance run.
type Suite struct {
	Backend cron.Backend
	// Properties are passed to every controller the suite starts
	Properties cron.Properties
	// Options are appended to the suite's own controller options
	Options []cron.Option
	// Foreign is another backend whose real ids must be refused.
	// When nil only a synthetic foreign id is tried.
	Foreign cron.Backend
	// Timeout bounds waits for scheduled executions.
	// default: 5s
	Timeout time.Duration
}

// Run runs the suite as subtests of t.
func Run(t *testing.T, s Suite) {
	t.Helper()
	if s.Timeout == 0 {
		s.Timeout = 5 * time.Second
	}
	t.Run("RoundTrip", s.testRoundTrip)
	t.Run("InvalidExpression", s.testInvalidExpression)
	t.Run("UnknownIdentifiers", s.testUnknownIdentifiers)
	t.Run("ForeignIdentifier", s.testForeignIdentifier)
	t.Run("ListenerSymmetry", s.testListenerSymmetry)
	t.Run("EverySecond", s.testEverySecond)
	t.Run("EveryNthSecond", s.testEveryNthSecond)
	t.Run("Failure", s.testFailure)
	t.Run("Panic", s.testPanic)
	t.Run("RemoveStopsFiring", s.testRemoveStopsFiring)
	t.Run("Lifecycle", s.testLifecycle)
	t.Run("Preconditions", s.testPreconditions)
}

// Start starts a controller on the suite's backend and returns its facade.
// The controller is stopped when t ends.
func (s Suite) Start(t *testing.T, opts ...cron.Option) *cron.Facade {
	t.Helper()
	all := append([]cron.Option{cron.WithLogger(zaptest.NewLogger(t))}, s.Options...)
	all = append(all, opts...)
	c := cron.NewController(s.Backend, all...)
	require.NoError(t, c.Start(s.Properties))
	t.Cleanup(func() { _ = c.Stop() })
	return cron.NewFacade(c)
}

var seq atomic.Int64

// Noop returns a uniquely named task that does nothing.
func Noop() cron.Body {
	return cron.Func(fmt.Sprintf("noop-%d", seq.Add(1)), func(context.Context) error { return nil })
}

func find(tasks []cron.TaskInfo, id cron.TaskID) (cron.TaskInfo, bool) {
	for _, ti := range tasks {
		if ti.ID == id {
			return ti, true
		}
	}
	return cron.TaskInfo{}, false
}

func (s Suite) testRoundTrip(t *testing.T) {
	f := s.Start(t)

	id, err := f.Register(Yearly, Noop())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	tasks, err := f.Tasks()
	require.NoError(t, err)
	info, ok := find(tasks, id)
	require.True(t, ok, "registered task missing from introspection")
	assert.Equal(t, Yearly, info.Expression)
	assert.False(t, info.Next.IsZero())

	require.NoError(t, f.Update(id, Yearly2))
	tasks, err = f.Tasks()
	require.NoError(t, err)
	info, ok = find(tasks, id)
	require.True(t, ok, "updated task must keep its id")
	assert.Equal(t, Yearly2, info.Expression)

	require.NoError(t, f.Remove(id))
	tasks, err = f.Tasks()
	require.NoError(t, err)
	_, ok = find(tasks, id)
	assert.False(t, ok)

	assert.ErrorIs(t, f.Remove(id), cron.ErrTaskNotFound)
	assert.ErrorIs(t, f.Update(id, Yearly), cron.ErrTaskNotFound)
}

func (s Suite) testInvalidExpression(t *testing.T) {
	f := s.Start(t)

	_, err := f.Register(NotACron, Noop())
	require.ErrorIs(t, err, cron.ErrCronExpressionInvalid)
	tasks, err := f.Tasks()
	require.NoError(t, err)
	assert.Empty(t, tasks)

	id, err := f.Register(Yearly, Noop())
	require.NoError(t, err)
	require.ErrorIs(t, f.Update(id, NotACron), cron.ErrCronExpressionInvalid)

	tasks, err = f.Tasks()
	require.NoError(t, err)
	info, ok := find(tasks, id)
	require.True(t, ok)
	assert.Equal(t, Yearly, info.Expression, "failed update must leave the trigger unchanged")
}

func (s Suite) testUnknownIdentifiers(t *testing.T) {
	f := s.Start(t)

	keep, err := f.Register(Yearly, Noop())
	require.NoError(t, err)

	assert.ErrorIs(t, f.Remove("garbage"), cron.ErrInvalidIdentifier)
	assert.ErrorIs(t, f.Update("{}", Yearly2), cron.ErrInvalidIdentifier)

	// a well-formed id the engine no longer knows
	id, err := f.Register(Yearly, Noop())
	require.NoError(t, err)
	require.NoError(t, f.Remove(id))
	assert.ErrorIs(t, f.Update(id, Yearly2), cron.ErrTaskNotFound)
	assert.ErrorIs(t, f.Remove(id), cron.ErrTaskNotFound)

	tasks, err := f.Tasks()
	require.NoError(t, err)
	require.Len(t, tasks, 1, "failed operations must not touch other tasks")
	assert.Equal(t, keep, tasks[0].ID)
	assert.Equal(t, Yearly, tasks[0].Expression)
}

func (s Suite) testForeignIdentifier(t *testing.T) {
	f := s.Start(t)
	keep, err := f.Register(Yearly, Noop())
	require.NoError(t, err)

	foreign := []cron.TaskID{cron.NewCodec(s.Backend.Name() + "-other").Encode(cron.StringKey("x"))}
	if s.Foreign != nil {
		other := Suite{Backend: s.Foreign}.Start(t)
		id, err := other.Register(Yearly, Noop())
		require.NoError(t, err)
		foreign = append(foreign, id)
		t.Cleanup(func() { assert.NoError(t, other.Remove(id), "the issuing backend still owns its id") })
	}

	for _, id := range foreign {
		assert.ErrorIs(t, f.Remove(id), cron.ErrBackendMismatch)
		assert.ErrorIs(t, f.Update(id, Yearly2), cron.ErrBackendMismatch)
	}

	tasks, err := f.Tasks()
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, keep, tasks[0].ID)
	assert.Equal(t, Yearly, tasks[0].Expression)
}

func (s Suite) testListenerSymmetry(t *testing.T) {
	f := s.Start(t)

	var starts atomic.Int32
	l := &cron.ListenerFuncs{Start: func(cron.TaskID) { starts.Add(1) }}

	require.NoError(t, f.AddListener(l))
	require.NoError(t, f.AddListener(l), "adding twice is a no-op")
	require.NoError(t, f.RemoveListener(l))
	require.NoError(t, f.RemoveListener(l), "removing an absent listener is a no-op")

	id, err := f.Register(EverySecond, Noop())
	require.NoError(t, err)
	time.Sleep(1500 * time.Millisecond)
	require.NoError(t, f.Remove(id))
	assert.Zero(t, starts.Load(), "removed listener must not be notified")
}

// recorder is a Listener remembering what it saw.
type recorder struct {
	mu        sync.Mutex
	started   []cron.TaskID
	succeeded []cron.TaskID
	failed    map[cron.TaskID][]error
}

func newRecorder() *recorder {
	return &recorder{failed: make(map[cron.TaskID][]error)}
}

func (r *recorder) OnStart(id cron.TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, id)
}

func (r *recorder) OnSuccess(id cron.TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.succeeded = append(r.succeeded, id)
}

func (r *recorder) OnFailure(id cron.TaskID, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[id] = append(r.failed[id], err)
}

func count(ids []cron.TaskID, id cron.TaskID) int {
	n := 0
	for _, x := range ids {
		if x == id {
			n++
		}
	}
	return n
}

func (r *recorder) successes(id cron.TaskID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return count(r.succeeded, id)
}

func (r *recorder) starts(id cron.TaskID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return count(r.started, id)
}

func (r *recorder) failures(id cron.TaskID) []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.failed[id]...)
}

func (s Suite) testEverySecond(t *testing.T) {
	f := s.Start(t)
	rec := newRecorder()
	require.NoError(t, f.AddListener(rec))

	var runs atomic.Int32
	var seen sync.Map
	id, err := f.Register(EverySecond, cron.Func("counter", func(ctx context.Context) error {
		runs.Add(1)
		if tid, ok := cron.TaskIDFromContext(ctx); ok {
			seen.Store(tid, true)
		}
		return nil
	}))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return runs.Load() >= 2 && rec.successes(id) >= 2
	}, s.Timeout, 50*time.Millisecond)

	assert.GreaterOrEqual(t, rec.starts(id), 2)
	_, ok := seen.Load(id)
	assert.True(t, ok, "execution context must carry the task id")
}

// testEveryNthSecond registers a counter on a stepped every-second
// expression and expects it to fire, and its listener to hear of it, on
// consecutive seconds.
func (s Suite) testEveryNthSecond(t *testing.T) {
	f := s.Start(t)
	rec := newRecorder()
	require.NoError(t, f.AddListener(rec))

	var runs atomic.Int32
	id, err := f.Register(EveryNthSecond, cron.Func("stepped-counter", func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return runs.Load() >= 3 && rec.successes(id) >= 3
	}, s.Timeout, 50*time.Millisecond)
	require.NoError(t, f.Remove(id))

	// a firing dispatched just before Remove may still complete
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int(runs.Load()), rec.successes(id))
	assert.Empty(t, rec.failures(id))
}

func (s Suite) testFailure(t *testing.T) {
	f := s.Start(t)
	rec := newRecorder()
	require.NoError(t, f.AddListener(rec))

	boom := errors.New("boom")
	id, err := f.Register(EverySecond, cron.Func("failing", func(context.Context) error { return boom }))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(rec.failures(id)) >= 1 }, s.Timeout, 50*time.Millisecond)
	assert.ErrorIs(t, rec.failures(id)[0], boom)
	assert.Zero(t, rec.successes(id))
}

func (s Suite) testPanic(t *testing.T) {
	f := s.Start(t)
	rec := newRecorder()
	require.NoError(t, f.AddListener(rec))

	id, err := f.Register(EverySecond, cron.Func("panicking", func(context.Context) error { panic("kaboom") }))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(rec.failures(id)) >= 1 }, s.Timeout, 50*time.Millisecond)
	assert.ErrorIs(t, rec.failures(id)[0], routine.ErrPanicRecovered)
}

func (s Suite) testRemoveStopsFiring(t *testing.T) {
	f := s.Start(t)

	var runs atomic.Int32
	id, err := f.Register(EverySecond, cron.Func("removed", func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, s.Timeout, 50*time.Millisecond)

	require.NoError(t, f.Remove(id))
	// a firing dispatched just before Remove may still complete
	time.Sleep(200 * time.Millisecond)
	after := runs.Load()
	time.Sleep(2 * time.Second)
	assert.Equal(t, after, runs.Load())
}

func (s Suite) testLifecycle(t *testing.T) {
	c := cron.NewController(s.Backend, append([]cron.Option{cron.WithLogger(zaptest.NewLogger(t))}, s.Options...)...)
	f := cron.NewFacade(c)

	assert.Equal(t, cron.StateNotStarted, c.State())
	_, err := f.Register(Yearly, Noop())
	assert.ErrorIs(t, err, cron.ErrEngineNotStarted)
	_, err = f.Tasks()
	assert.ErrorIs(t, err, cron.ErrEngineNotStarted)
	assert.NoError(t, c.Stop(), "stopping an unstarted controller is a no-op")

	require.NoError(t, c.Start(s.Properties))
	assert.Equal(t, cron.StateStarted, c.State())
	assert.ErrorIs(t, c.Start(s.Properties), cron.ErrAlreadyStarted)

	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())
	assert.Equal(t, cron.StateStopped, c.State())
	assert.ErrorIs(t, c.Start(s.Properties), cron.ErrControllerStopped)
	_, err = f.Register(Yearly, Noop())
	assert.ErrorIs(t, err, cron.ErrEngineNotStarted)
}

func (s Suite) testPreconditions(t *testing.T) {
	f := s.Start(t)

	_, err := f.Register("  ", Noop())
	assert.ErrorIs(t, err, cron.ErrPrecondition)
	_, err = f.Register(Yearly, nil)
	assert.ErrorIs(t, err, cron.ErrPrecondition)
	_, err = f.Register(Yearly, cron.Direct{})
	assert.ErrorIs(t, err, cron.ErrPrecondition)
	_, err = f.Register(Yearly, cron.MethodReference{TypeName: "T"})
	assert.ErrorIs(t, err, cron.ErrPrecondition)
	assert.ErrorIs(t, f.Remove(""), cron.ErrPrecondition)
	assert.ErrorIs(t, f.Update("", Yearly), cron.ErrPrecondition)
	assert.ErrorIs(t, f.AddListener(nil), cron.ErrPrecondition)

	tasks, err := f.Tasks()
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
