package minimal

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
	"github.com/dailyyoga/cronkit/cron"
	"github.com/dailyyoga/cronkit/logger"
	"github.com/dailyyoga/cronkit/routine"
	"go.uber.org/zap"
)

// PoolName is the name of the pool an Engine runs tasks on when no
// executor is set.
const PoolName = "cron-minimal"

var (
	// ErrInvalidExpression is returned for expressions gronx does not accept
	ErrInvalidExpression = errors.New("minimal: invalid expression")
	// ErrDuplicateTask is returned when scheduling an id twice
	ErrDuplicateTask = errors.New("minimal: task already scheduled")
	// ErrEngineStopped is returned when starting a stopped engine
	ErrEngineStopped = errors.New("minimal: engine stopped")
)

// SchedulerListener is the listener shape of the minimal engine.
type SchedulerListener interface {
	TaskLaunching(id string)
	TaskSucceeded(id string)
	TaskFailed(id string, err error)
}

// Entry describes one scheduled task.
type Entry struct {
	ID         string
	Expression string
	Task       cron.Task
	Next       time.Time
}

type scheduled struct {
	expression string
	task       cron.Task
}

// Engine is a small in-process scheduler. A single loop wakes on every
// second boundary and runs the tasks whose expression is due, using gronx
// for matching. Expressions have 5 fields, or 6 with leading seconds.
type Engine struct {
	cfg *Config
	loc *time.Location
	log logger.Logger

	mu    sync.RWMutex
	tasks map[string]*scheduled

	lmu       sync.Mutex
	listeners atomic.Pointer[[]SchedulerListener]

	executor cron.Executor
	pool     routine.Pool
	inflight sync.WaitGroup

	smu     sync.Mutex
	started bool
	stopped bool
	quit    chan struct{}
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewEngine creates an engine; nil cfg means DefaultConfig.
func NewEngine(cfg *Config, log logger.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, _ := cfg.location()
	e := &Engine{
		cfg:   cfg,
		loc:   loc,
		log:   logger.OrNop(log),
		tasks: make(map[string]*scheduled),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e, nil
}

// SetExecutor makes the engine submit firings to ex instead of its own pool.
// It has no effect once the engine is started.
func (e *Engine) SetExecutor(ex cron.Executor) {
	e.smu.Lock()
	defer e.smu.Unlock()
	if !e.started {
		e.executor = ex
	}
}

// Validate reports whether expression is accepted by the engine.
func (e *Engine) Validate(expression string) error {
	if !gronx.New().IsValid(expression) {
		return fmt.Errorf("%w: %q", ErrInvalidExpression, expression)
	}
	return nil
}

// Schedule adds task under id.
func (e *Engine) Schedule(id, expression string, task cron.Task) error {
	if err := e.Validate(expression); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.tasks[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, id)
	}
	e.tasks[id] = &scheduled{expression: expression, task: task}
	return nil
}

// Reschedule replaces the expression of id. It reports false when id is unknown.
func (e *Engine) Reschedule(id, expression string) (bool, error) {
	if err := e.Validate(expression); err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.tasks[id]
	if !ok {
		return false, nil
	}
	e.tasks[id] = &scheduled{expression: expression, task: s.task}
	return true, nil
}

// Remove unschedules id. It reports false when id is unknown.
func (e *Engine) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.tasks[id]; !ok {
		return false
	}
	delete(e.tasks, id)
	return true
}

// Entry returns the task scheduled under id.
func (e *Engine) Entry(id string) (Entry, bool) {
	e.mu.RLock()
	s, ok := e.tasks[id]
	e.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	return e.entry(id, s), true
}

// Entries returns all scheduled tasks.
func (e *Engine) Entries() []Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Entry, 0, len(e.tasks))
	for id, s := range e.tasks {
		out = append(out, e.entry(id, s))
	}
	return out
}

func (e *Engine) entry(id string, s *scheduled) Entry {
	next, err := gronx.NextTickAfter(s.expression, time.Now().In(e.loc), false)
	if err != nil {
		next = time.Time{}
	}
	return Entry{ID: id, Expression: s.expression, Task: s.task, Next: next}
}

// AddSchedulerListener adds l. Adding the same listener twice is a no-op.
func (e *Engine) AddSchedulerListener(l SchedulerListener) {
	e.lmu.Lock()
	defer e.lmu.Unlock()
	cur := e.snapshot()
	if slices.Contains(cur, l) {
		return
	}
	next := append(slices.Clone(cur), l)
	e.listeners.Store(&next)
}

// RemoveSchedulerListener removes l.
func (e *Engine) RemoveSchedulerListener(l SchedulerListener) {
	e.lmu.Lock()
	defer e.lmu.Unlock()
	cur := e.snapshot()
	i := slices.Index(cur, l)
	if i < 0 {
		return
	}
	next := slices.Delete(slices.Clone(cur), i, i+1)
	e.listeners.Store(&next)
}

// SchedulerListeners returns the registered listeners.
func (e *Engine) SchedulerListeners() []SchedulerListener {
	return slices.Clone(e.snapshot())
}

func (e *Engine) snapshot() []SchedulerListener {
	if p := e.listeners.Load(); p != nil {
		return *p
	}
	return nil
}

// Start starts the tick loop. Starting twice is a no-op.
func (e *Engine) Start() error {
	e.smu.Lock()
	defer e.smu.Unlock()
	if e.stopped {
		return ErrEngineStopped
	}
	if e.started {
		return nil
	}
	if e.executor == nil {
		pool, err := routine.NewPool(e.log, PoolName, e.cfg.PoolSize)
		if err != nil {
			return err
		}
		e.pool = pool
	}
	e.started = true
	routine.GoNamed(e.log, "cron-minimal-ticker", e.run)
	e.log.Info("minimal engine started", zap.Int("pool_size", e.cfg.PoolSize), zap.Bool("external_executor", e.executor != nil))
	return nil
}

// Stop stops the tick loop. With wait it blocks until running tasks return;
// otherwise their context is cancelled and Stop returns at once.
func (e *Engine) Stop(wait bool) {
	e.smu.Lock()
	if e.stopped || !e.started {
		e.stopped = true
		e.smu.Unlock()
		return
	}
	e.stopped = true
	e.smu.Unlock()

	close(e.quit)
	<-e.done

	if !wait {
		e.cancel()
	}
	if e.pool != nil {
		e.pool.Close(wait)
	} else if wait {
		e.inflight.Wait()
	}
	e.cancel()
	e.log.Info("minimal engine stopped", zap.Bool("wait", wait))
}

func (e *Engine) run() {
	defer close(e.done)
	for {
		now := time.Now()
		next := now.Truncate(time.Second).Add(time.Second)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-e.quit:
			timer.Stop()
			return
		case <-timer.C:
			e.tick(next.In(e.loc))
		}
	}
}

// tick dispatches every task due at ref.
func (e *Engine) tick(ref time.Time) {
	e.mu.RLock()
	due := make(map[string]cron.Task)
	g := gronx.New()
	for id, s := range e.tasks {
		ok, err := g.IsDue(s.expression, ref)
		if err != nil {
			e.log.Warn("expression check failed", zap.String("id", id), zap.String("spec", s.expression), zap.Error(err))
			continue
		}
		if ok {
			due[id] = s.task
		}
	}
	e.mu.RUnlock()

	for id, task := range due {
		e.dispatch(id, task)
	}
}

func (e *Engine) dispatch(id string, task cron.Task) {
	if e.pool != nil {
		if err := e.pool.Submit(func() { e.execute(id, task) }); err != nil {
			e.log.Warn("pool rejected task", zap.String("id", id), zap.Error(err))
		}
		return
	}
	e.inflight.Add(1)
	if err := e.executor.Submit(func() {
		defer e.inflight.Done()
		e.execute(id, task)
	}); err != nil {
		e.inflight.Done()
		e.log.Error("executor rejected task", zap.String("id", id), zap.Error(err))
	}
}

func (e *Engine) execute(id string, task cron.Task) {
	listeners := e.snapshot()
	for _, l := range listeners {
		l.TaskLaunching(id)
	}
	err := routine.Safe(func() error { return task.Run(e.ctx) })
	if err != nil {
		for _, l := range listeners {
			l.TaskFailed(id, err)
		}
		return
	}
	for _, l := range listeners {
		l.TaskSucceeded(id)
	}
}
