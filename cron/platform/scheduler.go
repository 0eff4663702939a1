package platform

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dailyyoga/cronkit/cron"
	"github.com/dailyyoga/cronkit/logger"
	"github.com/dailyyoga/cronkit/routine"
	cronlib "github.com/robfig/cron/v3"
	"github.com/smallnest/chanx"
	"go.uber.org/zap"
)

var (
	// ErrDuplicateTask is returned when scheduling an id twice
	ErrDuplicateTask = errors.New("platform: task already scheduled")
	// ErrSchedulerStopped is returned when using a stopped scheduler
	ErrSchedulerStopped = errors.New("platform: scheduler stopped")
)

// Parser is the expression grammar of the scheduler: six fields with
// leading seconds, or a descriptor such as @hourly or @every 5s.
var Parser = cronlib.NewParser(cronlib.Second | cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor)

// ExecutionObserver is the listener shape of the platform scheduler.
type ExecutionObserver interface {
	BeforeExecute(id string)
	AfterExecute(id string, err error)
}

// Entry describes one scheduled task.
type Entry struct {
	ID         string
	Expression string
	Task       cron.Task
	Next       time.Time
}

type timerTask struct {
	id         string
	expression string
	schedule   cronlib.Schedule
	task       cron.Task
	timer      *time.Timer
	next       time.Time
}

type firing struct {
	id   string
	task cron.Task
}

// Scheduler arms one timer per task for its next occurrence. Due firings
// are queued on an unbounded channel drained by PoolSize workers, or
// handed to an external executor.
type Scheduler struct {
	cfg *Config
	loc *time.Location
	log logger.Logger

	mu      sync.Mutex
	tasks   map[string]*timerTask
	started bool
	stopped bool

	omu       sync.Mutex
	observers atomic.Pointer[[]ExecutionObserver]

	executor cron.Executor
	queue    *chanx.UnboundedChan[firing]
	workers  sync.WaitGroup
	inflight sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler; nil cfg means DefaultConfig.
func NewScheduler(cfg *Config, log logger.Logger) (*Scheduler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, _ := time.LoadLocation(cfg.Location)
	s := &Scheduler{
		cfg:   cfg,
		loc:   loc,
		log:   logger.OrNop(log),
		tasks: make(map[string]*timerTask),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// SetExecutor makes the scheduler submit firings to ex instead of its
// own workers. It has no effect once the scheduler is started.
func (s *Scheduler) SetExecutor(ex cron.Executor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.executor = ex
	}
}

// Schedule adds task under id.
func (s *Scheduler) Schedule(id, expression string, task cron.Task) error {
	schedule, err := Parser.Parse(expression)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}
	if _, ok := s.tasks[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, id)
	}
	t := &timerTask{id: id, expression: expression, schedule: schedule, task: task}
	s.tasks[id] = t
	if s.started {
		s.arm(t, time.Now())
	}
	return nil
}

// Reschedule replaces the trigger of id. It reports false when id is unknown.
func (s *Scheduler) Reschedule(id, expression string) (bool, error) {
	schedule, err := Parser.Parse(expression)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.tasks[id]
	if !ok {
		return false, nil
	}
	if old.timer != nil {
		old.timer.Stop()
	}
	t := &timerTask{id: id, expression: expression, schedule: schedule, task: old.task}
	s.tasks[id] = t
	if s.started && !s.stopped {
		s.arm(t, time.Now())
	}
	return true, nil
}

// Cancel unschedules id. A running execution is not interrupted.
// It reports false when id is unknown.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return false
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	delete(s.tasks, id)
	return true
}

// Scheduled returns the task scheduled under id.
func (s *Scheduler) Scheduled(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Entry{}, false
	}
	return s.entry(t), true
}

// Entries returns all scheduled tasks.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, s.entry(t))
	}
	return out
}

func (s *Scheduler) entry(t *timerTask) Entry {
	next := t.next
	if next.IsZero() {
		next = t.schedule.Next(time.Now().In(s.loc))
	}
	return Entry{ID: t.id, Expression: t.expression, Task: t.task, Next: next}
}

// AddObserver adds o. Adding the same observer twice is a no-op.
func (s *Scheduler) AddObserver(o ExecutionObserver) {
	s.omu.Lock()
	defer s.omu.Unlock()
	cur := s.snapshot()
	if slices.Contains(cur, o) {
		return
	}
	next := append(slices.Clone(cur), o)
	s.observers.Store(&next)
}

// RemoveObserver removes o.
func (s *Scheduler) RemoveObserver(o ExecutionObserver) {
	s.omu.Lock()
	defer s.omu.Unlock()
	cur := s.snapshot()
	i := slices.Index(cur, o)
	if i < 0 {
		return
	}
	next := slices.Delete(slices.Clone(cur), i, i+1)
	s.observers.Store(&next)
}

// Observers returns the registered observers.
func (s *Scheduler) Observers() []ExecutionObserver {
	return slices.Clone(s.snapshot())
}

func (s *Scheduler) snapshot() []ExecutionObserver {
	if p := s.observers.Load(); p != nil {
		return *p
	}
	return nil
}

// Start arms the timers of every scheduled task and starts the workers.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}
	if s.started {
		return nil
	}
	s.started = true

	if s.executor == nil {
		s.queue = chanx.NewUnboundedChan[firing](context.Background(), s.cfg.PoolSize)
		for i := 0; i < s.cfg.PoolSize; i++ {
			s.workers.Add(1)
			routine.GoNamed(s.log, fmt.Sprintf("%s%d", s.cfg.ThreadNamePrefix, i+1), s.work)
		}
	}

	now := time.Now()
	for _, t := range s.tasks {
		s.arm(t, now)
	}
	s.log.Info("platform scheduler started",
		zap.Int("pool_size", s.cfg.PoolSize),
		zap.String("thread_name_prefix", s.cfg.ThreadNamePrefix),
		zap.Bool("external_executor", s.executor != nil),
	)
	return nil
}

// arm sets the timer of t for its next occurrence after now. Callers hold mu.
func (s *Scheduler) arm(t *timerTask, now time.Time) {
	next := t.schedule.Next(now.In(s.loc))
	if next.IsZero() {
		t.next = time.Time{}
		return
	}
	t.next = next
	t.timer = time.AfterFunc(next.Sub(now), func() { s.fire(t) })
}

// fire queues t and re-arms its timer, unless t was cancelled or replaced.
func (s *Scheduler) fire(t *timerTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.tasks[t.id] != t {
		return
	}
	s.dispatch(firing{id: t.id, task: t.task})
	s.arm(t, time.Now())
}

// dispatch hands f to the workers or the executor. Callers hold mu.
func (s *Scheduler) dispatch(f firing) {
	if s.queue != nil {
		s.inflight.Add(1)
		s.queue.In <- f
		return
	}
	s.inflight.Add(1)
	if err := s.executor.Submit(func() {
		defer s.inflight.Done()
		s.execute(f)
	}); err != nil {
		s.inflight.Done()
		s.log.Error("executor rejected task", zap.String("id", f.id), zap.Error(err))
	}
}

func (s *Scheduler) work() {
	defer s.workers.Done()
	for f := range s.queue.Out {
		s.execute(f)
		s.inflight.Done()
	}
}

func (s *Scheduler) execute(f firing) {
	observers := s.snapshot()
	for _, o := range observers {
		o.BeforeExecute(f.id)
	}
	err := routine.Safe(func() error { return f.task.Run(s.ctx) })
	for _, o := range observers {
		o.AfterExecute(f.id, err)
	}
}

// Stop disarms every timer. With wait it blocks until queued and running
// firings are done, bounded by AwaitTermination when set; otherwise it
// cancels their context and returns at once.
func (s *Scheduler) Stop(wait bool) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for _, t := range s.tasks {
		if t.timer != nil {
			t.timer.Stop()
		}
	}
	queue := s.queue
	s.mu.Unlock()

	if queue != nil {
		close(queue.In)
	}
	if !wait {
		s.cancel()
		s.log.Info("platform scheduler stopped", zap.Bool("wait", false))
		return
	}

	done := make(chan struct{})
	routine.GoNamed(s.log, "cron-platform-stop", func() {
		s.inflight.Wait()
		s.workers.Wait()
		close(done)
	})
	if s.cfg.AwaitTermination > 0 {
		select {
		case <-done:
		case <-time.After(s.cfg.AwaitTermination):
			s.log.Warn("platform scheduler did not terminate in time",
				zap.Duration("await_termination", s.cfg.AwaitTermination))
		}
	} else {
		<-done
	}
	s.cancel()
	s.log.Info("platform scheduler stopped", zap.Bool("wait", true))
}
