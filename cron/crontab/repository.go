// Package crontab adapts github.com/robfig/cron/v3, a lightweight
// crontab-style engine, to the cron repository contract.
//
// Native keys are integers: the EntryID a task was first scheduled under.
// The engine cannot reschedule an entry in place, so Update swaps the
// underlying entry and the repository keeps the current EntryID per key.
package crontab

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dailyyoga/cronkit/cron"
	"github.com/dailyyoga/cronkit/logger"
	cronlib "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Name is the backend name and TaskID discriminator.
const Name = "crontab"

// Backend returns the crontab cron.Backend.
func Backend() cron.Backend {
	return cron.BackendFunc(Name, func(env cron.Environment) (cron.Adapter, error) {
		return New(env)
	})
}

type entry struct {
	key        cron.IntKey
	current    cronlib.EntryID
	expression string
	task       cron.Task
}

// Repository is the crontab adapter.
type Repository struct {
	codec  cron.Codec
	env    cron.Environment
	cfg    *Config
	log    logger.Logger
	engine *cronlib.Cron
	parser cronlib.ScheduleParser

	mu      sync.Mutex
	tasks   map[cron.IntKey]*entry
	bridges cron.BridgeRegistry[TaskListener]

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	stopped  atomic.Bool
}

// New builds the adapter. env.Native, when set, must be a *cronlib.Cron;
// it is adopted as-is and expressions are parsed with the default parser.
func New(env cron.Environment) (*Repository, error) {
	log := logger.OrNop(env.Logger)
	cfg := DefaultConfig()
	if err := env.Properties.Decode(cfg, log); err != nil {
		return nil, cron.ErrStart(Name, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cron.ErrStart(Name, err)
	}

	r := &Repository{
		codec:  cron.NewCodec(Name),
		env:    env,
		cfg:    cfg,
		log:    log,
		parser: cfg.parser(),
		tasks:  make(map[cron.IntKey]*entry),
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())

	if env.Native != nil {
		engine, ok := env.Native.(*cronlib.Cron)
		if !ok {
			return nil, cron.ErrStart(Name, cron.ErrPreconditionf("native engine is %T, want *cron.Cron", env.Native))
		}
		r.engine = engine
	} else {
		loc, _ := cfg.location()
		r.engine = cronlib.New(
			cronlib.WithParser(r.parser),
			cronlib.WithLocation(loc),
			cronlib.WithLogger(engineLogger{log: log}),
		)
	}

	log.Info("crontab repository initialized",
		zap.Bool("match_second", cfg.MatchSecond),
		zap.Bool("daemon", cfg.Daemon),
		zap.String("location", cfg.Location),
		zap.Bool("external_executor", env.Executor != nil),
	)
	return r, nil
}

// Engine returns the underlying engine.
func (r *Repository) Engine() *cronlib.Cron {
	return r.engine
}

func (r *Repository) Backend() string { return Name }

func (r *Repository) Start() error {
	r.engine.Start()
	return nil
}

// Stop stops the engine. Unless Daemon is set it waits for running tasks,
// including those handed to an external executor.
func (r *Repository) Stop() error {
	if !r.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if r.cfg.Daemon {
		r.cancel()
		r.engine.Stop()
		return nil
	}
	<-r.engine.Stop().Done()
	r.inflight.Wait()
	r.cancel()
	return nil
}

func (r *Repository) Register(expression string, body cron.Body) (cron.TaskID, error) {
	task, err := r.env.Prepare(body)
	if err != nil {
		return "", prepareError(expression, err)
	}
	schedule, err := r.parser.Parse(expression)
	if err != nil {
		return "", cron.ErrExpression(expression, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	j := &job{repo: r, task: task}
	eid := r.engine.Schedule(schedule, j)
	key := cron.IntKey(eid)
	j.key.Store(int64(key))
	r.tasks[key] = &entry{key: key, current: eid, expression: expression, task: task}

	id := r.codec.Encode(key)
	r.log.Info("task registered", zap.String("task_id", string(id)), zap.String("spec", expression), zap.String("task", task.Name()))
	return id, nil
}

func (r *Repository) Update(id cron.TaskID, expression string) error {
	key, err := r.codec.DecodeInt(id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.lookup(key)
	if !ok {
		return cron.ErrNotFound(id)
	}
	schedule, err := r.parser.Parse(expression)
	if err != nil {
		return cron.ErrExpression(expression, err)
	}

	j := &job{repo: r, task: e.task}
	j.key.Store(int64(key))
	next := r.engine.Schedule(schedule, j)
	r.engine.Remove(e.current)
	e.current = next
	e.expression = expression

	r.log.Info("task rescheduled", zap.String("task_id", string(id)), zap.String("spec", expression))
	return nil
}

func (r *Repository) Remove(id cron.TaskID) error {
	key, err := r.codec.DecodeInt(id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.lookup(key)
	if !ok {
		return cron.ErrNotFound(id)
	}
	r.engine.Remove(e.current)
	delete(r.tasks, key)

	r.log.Info("task removed", zap.String("task_id", string(id)))
	return nil
}

// lookup returns the entry of key if both the repository and the engine know it.
func (r *Repository) lookup(key cron.IntKey) (*entry, bool) {
	e, ok := r.tasks[key]
	if !ok {
		return nil, false
	}
	if !r.engine.Entry(e.current).Valid() {
		delete(r.tasks, key)
		return nil, false
	}
	return e, true
}

func (r *Repository) AddListener(l cron.Listener) error {
	key, err := cron.ListenerKey(l)
	if err != nil {
		return err
	}
	_, err = r.bridges.Add(key, func() (TaskListener, error) {
		return newBridge(r.codec, l, r.log), nil
	})
	return err
}

func (r *Repository) RemoveListener(l cron.Listener) error {
	key, err := cron.ListenerKey(l)
	if err != nil {
		return err
	}
	_, err = r.bridges.Remove(key, nil)
	return err
}

// ListenerCount returns the number of registered listener bridges.
func (r *Repository) ListenerCount() int {
	return r.bridges.Len()
}

func (r *Repository) Tasks() []cron.TaskInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]cron.TaskInfo, 0, len(r.tasks))
	for key, e := range r.tasks {
		en := r.engine.Entry(e.current)
		if !en.Valid() {
			continue
		}
		out = append(out, cron.TaskInfo{
			ID:         r.codec.Encode(key),
			Name:       e.task.Name(),
			Expression: e.expression,
			Next:       en.Next,
		})
	}
	return out
}

// EntryOf returns the engine entry currently backing id.
func (r *Repository) EntryOf(id cron.TaskID) (cronlib.Entry, error) {
	key, err := r.codec.DecodeInt(id)
	if err != nil {
		return cronlib.Entry{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.lookup(key)
	if !ok {
		return cronlib.Entry{}, cron.ErrNotFound(id)
	}
	return r.engine.Entry(e.current), nil
}

// job is what the engine runs for one task.
type job struct {
	repo *Repository
	key  atomic.Int64
	task cron.Task
}

func (j *job) Run() {
	r := j.repo
	entry := cronlib.EntryID(j.key.Load())
	if r.env.Executor == nil {
		r.fire(entry, j.task)
		return
	}
	r.inflight.Add(1)
	if err := r.env.Executor.Submit(func() {
		defer r.inflight.Done()
		r.fire(entry, j.task)
	}); err != nil {
		r.inflight.Done()
		r.log.Error("executor rejected task", zap.Int("entry", int(entry)), zap.Error(err))
	}
}

func (r *Repository) fire(entry cronlib.EntryID, task cron.Task) {
	ctx := cron.WithTaskID(r.ctx, r.codec.Encode(cron.IntKey(entry)))
	listeners := r.bridges.Snapshot()
	for _, l := range listeners {
		l.OnLaunch(entry)
	}
	if err := task.Run(ctx); err != nil {
		for _, l := range listeners {
			l.OnFailed(entry, err)
		}
		return
	}
	for _, l := range listeners {
		l.OnSucceeded(entry)
	}
}

// prepareError keeps precondition failures as they are and reports
// anything else, such as an unresolvable method, as a registration failure.
func prepareError(expression string, err error) error {
	if errors.Is(err, cron.ErrPrecondition) {
		return err
	}
	return cron.ErrRegister(expression, err)
}

var _ cron.Adapter = (*Repository)(nil)
