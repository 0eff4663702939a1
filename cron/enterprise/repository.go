// Package enterprise adapts github.com/go-co-op/gocron/v2, a full featured
// scheduler with named jobs, tags, per-job events and a concurrency limit,
// to the cron repository contract.
//
// Native keys are name/group pairs. Direct tasks are named after
// Task.Name() in DefaultGroup; method references use the method name in a
// group named after the type. Method references are instantiated through
// the job factory on every firing.
package enterprise

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/dailyyoga/cronkit/cron"
	"github.com/dailyyoga/cronkit/logger"
	"github.com/dailyyoga/cronkit/routine"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	cronlib "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	// Name is the backend name and TaskID discriminator.
	Name = "enterprise"
	// DefaultGroup is the group of direct tasks.
	DefaultGroup = "DEFAULT"
)

// Backend returns the enterprise cron.Backend.
func Backend() cron.Backend {
	return cron.BackendFunc(Name, func(env cron.Environment) (cron.Adapter, error) {
		return New(env)
	})
}

type job struct {
	key        cron.CompositeKey
	id         uuid.UUID
	expression string
	name       string
	task       gocron.Task
}

// Repository is the enterprise adapter.
type Repository struct {
	codec     cron.Codec
	env       cron.Environment
	cfg       *Config
	log       logger.Logger
	scheduler gocron.Scheduler
	parser    cronlib.Parser
	listeners ListenerManager

	factory atomic.Pointer[cron.Resolver]

	mu    sync.RWMutex
	jobs  map[cron.CompositeKey]*job
	byJob map[uuid.UUID]cron.CompositeKey

	ctx     context.Context
	cancel  context.CancelFunc
	stopped atomic.Bool
}

// New builds the adapter. env.Native, when set, must be a gocron.Scheduler.
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
		jobs:   make(map[cron.CompositeKey]*job),
		byJob:  make(map[uuid.UUID]cron.CompositeKey),
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	if env.Resolver != nil {
		r.SetJobFactory(env.Resolver)
	}

	if env.Native != nil {
		s, ok := env.Native.(gocron.Scheduler)
		if !ok {
			return nil, cron.ErrStart(Name, cron.ErrPreconditionf("native engine is %T, want gocron.Scheduler", env.Native))
		}
		r.scheduler = s
	} else {
		s, err := newScheduler(cfg, log)
		if err != nil {
			return nil, cron.ErrStart(Name, err)
		}
		r.scheduler = s
	}

	log.Info("enterprise repository initialized",
		zap.Int("thread_count", cfg.ThreadCount),
		zap.String("limit_mode", cfg.LimitMode),
		zap.Duration("stop_timeout", cfg.StopTimeout),
		zap.Bool("daemon", cfg.Daemon),
	)
	return r, nil
}

// newScheduler makes one attempt and, only when the engine refused an
// unset concurrency limit, one corrected attempt with NumCPU+1 threads.
func newScheduler(cfg *Config, log logger.Logger) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler(cfg.schedulerOptions(engineLogger{log: log})...)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, gocron.ErrWithLimitConcurrentJobsZero) {
		return nil, err
	}

	cfg.ThreadCount = runtime.NumCPU() + 1
	log.Warn("thread_count not configured, retrying with default",
		zap.Int("thread_count", cfg.ThreadCount),
		zap.Error(err),
	)
	return gocron.NewScheduler(cfg.schedulerOptions(engineLogger{log: log})...)
}

// Scheduler returns the underlying engine.
func (r *Repository) Scheduler() gocron.Scheduler {
	return r.scheduler
}

// Config returns the effective configuration, including a corrected ThreadCount.
func (r *Repository) Config() Config {
	return *r.cfg
}

// ListenerManager returns the job listener manager.
func (r *Repository) ListenerManager() *ListenerManager {
	return &r.listeners
}

// SetJobFactory sets the resolver that instantiates method reference jobs.
// It must be set before the first method reference is registered.
func (r *Repository) SetJobFactory(f cron.Resolver) {
	r.factory.Store(&f)
}

func (r *Repository) jobFactory() cron.Resolver {
	if p := r.factory.Load(); p != nil {
		return *p
	}
	return nil
}

func (r *Repository) Backend() string { return Name }

func (r *Repository) Start() error {
	r.scheduler.Start()
	return nil
}

// Stop shuts the engine down. Daemon mode cancels running jobs and does not
// wait for the shutdown to finish.
func (r *Repository) Stop() error {
	if !r.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if r.cfg.Daemon {
		r.cancel()
		routine.GoNamed(r.log, "enterprise-shutdown", func() {
			if err := r.scheduler.Shutdown(); err != nil {
				r.log.Warn("enterprise shutdown incomplete", zap.Error(err))
			}
		})
		return nil
	}
	defer r.cancel()
	return r.scheduler.Shutdown()
}

func (r *Repository) Register(expression string, body cron.Body) (cron.TaskID, error) {
	key, name, run, err := r.prepare(body)
	if err != nil {
		return "", prepareError(expression, err)
	}
	if _, err := r.parser.Parse(expression); err != nil {
		return "", cron.ErrExpression(expression, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[key]; exists {
		return "", cron.ErrRegister(expression, errJobExists(key))
	}

	id := r.codec.Encode(key)
	task := gocron.NewTask(func() error {
		return run(cron.WithTaskID(r.ctx, id))
	})
	j, err := r.scheduler.NewJob(r.definition(expression), task, r.jobOptions(key)...)
	if err != nil {
		return "", classify(expression, err)
	}

	r.jobs[key] = &job{key: key, id: j.ID(), expression: expression, name: name, task: task}
	r.byJob[j.ID()] = key

	r.log.Info("task registered", zap.String("task_id", string(id)), zap.String("spec", expression), zap.String("job_id", j.ID().String()))
	return id, nil
}

// prepare derives the native key of body and the function run on each firing.
func (r *Repository) prepare(body cron.Body) (cron.CompositeKey, string, func(ctx context.Context) error, error) {
	switch b := body.(type) {
	case cron.MethodReference:
		if r.jobFactory() == nil {
			return cron.CompositeKey{}, "", nil, cron.ErrPreconditionf("job factory not set for method reference %s.%s", b.TypeName, b.MethodName)
		}
		key := cron.CompositeKey{Name: b.MethodName, Group: b.TypeName}
		run := func(ctx context.Context) error {
			task, err := r.jobFactory().Resolve(b.TypeName, b.MethodName)
			if err != nil {
				return err
			}
			return r.env.Wrap(task).Run(ctx)
		}
		return key, b.TypeName + "." + b.MethodName, run, nil
	default:
		task, err := r.env.Prepare(body)
		if err != nil {
			return cron.CompositeKey{}, "", nil, err
		}
		name := task.Name()
		if name == "" {
			name = uuid.NewString()
		}
		return cron.CompositeKey{Name: name, Group: DefaultGroup}, task.Name(), task.Run, nil
	}
}

func (r *Repository) definition(expression string) gocron.JobDefinition {
	return gocron.CronJob(expression, r.cfg.MatchSecond)
}

func (r *Repository) jobOptions(key cron.CompositeKey) []gocron.JobOption {
	return []gocron.JobOption{
		gocron.WithName(key.Name),
		gocron.WithTags(key.Group),
		gocron.WithEventListeners(
			gocron.BeforeJobRuns(func(jobID uuid.UUID, _ string) {
				if k, ok := r.keyOf(jobID); ok {
					r.listeners.jobToBeExecuted(k)
				}
			}),
			gocron.AfterJobRuns(func(jobID uuid.UUID, _ string) {
				if k, ok := r.keyOf(jobID); ok {
					r.listeners.jobWasExecuted(k, nil)
				}
			}),
			gocron.AfterJobRunsWithError(func(jobID uuid.UUID, _ string, err error) {
				if k, ok := r.keyOf(jobID); ok {
					r.listeners.jobWasExecuted(k, err)
				}
			}),
		),
	}
}

func (r *Repository) keyOf(jobID uuid.UUID) (cron.CompositeKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.byJob[jobID]
	return k, ok
}

func (r *Repository) Update(id cron.TaskID, expression string) error {
	key, err := r.codec.DecodeComposite(id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.lookup(key)
	if !ok {
		return cron.ErrNotFound(id)
	}
	if _, err := r.parser.Parse(expression); err != nil {
		return cron.ErrExpression(expression, err)
	}

	updated, err := r.scheduler.Update(j.id, r.definition(expression), j.task, r.jobOptions(key)...)
	if err != nil {
		if errors.Is(err, gocron.ErrJobNotFound) {
			return cron.ErrNotFound(id)
		}
		return classify(expression, err)
	}
	if updated.ID() != j.id {
		delete(r.byJob, j.id)
		j.id = updated.ID()
		r.byJob[j.id] = key
	}
	j.expression = expression

	r.log.Info("task rescheduled", zap.String("task_id", string(id)), zap.String("spec", expression))
	return nil
}

func (r *Repository) Remove(id cron.TaskID) error {
	key, err := r.codec.DecodeComposite(id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.lookup(key)
	if !ok {
		return cron.ErrNotFound(id)
	}
	if err := r.scheduler.RemoveJob(j.id); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		return cron.ErrRegister(j.expression, err)
	}
	delete(r.jobs, key)
	delete(r.byJob, j.id)

	r.log.Info("task removed", zap.String("task_id", string(id)))
	return nil
}

// lookup returns the job of key if the engine still has it. Callers hold mu.
func (r *Repository) lookup(key cron.CompositeKey) (*job, bool) {
	j, ok := r.jobs[key]
	if !ok {
		return nil, false
	}
	if _, found := r.engineJob(j.id); !found {
		delete(r.jobs, key)
		delete(r.byJob, j.id)
		return nil, false
	}
	return j, true
}

func (r *Repository) engineJob(id uuid.UUID) (gocron.Job, bool) {
	for _, j := range r.scheduler.Jobs() {
		if j.ID() == id {
			return j, true
		}
	}
	return nil, false
}

// Job returns the engine job behind id.
func (r *Repository) Job(id cron.TaskID) (gocron.Job, error) {
	key, err := r.codec.DecodeComposite(id)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	j, ok := r.jobs[key]
	r.mu.RUnlock()
	if !ok {
		return nil, cron.ErrNotFound(id)
	}
	ej, found := r.engineJob(j.id)
	if !found {
		return nil, cron.ErrNotFound(id)
	}
	return ej, nil
}

func (r *Repository) AddListener(l cron.Listener) error {
	key, err := cron.ListenerKey(l)
	if err != nil {
		return err
	}
	r.listeners.AddJobListener(newBridge(key, r.codec, l, r.log))
	return nil
}

func (r *Repository) RemoveListener(l cron.Listener) error {
	key, err := cron.ListenerKey(l)
	if err != nil {
		return err
	}
	r.listeners.RemoveJobListener(key)
	return nil
}

func (r *Repository) Tasks() []cron.TaskInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engineJobs := make(map[uuid.UUID]gocron.Job)
	for _, ej := range r.scheduler.Jobs() {
		engineJobs[ej.ID()] = ej
	}
	out := make([]cron.TaskInfo, 0, len(r.jobs))
	for key, j := range r.jobs {
		ej, ok := engineJobs[j.id]
		if !ok {
			continue
		}
		next, _ := ej.NextRun()
		out = append(out, cron.TaskInfo{
			ID:         r.codec.Encode(key),
			Name:       j.name,
			Expression: j.expression,
			Next:       next,
		})
	}
	return out
}

// classify maps an engine error for expression onto the error taxonomy.
func classify(expression string, err error) error {
	if errors.Is(err, gocron.ErrCronJobParse) || errors.Is(err, gocron.ErrCronJobInvalid) {
		return cron.ErrExpression(expression, err)
	}
	return cron.ErrRegister(expression, err)
}

func prepareError(expression string, err error) error {
	if errors.Is(err, cron.ErrPrecondition) {
		return err
	}
	return cron.ErrRegister(expression, err)
}

var _ cron.Adapter = (*Repository)(nil)
