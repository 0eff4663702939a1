// Package platform is the cron repository over Scheduler, which arms a
// runtime timer per task and runs due firings on a small worker set.
//
// Native keys are xid strings.
package platform

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/dailyyoga/cronkit/cron"
	"github.com/dailyyoga/cronkit/logger"
	"github.com/rs/xid"
	"go.uber.org/zap"
)

// Name is the backend name and TaskID discriminator.
const Name = "platform"

// Backend returns the platform cron.Backend.
func Backend() cron.Backend {
	return cron.BackendFunc(Name, func(env cron.Environment) (cron.Adapter, error) {
		return New(env)
	})
}

// Repository is the platform adapter.
type Repository struct {
	codec     cron.Codec
	env       cron.Environment
	cfg       *Config
	log       logger.Logger
	scheduler *Scheduler
	bridges   cron.BridgeRegistry[ExecutionObserver]
	stopped   atomic.Bool
}

// New builds the adapter. env.Native, when set, must be a *Scheduler.
func New(env cron.Environment) (*Repository, error) {
	log := logger.OrNop(env.Logger)
	cfg := DefaultConfig()
	if err := env.Properties.Decode(cfg, log); err != nil {
		return nil, cron.ErrStart(Name, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cron.ErrStart(Name, err)
	}

	r := &Repository{codec: cron.NewCodec(Name), env: env, cfg: cfg, log: log}
	if env.Native != nil {
		s, ok := env.Native.(*Scheduler)
		if !ok {
			return nil, cron.ErrStart(Name, cron.ErrPreconditionf("native engine is %T, want *platform.Scheduler", env.Native))
		}
		r.scheduler = s
	} else {
		s, err := NewScheduler(cfg, log)
		if err != nil {
			return nil, cron.ErrStart(Name, err)
		}
		r.scheduler = s
	}
	if env.Executor != nil {
		r.scheduler.SetExecutor(env.Executor)
	}

	log.Info("platform repository initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Bool("daemon", cfg.Daemon),
		zap.Duration("await_termination", cfg.AwaitTermination),
	)
	return r, nil
}

// Scheduler returns the underlying scheduler.
func (r *Repository) Scheduler() *Scheduler {
	return r.scheduler
}

func (r *Repository) Backend() string { return Name }

func (r *Repository) Start() error {
	return r.scheduler.Start()
}

func (r *Repository) Stop() error {
	if !r.stopped.CompareAndSwap(false, true) {
		return nil
	}
	r.scheduler.Stop(!r.cfg.Daemon)
	return nil
}

func (r *Repository) Register(expression string, body cron.Body) (cron.TaskID, error) {
	task, err := r.env.Prepare(body)
	if err != nil {
		if errors.Is(err, cron.ErrPrecondition) {
			return "", err
		}
		return "", cron.ErrRegister(expression, err)
	}
	if _, err := Parser.Parse(expression); err != nil {
		return "", cron.ErrExpression(expression, err)
	}

	key := cron.StringKey(xid.New().String())
	id := r.codec.Encode(key)
	if err := r.scheduler.Schedule(string(key), expression, idTask{Task: task, id: id}); err != nil {
		return "", cron.ErrRegister(expression, err)
	}

	r.log.Info("task registered", zap.String("task_id", string(id)), zap.String("spec", expression), zap.String("task", task.Name()))
	return id, nil
}

func (r *Repository) Update(id cron.TaskID, expression string) error {
	key, err := r.codec.DecodeString(id)
	if err != nil {
		return err
	}
	if _, ok := r.scheduler.Scheduled(string(key)); !ok {
		return cron.ErrNotFound(id)
	}
	if _, err := Parser.Parse(expression); err != nil {
		return cron.ErrExpression(expression, err)
	}
	ok, err := r.scheduler.Reschedule(string(key), expression)
	if err != nil {
		return cron.ErrExpression(expression, err)
	}
	if !ok {
		return cron.ErrNotFound(id)
	}
	r.log.Info("task rescheduled", zap.String("task_id", string(id)), zap.String("spec", expression))
	return nil
}

func (r *Repository) Remove(id cron.TaskID) error {
	key, err := r.codec.DecodeString(id)
	if err != nil {
		return err
	}
	if !r.scheduler.Cancel(string(key)) {
		return cron.ErrNotFound(id)
	}
	r.log.Info("task removed", zap.String("task_id", string(id)))
	return nil
}

func (r *Repository) AddListener(l cron.Listener) error {
	key, err := cron.ListenerKey(l)
	if err != nil {
		return err
	}
	_, err = r.bridges.Add(key, func() (ExecutionObserver, error) {
		b := newBridge(r.codec, l, r.log)
		r.scheduler.AddObserver(b)
		return b, nil
	})
	return err
}

func (r *Repository) RemoveListener(l cron.Listener) error {
	key, err := cron.ListenerKey(l)
	if err != nil {
		return err
	}
	_, err = r.bridges.Remove(key, func(b ExecutionObserver) error {
		r.scheduler.RemoveObserver(b)
		return nil
	})
	return err
}

func (r *Repository) Tasks() []cron.TaskInfo {
	entries := r.scheduler.Entries()
	out := make([]cron.TaskInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, cron.TaskInfo{
			ID:         r.codec.Encode(cron.StringKey(e.ID)),
			Name:       e.Task.Name(),
			Expression: e.Expression,
			Next:       e.Next,
		})
	}
	return out
}

type idTask struct {
	cron.Task
	id cron.TaskID
}

func (t idTask) Run(ctx context.Context) error {
	return t.Task.Run(cron.WithTaskID(ctx, t.id))
}

var _ cron.Adapter = (*Repository)(nil)
