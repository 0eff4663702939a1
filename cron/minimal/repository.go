// Package minimal is the cron repository over Engine, a small in-process
// scheduler matching expressions with github.com/adhocore/gronx.
//
// Native keys are random UUID strings.
package minimal

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/dailyyoga/cronkit/cron"
	"github.com/dailyyoga/cronkit/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Name is the backend name and TaskID discriminator.
const Name = "minimal"

// Backend returns the minimal cron.Backend.
func Backend() cron.Backend {
	return cron.BackendFunc(Name, func(env cron.Environment) (cron.Adapter, error) {
		return New(env)
	})
}

// Repository is the minimal adapter.
type Repository struct {
	codec   cron.Codec
	env     cron.Environment
	cfg     *Config
	log     logger.Logger
	engine  *Engine
	bridges cron.BridgeRegistry[SchedulerListener]
	stopped atomic.Bool
}

// New builds the adapter. env.Native, when set, must be an *Engine.
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
		engine, ok := env.Native.(*Engine)
		if !ok {
			return nil, cron.ErrStart(Name, cron.ErrPreconditionf("native engine is %T, want *minimal.Engine", env.Native))
		}
		r.engine = engine
	} else {
		engine, err := NewEngine(cfg, log)
		if err != nil {
			return nil, cron.ErrStart(Name, err)
		}
		r.engine = engine
	}
	if env.Executor != nil {
		r.engine.SetExecutor(env.Executor)
	}

	log.Info("minimal repository initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Bool("daemon", cfg.Daemon),
		zap.String("location", cfg.Location),
	)
	return r, nil
}

// Engine returns the underlying engine.
func (r *Repository) Engine() *Engine {
	return r.engine
}

func (r *Repository) Backend() string { return Name }

func (r *Repository) Start() error {
	return r.engine.Start()
}

func (r *Repository) Stop() error {
	if !r.stopped.CompareAndSwap(false, true) {
		return nil
	}
	r.engine.Stop(!r.cfg.Daemon)
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
	if err := r.engine.Validate(expression); err != nil {
		return "", cron.ErrExpression(expression, err)
	}

	key := cron.StringKey(uuid.NewString())
	id := r.codec.Encode(key)
	if err := r.engine.Schedule(string(key), expression, withID(id, task)); err != nil {
		return "", classify(expression, err)
	}

	r.log.Info("task registered", zap.String("task_id", string(id)), zap.String("spec", expression), zap.String("task", task.Name()))
	return id, nil
}

func (r *Repository) Update(id cron.TaskID, expression string) error {
	key, err := r.codec.DecodeString(id)
	if err != nil {
		return err
	}
	if _, ok := r.engine.Entry(string(key)); !ok {
		return cron.ErrNotFound(id)
	}
	ok, err := r.engine.Reschedule(string(key), expression)
	if err != nil {
		return classify(expression, err)
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
	if !r.engine.Remove(string(key)) {
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
	_, err = r.bridges.Add(key, func() (SchedulerListener, error) {
		b := newBridge(r.codec, l, r.log)
		r.engine.AddSchedulerListener(b)
		return b, nil
	})
	return err
}

func (r *Repository) RemoveListener(l cron.Listener) error {
	key, err := cron.ListenerKey(l)
	if err != nil {
		return err
	}
	_, err = r.bridges.Remove(key, func(b SchedulerListener) error {
		r.engine.RemoveSchedulerListener(b)
		return nil
	})
	return err
}

func (r *Repository) Tasks() []cron.TaskInfo {
	entries := r.engine.Entries()
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

func classify(expression string, err error) error {
	if errors.Is(err, ErrInvalidExpression) {
		return cron.ErrExpression(expression, err)
	}
	return cron.ErrRegister(expression, err)
}

// idTask carries the task id into the execution context.
type idTask struct {
	cron.Task
	id cron.TaskID
}

func withID(id cron.TaskID, task cron.Task) cron.Task {
	return idTask{Task: task, id: id}
}

func (t idTask) Run(ctx context.Context) error {
	return t.Task.Run(cron.WithTaskID(ctx, t.id))
}

var _ cron.Adapter = (*Repository)(nil)
