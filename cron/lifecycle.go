package cron

import (
	"errors"
	"sync"

	"github.com/dailyyoga/cronkit/logger"
	"go.uber.org/zap"
)

// State is the lifecycle state of a Controller.
type State int32

const (
	StateNotStarted State = iota
	StateStarted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Option configures a Controller.
type Option func(*options)

type options struct {
	logger      logger.Logger
	native      any
	executor    Executor
	resolver    Resolver
	middlewares []Middleware
}

// WithLogger sets the logger handed to the backend and the default middlewares.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithNativeEngine makes the backend adopt engine as-is. Startup
// properties are then ignored.
func WithNativeEngine(engine any) Option {
	return func(o *options) { o.native = engine }
}

// WithExecutor runs firings on e instead of the engine's own goroutines,
// where the backend supports it.
func WithExecutor(e Executor) Option {
	return func(o *options) { o.executor = e }
}

// WithResolver sets the resolver for MethodReference bodies.
func WithResolver(r Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithMiddlewares appends mws after the default recovery and logging middlewares.
func WithMiddlewares(mws ...Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mws...) }
}

// Controller owns exactly one Adapter through NotStarted -> Started -> Stopped.
// A stopped controller cannot be restarted.
type Controller struct {
	backend Backend
	rawOpts []Option
	opts    options

	mu      sync.RWMutex
	state   State
	adapter Adapter
}

// NewController returns a controller for backend in state NotStarted.
func NewController(backend Backend, opts ...Option) *Controller {
	c := &Controller{backend: backend, rawOpts: opts}
	for _, opt := range opts {
		opt(&c.opts)
	}
	c.opts.logger = logger.OrNop(c.opts.logger)
	return c
}

// Backend returns the backend name.
func (c *Controller) Backend() string {
	return c.backend.Name()
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Start opens and starts the engine. A native engine given through
// WithNativeEngine is used as-is; otherwise props are overlaid on the
// backend defaults. On failure the controller stays NotStarted.
func (c *Controller) Start(props Properties) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateStarted:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrControllerStopped
	}

	env := c.environment(props)
	adapter, err := c.backend.Open(env)
	if err != nil {
		return asStartError(c.backend.Name(), err)
	}
	if err := adapter.Start(); err != nil {
		_ = adapter.Stop()
		return asStartError(c.backend.Name(), err)
	}

	c.adapter = adapter
	c.state = StateStarted
	c.opts.logger.Info("cron engine started",
		zap.String("backend", c.backend.Name()),
		zap.Bool("native", c.opts.native != nil),
	)
	return nil
}

// Stop stops the engine. It is a no-op unless the controller is started.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateStarted {
		return nil
	}
	c.state = StateStopped
	adapter := c.adapter
	c.adapter = nil

	if err := adapter.Stop(); err != nil {
		c.opts.logger.Error("cron engine stopped with error", zap.String("backend", c.backend.Name()), zap.Error(err))
		return err
	}
	c.opts.logger.Info("cron engine stopped", zap.String("backend", c.backend.Name()))
	return nil
}

// Adapter returns the active adapter, or ErrEngineNotStarted.
func (c *Controller) Adapter() (Adapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateStarted {
		return nil, ErrEngineNotStarted
	}
	return c.adapter, nil
}

// fresh returns a new NotStarted controller with the same backend and options.
func (c *Controller) fresh() *Controller {
	return NewController(c.backend, c.rawOpts...)
}

func (c *Controller) environment(props Properties) Environment {
	env := Environment{
		Properties:  props,
		Native:      c.opts.native,
		Executor:    c.opts.executor,
		Resolver:    c.opts.resolver,
		Middlewares: append(DefaultMiddlewares(c.opts.logger), c.opts.middlewares...),
		Logger:      c.opts.logger,
	}
	if env.Native != nil {
		env.Properties = nil
	}
	return env
}

func asStartError(backend string, err error) error {
	if errors.Is(err, ErrEngineStart) {
		return err
	}
	return ErrStart(backend, err)
}
