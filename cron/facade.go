package cron

import (
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Facade is the public surface over the active Adapter. It checks argument
// preconditions, failing with ErrPrecondition before the adapter is reached,
// and otherwise dispatches unchanged.
type Facade struct {
	current atomic.Pointer[Controller]

	// mu serializes Reload against listener changes
	mu        sync.Mutex
	listeners map[string]Listener
}

// NewFacade returns a facade dispatching to c.
func NewFacade(c *Controller) *Facade {
	f := &Facade{listeners: make(map[string]Listener)}
	f.current.Store(c)
	return f
}

// Controller returns the controller currently served.
func (f *Facade) Controller() *Controller {
	return f.current.Load()
}

func (f *Facade) adapter() (Adapter, error) {
	return f.current.Load().Adapter()
}

// Register schedules body on expression.
func (f *Facade) Register(expression string, body Body) (TaskID, error) {
	if err := checkExpression(expression); err != nil {
		return "", err
	}
	if err := checkBody(body); err != nil {
		return "", err
	}
	a, err := f.adapter()
	if err != nil {
		return "", err
	}
	return a.Register(expression, body)
}

// RegisterTask is Register for a CronTask.
func (f *Facade) RegisterTask(t CronTask) (TaskID, error) {
	return f.Register(t.Expression, t.Body)
}

// Update replaces the expression of id.
func (f *Facade) Update(id TaskID, expression string) error {
	if id == "" {
		return ErrPreconditionf("task id is empty")
	}
	if err := checkExpression(expression); err != nil {
		return err
	}
	a, err := f.adapter()
	if err != nil {
		return err
	}
	return a.Update(id, expression)
}

// Remove unregisters id. A second Remove fails with ErrTaskNotFound.
func (f *Facade) Remove(id TaskID) error {
	if id == "" {
		return ErrPreconditionf("task id is empty")
	}
	a, err := f.adapter()
	if err != nil {
		return err
	}
	return a.Remove(id)
}

// AddListener registers l with the active adapter. Listeners added here
// survive Reload.
func (f *Facade) AddListener(l Listener) error {
	key, err := ListenerKey(l)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	a, err := f.adapter()
	if err != nil {
		return err
	}
	if err := a.AddListener(l); err != nil {
		return err
	}
	f.listeners[key] = l
	return nil
}

// AddListeners adds every listener, stopping at the first failure.
func (f *Facade) AddListeners(ls ...Listener) error {
	for _, l := range ls {
		if err := f.AddListener(l); err != nil {
			return err
		}
	}
	return nil
}

// RemoveListener removes l. Removing an unknown listener is a no-op.
func (f *Facade) RemoveListener(l Listener) error {
	key, err := ListenerKey(l)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	a, err := f.adapter()
	if err != nil {
		return err
	}
	if err := a.RemoveListener(l); err != nil {
		return err
	}
	delete(f.listeners, key)
	return nil
}

// Tasks lists the tasks of the active adapter.
func (f *Facade) Tasks() ([]TaskInfo, error) {
	a, err := f.adapter()
	if err != nil {
		return nil, err
	}
	return a.Tasks(), nil
}

// Stop stops the active controller.
func (f *Facade) Stop() error {
	return f.current.Load().Stop()
}

// Reload starts a fresh controller on the same backend with props, swaps it
// in, re-attaches the listeners added through the facade and stops the old
// one. Tasks are not carried over. Controllers adopting a native engine
// cannot be reloaded, and a stopped controller stays stopped.
func (f *Facade) Reload(props Properties) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	old := f.current.Load()
	if old.State() == StateStopped {
		return ErrControllerStopped
	}
	if old.opts.native != nil {
		return ErrPreconditionf("controller for %s adopts a native engine and cannot be reloaded", old.Backend())
	}
	next := old.fresh()
	if err := next.Start(props); err != nil {
		return err
	}
	a, _ := next.Adapter()
	for key, l := range f.listeners {
		if err := a.AddListener(l); err != nil {
			_ = next.Stop()
			return ErrListener("reattach "+key, err)
		}
	}

	f.current.Store(next)
	old.opts.logger.Info("cron engine reloaded",
		zap.String("backend", next.Backend()),
		zap.Int("listeners", len(f.listeners)),
	)
	return old.Stop()
}

func checkExpression(expression string) error {
	if strings.TrimSpace(expression) == "" {
		return ErrPreconditionf("cron expression is empty")
	}
	return nil
}

func checkBody(body Body) error {
	switch b := body.(type) {
	case nil:
		return ErrPreconditionf("task body is nil")
	case Direct:
		if b.Task == nil {
			return ErrPreconditionf("direct body has no task")
		}
	case MethodReference:
		if b.TypeName == "" || b.MethodName == "" {
			return ErrPreconditionf("method reference needs type and method names")
		}
	}
	return nil
}
