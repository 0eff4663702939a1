package cron

import (
	"errors"
	"fmt"
	"sync"
)

// memAdapter is an in-memory Adapter recording what the facade sends it.
type memAdapter struct {
	codec Codec
	env   Environment

	mu        sync.Mutex
	next      int64
	tasks     map[IntKey]TaskInfo
	listeners map[string]Listener
	started   bool
	stopped   bool
	calls     int
}

func memBackend(name string, startErr error) (Backend, *[]*memAdapter) {
	opened := &[]*memAdapter{}
	var mu sync.Mutex
	return BackendFunc(name, func(env Environment) (Adapter, error) {
		if startErr != nil {
			return nil, startErr
		}
		a := &memAdapter{
			codec:     NewCodec(name),
			env:       env,
			tasks:     make(map[IntKey]TaskInfo),
			listeners: make(map[string]Listener),
		}
		mu.Lock()
		*opened = append(*opened, a)
		mu.Unlock()
		return a, nil
	}), opened
}

func (a *memAdapter) Backend() string { return a.codec.Backend() }

func (a *memAdapter) Start() error {
	a.started = true
	return nil
}

func (a *memAdapter) Stop() error {
	a.stopped = true
	return nil
}

func (a *memAdapter) Register(expression string, body Body) (TaskID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if expression == "bad" {
		return "", ErrExpression(expression, errors.New("unparsable"))
	}
	task, err := a.env.Prepare(body)
	if err != nil {
		return "", err
	}
	a.next++
	key := IntKey(a.next)
	id := a.codec.Encode(key)
	a.tasks[key] = TaskInfo{ID: id, Name: task.Name(), Expression: expression}
	return id, nil
}

func (a *memAdapter) Update(id TaskID, expression string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	key, err := a.codec.DecodeInt(id)
	if err != nil {
		return err
	}
	ti, ok := a.tasks[key]
	if !ok {
		return ErrNotFound(id)
	}
	ti.Expression = expression
	a.tasks[key] = ti
	return nil
}

func (a *memAdapter) Remove(id TaskID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	key, err := a.codec.DecodeInt(id)
	if err != nil {
		return err
	}
	if _, ok := a.tasks[key]; !ok {
		return ErrNotFound(id)
	}
	delete(a.tasks, key)
	return nil
}

func (a *memAdapter) AddListener(l Listener) error {
	key, err := ListenerKey(l)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners[key] = l
	return nil
}

func (a *memAdapter) RemoveListener(l Listener) error {
	key, err := ListenerKey(l)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.listeners, key)
	return nil
}

func (a *memAdapter) Tasks() []TaskInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]TaskInfo, 0, len(a.tasks))
	for _, ti := range a.tasks {
		out = append(out, ti)
	}
	return out
}

func (a *memAdapter) listenerCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.listeners)
}

func (a *memAdapter) fire(id TaskID) {
	a.mu.Lock()
	ls := make([]Listener, 0, len(a.listeners))
	for _, l := range a.listeners {
		ls = append(ls, l)
	}
	a.mu.Unlock()
	for _, l := range ls {
		Notifier{Listener: l}.Success(id)
	}
}

var _ Adapter = (*memAdapter)(nil)

var errBoom = fmt.Errorf("boom")
