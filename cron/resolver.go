package cron

import (
	"context"
	"reflect"
	"sync"
)

// Resolver turns a MethodReference into a runnable Task.
type Resolver interface {
	Resolve(typeName, methodName string) (Task, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(typeName, methodName string) (Task, error)

func (f ResolverFunc) Resolve(typeName, methodName string) (Task, error) {
	return f(typeName, methodName)
}

// MethodRegistry resolves method references against registered receivers
// by reflection. Methods must have one of the shapes func(),
// func() error or func(context.Context) error.
type MethodRegistry struct {
	mu        sync.RWMutex
	receivers map[string]reflect.Value
}

// NewMethodRegistry returns an empty registry.
func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{receivers: make(map[string]reflect.Value)}
}

// Register exposes the methods of receiver under typeName.
func (r *MethodRegistry) Register(typeName string, receiver any) error {
	if typeName == "" || receiver == nil {
		return ErrPreconditionf("method registry needs a type name and a receiver")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receivers[typeName] = reflect.ValueOf(receiver)
	return nil
}

// Resolve implements Resolver.
func (r *MethodRegistry) Resolve(typeName, methodName string) (Task, error) {
	r.mu.RLock()
	recv, ok := r.receivers[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnresolved(typeName, methodName)
	}
	m := recv.MethodByName(methodName)
	if !m.IsValid() {
		return nil, ErrUnresolved(typeName, methodName)
	}

	name := typeName + "." + methodName
	switch fn := m.Interface().(type) {
	case func():
		return TaskFunc(name, func(context.Context) error { fn(); return nil }), nil
	case func() error:
		return TaskFunc(name, func(context.Context) error { return fn() }), nil
	case func(context.Context) error:
		return TaskFunc(name, fn), nil
	}
	return nil, ErrPreconditionf("method %s has unsupported signature %s", name, m.Type())
}
