package cron

import (
	"fmt"
	"reflect"

	"github.com/dailyyoga/cronkit/logger"
	"go.uber.org/zap"
)

// Listener receives execution notifications for every task of a repository.
// One Listener may observe many tasks; the id tells them apart.
type Listener interface {
	OnStart(id TaskID)
	OnSuccess(id TaskID)
	OnFailure(id TaskID, err error)
}

// NamedListener lets a Listener choose the key its bridge is registered
// under. Listeners with equal names are the same listener to a repository.
type NamedListener interface {
	Listener
	ListenerName() string
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
// Use it by pointer: the pointer is the listener's identity.
type ListenerFuncs struct {
	Start   func(id TaskID)
	Success func(id TaskID)
	Failure func(id TaskID, err error)
}

func (l *ListenerFuncs) OnStart(id TaskID) {
	if l.Start != nil {
		l.Start(id)
	}
}

func (l *ListenerFuncs) OnSuccess(id TaskID) {
	if l.Success != nil {
		l.Success(id)
	}
}

func (l *ListenerFuncs) OnFailure(id TaskID, err error) {
	if l.Failure != nil {
		l.Failure(id, err)
	}
}

// ListenerKey derives the stable key a listener's bridge is stored under:
// the name of a NamedListener, the address of a pointer-like listener, or
// the value of a comparable one.
func ListenerKey(l Listener) (string, error) {
	if l == nil {
		return "", ErrPreconditionf("listener is nil")
	}
	if n, ok := l.(NamedListener); ok {
		if name := n.ListenerName(); name != "" {
			return "name:" + name, nil
		}
	}
	v := reflect.ValueOf(l)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return fmt.Sprintf("ptr:%s@%#x", v.Type(), v.Pointer()), nil
	}
	if v.Type().Comparable() {
		return fmt.Sprintf("val:%s:%v", v.Type(), l), nil
	}
	return "", ErrPreconditionf("listener %T has no stable identity", l)
}

// Notifier delivers notifications to one Listener, isolating the engine
// from listener panics.
type Notifier struct {
	Listener Listener
	Logger   logger.Logger
}

func (n Notifier) Start(id TaskID) {
	n.guard(id, "start", func() { n.Listener.OnStart(id) })
}

func (n Notifier) Success(id TaskID) {
	n.guard(id, "success", func() { n.Listener.OnSuccess(id) })
}

func (n Notifier) Failure(id TaskID, err error) {
	n.guard(id, "failure", func() { n.Listener.OnFailure(id, err) })
}

func (n Notifier) guard(id TaskID, event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.OrNop(n.Logger).Error("listener panicked",
				zap.String("task_id", string(id)),
				zap.String("event", event),
				zap.String("listener", fmt.Sprintf("%T", n.Listener)),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}
