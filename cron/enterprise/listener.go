package enterprise

import (
	"github.com/dailyyoga/cronkit/cron"
	"github.com/dailyyoga/cronkit/logger"
)

// JobListener is the job listener shape of the enterprise engine, keyed
// by job name and group.
type JobListener interface {
	Name() string
	JobToBeExecuted(key cron.CompositeKey)
	JobWasExecuted(key cron.CompositeKey, err error)
}

// ListenerManager holds the job listeners of one scheduler. The engine
// only knows per-job event callbacks, which the repository routes here.
type ListenerManager struct {
	listeners cron.BridgeRegistry[JobListener]
}

// AddJobListener registers l under l.Name(); an existing name wins.
func (m *ListenerManager) AddJobListener(l JobListener) bool {
	added, _ := m.listeners.Add(l.Name(), func() (JobListener, error) { return l, nil })
	return added
}

// RemoveJobListener removes the listener registered under name.
func (m *ListenerManager) RemoveJobListener(name string) bool {
	removed, _ := m.listeners.Remove(name, nil)
	return removed
}

// JobListeners returns the registered listeners.
func (m *ListenerManager) JobListeners() []JobListener {
	return m.listeners.Snapshot()
}

func (m *ListenerManager) jobToBeExecuted(key cron.CompositeKey) {
	for _, l := range m.listeners.Snapshot() {
		l.JobToBeExecuted(key)
	}
}

func (m *ListenerManager) jobWasExecuted(key cron.CompositeKey, err error) {
	for _, l := range m.listeners.Snapshot() {
		l.JobWasExecuted(key, err)
	}
}

// bridge is the JobListener wrapping one cron.Listener. Its name is the
// listener key, so RemoveListener finds it again.
type bridge struct {
	name   string
	codec  cron.Codec
	notify cron.Notifier
}

func newBridge(name string, codec cron.Codec, l cron.Listener, log logger.Logger) *bridge {
	return &bridge{name: name, codec: codec, notify: cron.Notifier{Listener: l, Logger: log}}
}

func (b *bridge) Name() string { return b.name }

func (b *bridge) JobToBeExecuted(key cron.CompositeKey) {
	b.notify.Start(b.codec.Encode(key))
}

func (b *bridge) JobWasExecuted(key cron.CompositeKey, err error) {
	if err != nil {
		b.notify.Failure(b.codec.Encode(key), err)
		return
	}
	b.notify.Success(b.codec.Encode(key))
}

var _ JobListener = (*bridge)(nil)
