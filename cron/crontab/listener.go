package crontab

import (
	"github.com/dailyyoga/cronkit/cron"
	"github.com/dailyyoga/cronkit/logger"
	cronlib "github.com/robfig/cron/v3"
)

// TaskListener is the listener shape of the crontab engine. The entry is
// the id the task was first scheduled under.
type TaskListener interface {
	OnLaunch(entry cronlib.EntryID)
	OnSucceeded(entry cronlib.EntryID)
	OnFailed(entry cronlib.EntryID, err error)
}

// bridge translates TaskListener callbacks to a cron.Listener.
type bridge struct {
	codec  cron.Codec
	notify cron.Notifier
}

func newBridge(codec cron.Codec, l cron.Listener, log logger.Logger) *bridge {
	return &bridge{codec: codec, notify: cron.Notifier{Listener: l, Logger: log}}
}

func (b *bridge) id(entry cronlib.EntryID) cron.TaskID {
	return b.codec.Encode(cron.IntKey(entry))
}

func (b *bridge) OnLaunch(entry cronlib.EntryID) {
	b.notify.Start(b.id(entry))
}

func (b *bridge) OnSucceeded(entry cronlib.EntryID) {
	b.notify.Success(b.id(entry))
}

func (b *bridge) OnFailed(entry cronlib.EntryID, err error) {
	b.notify.Failure(b.id(entry), err)
}

var _ TaskListener = (*bridge)(nil)
