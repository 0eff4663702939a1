package minimal

import (
	"github.com/dailyyoga/cronkit/cron"
	"github.com/dailyyoga/cronkit/logger"
)

type bridge struct {
	codec  cron.Codec
	notify cron.Notifier
}

func newBridge(codec cron.Codec, l cron.Listener, log logger.Logger) *bridge {
	return &bridge{codec: codec, notify: cron.Notifier{Listener: l, Logger: log}}
}

func (b *bridge) id(id string) cron.TaskID {
	return b.codec.Encode(cron.StringKey(id))
}

func (b *bridge) TaskLaunching(id string) { b.notify.Start(b.id(id)) }

func (b *bridge) TaskSucceeded(id string) { b.notify.Success(b.id(id)) }

func (b *bridge) TaskFailed(id string, err error) { b.notify.Failure(b.id(id), err) }

var _ SchedulerListener = (*bridge)(nil)
