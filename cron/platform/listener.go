package platform

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

func (b *bridge) BeforeExecute(id string) {
	b.notify.Start(b.codec.Encode(cron.StringKey(id)))
}

func (b *bridge) AfterExecute(id string, err error) {
	tid := b.codec.Encode(cron.StringKey(id))
	if err != nil {
		b.notify.Failure(tid, err)
		return
	}
	b.notify.Success(tid)
}

var _ ExecutionObserver = (*bridge)(nil)
