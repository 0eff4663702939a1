package crontab

import (
	"fmt"

	"github.com/dailyyoga/cronkit/logger"
	"go.uber.org/zap"
)

// engineLogger routes the engine's own logging to a logger.Logger.
type engineLogger struct {
	log logger.Logger
}

func (l engineLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("crontab engine: "+msg, fields(keysAndValues)...)
}

func (l engineLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("crontab engine: "+msg, append(fields(keysAndValues), zap.Error(err))...)
}

func fields(keysAndValues []any) []zap.Field {
	out := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out = append(out, zap.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return out
}
