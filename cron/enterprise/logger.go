package enterprise

import (
	"fmt"

	"github.com/dailyyoga/cronkit/logger"
	"go.uber.org/zap"
)

// engineLogger implements gocron.Logger on top of logger.Logger.
type engineLogger struct {
	log logger.Logger
}

func (l engineLogger) Debug(msg string, args ...any) { l.log.Debug(msg, fields(args)...) }
func (l engineLogger) Info(msg string, args ...any)  { l.log.Debug(msg, fields(args)...) }
func (l engineLogger) Warn(msg string, args ...any)  { l.log.Warn(msg, fields(args)...) }
func (l engineLogger) Error(msg string, args ...any) { l.log.Error(msg, fields(args)...) }

func fields(args []any) []zap.Field {
	out := make([]zap.Field, 0, len(args)/2+1)
	for i := 0; i+1 < len(args); i += 2 {
		out = append(out, zap.Any(fmt.Sprint(args[i]), args[i+1]))
	}
	if len(args)%2 == 1 {
		out = append(out, zap.Any("extra", args[len(args)-1]))
	}
	return out
}
