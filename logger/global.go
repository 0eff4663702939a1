package logger

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// global backs the package-level helpers. It is built lazily from
// DefaultConfig unless New or SetGlobalLogger ran first.
var (
	global      atomic.Pointer[zap.Logger]
	defaultOnce sync.Once
)

func setGlobal(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	global.Store(l)
}

func current() *zap.Logger {
	if l := global.Load(); l != nil {
		return l
	}
	defaultOnce.Do(func() {
		l, err := buildZap(DefaultConfig(), zapcore.InfoLevel, false, zap.AddCallerSkip(1))
		if err != nil {
			l = zap.NewNop()
		}
		global.CompareAndSwap(nil, l)
	})
	return global.Load()
}

// SetGlobalLogger replaces the logger behind the package-level helpers.
// Build l with zap.AddCallerSkip(1) to keep caller locations pointing at
// the helper's caller. nil installs a no-op logger.
func SetGlobalLogger(l *zap.Logger) {
	setGlobal(l)
}

// GetGlobalLogger returns the logger behind the package-level helpers.
func GetGlobalLogger() *zap.Logger {
	return current()
}

func Debug(msg string, fields ...zap.Field) { current().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { current().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { current().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { current().Error(msg, fields...) }

// Sync flushes the global logger.
func Sync() error {
	return current().Sync()
}
