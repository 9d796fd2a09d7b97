// Package log wraps a package-level zap.Logger behind a small leveled
// surface the rest of coolerctld calls into, backed by zap since this
// daemon has no TTY to style output for.
package log

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger = zap.NewNop()
)

// Level is one of the supported --log-level values.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Init configures the package-level logger. In debug mode output is a
// human-readable console encoding; otherwise it's JSON, suitable for
// journald/syslog capture.
func Init(level Level, debug bool) error {
	var zlevel zapcore.Level
	switch level {
	case LevelDebug:
		zlevel = zapcore.DebugLevel
	case LevelWarn:
		zlevel = zapcore.WarnLevel
	case LevelError:
		zlevel = zapcore.ErrorLevel
	default:
		zlevel = zapcore.InfoLevel
	}

	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zlevel)

	l, err := cfg.Build(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, newRingCore(zap.NewAtomicLevelAt(zlevel)))
	}))
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// With returns a child logger carrying the given structured fields,
// conventionally used per-component: log.With("component", "hwmon").
func With(keysAndValues ...interface{}) *zap.SugaredLogger {
	return current().Sugar().With(keysAndValues...)
}

func Debug(format string, a ...interface{}) {
	current().Sugar().Debugf(format, a...)
}

func Info(format string, a ...interface{}) {
	current().Sugar().Infof(format, a...)
}

func Warn(format string, a ...interface{}) {
	current().Sugar().Warnf(format, a...)
}

func Error(format string, a ...interface{}) {
	current().Sugar().Errorf(format, a...)
}

// Fatal logs at error level and exits the process, mirroring the
// teacher's ui.Fatal used for unrecoverable config/startup failures.
func Fatal(format string, a ...interface{}) {
	current().Sugar().Errorf(format, a...)
	_ = current().Sync()
	os.Exit(1)
}

// Sync flushes any buffered log entries, called during shutdown.
func Sync() {
	_ = current().Sync()
}
