// Package log provides the shared logger behind a narrow interface so the
// backing implementation can be swapped without touching call sites.
package log

import (
	"sync"
)

// Logger is the logging surface used throughout pyjob.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsDebugEnabled() bool
}

var (
	once   sync.Once
	logger Logger
)

// Init configures the global logger. Subsequent calls are no-ops.
func Init(cfg *Config) {
	once.Do(func() {
		if err := initByConfig(cfg); err != nil {
			panic(err)
		}
	})
}

// GetLogger returns the global logger, initialising it with defaults on first
// use.
func GetLogger() Logger {
	Init(DefaultConfig())
	return logger
}

// Debug logs at debug level via the global logger.
func Debug(args ...interface{}) { GetLogger().Debug(args...) }

// Debugf logs a formatted message at debug level via the global logger.
func Debugf(format string, args ...interface{}) { GetLogger().Debugf(format, args...) }

// Info logs at info level via the global logger.
func Info(args ...interface{}) { GetLogger().Info(args...) }

// Infof logs a formatted message at info level via the global logger.
func Infof(format string, args ...interface{}) { GetLogger().Infof(format, args...) }

// Warn logs at warn level via the global logger.
func Warn(args ...interface{}) { GetLogger().Warn(args...) }

// Warnf logs a formatted message at warn level via the global logger.
func Warnf(format string, args ...interface{}) { GetLogger().Warnf(format, args...) }

// Error logs at error level via the global logger.
func Error(args ...interface{}) { GetLogger().Error(args...) }

// Errorf logs a formatted message at error level via the global logger.
func Errorf(format string, args ...interface{}) { GetLogger().Errorf(format, args...) }
