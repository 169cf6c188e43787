/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package logging enables setting custom logger implementation.
//
//  Basic Flow:
//  1) Initialize logger
//  2) Create new logger for specific module
//  3) Call log info
package logging

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Logger basic implementation of the ModuleLogger interface, scoped to a module
type Logger struct {
	instance ModuleLogger // access only via Logger.logger()
	module   string
	once     sync.Once
}

// logger provider singleton - access only via loggerProvider()
var loggerProviderInstance LoggerProvider
var loggerProviderOnce sync.Once

const loggerModule = "gateway/common"

// NewLogger creates and returns a Logger object based on the module name.
func NewLogger(module string) *Logger {
	// note: the underlying logger instance is lazy initialized on first use
	return &Logger{module: module}
}

func loggerProvider() LoggerProvider {
	loggerProviderOnce.Do(func() {
		// A custom logger must be initialized prior to the first log output
		// Otherwise the built-in zap-backed logger is used
		loggerProviderInstance = newZapProvider()
		loggerProviderInstance.GetLogger(loggerModule).Debug(
			"Default logger initialized (please call logging.Initialize if you wish to use a custom logger)")
	})
	return loggerProviderInstance
}

// Initialize sets a new logger provider which takes over logging operations.
// It is required to call this function before making any loggings for the
// provider to take effect.
func Initialize(l LoggerProvider) {
	loggerProviderOnce.Do(func() {
		loggerProviderInstance = l
		loggerProviderInstance.GetLogger(loggerModule).Debug("Logger provider initialized")
	})
}

// SetLevel - setting log level for given module
func SetLevel(module string, level Level) {
	moduleLevels.SetLevel(module, level)
}

// GetLevel - getting log level for given module
func GetLevel(module string) Level {
	return moduleLevels.GetLevel(module)
}

// IsEnabledFor - Check if given log level is enabled for given module
func IsEnabledFor(module string, level Level) bool {
	return moduleLevels.IsEnabledFor(module, level)
}

// LogLevel returns the log level from a string representation.
func LogLevel(level string) (Level, error) {
	l, ok := levelNames[strings.ToUpper(level)]
	if !ok {
		return ERROR, errors.Errorf("invalid log level: %s", level)
	}
	return l, nil
}

func (l *Logger) logger() ModuleLogger {
	l.once.Do(func() {
		l.instance = loggerProvider().GetLogger(l.module)
	})
	return l.instance
}

// Debugf calls Debugf function of underlying logger
func (l *Logger) Debugf(format string, args ...interface{}) {
	if !IsEnabledFor(l.module, DEBUG) {
		return
	}
	l.logger().Debugf(format, args...)
}

// Infof calls Infof function of underlying logger
func (l *Logger) Infof(format string, args ...interface{}) {
	if !IsEnabledFor(l.module, INFO) {
		return
	}
	l.logger().Infof(format, args...)
}

// Warnf calls Warnf function of underlying logger
func (l *Logger) Warnf(format string, args ...interface{}) {
	if !IsEnabledFor(l.module, WARNING) {
		return
	}
	l.logger().Warnf(format, args...)
}

// Errorf calls Errorf function of underlying logger
func (l *Logger) Errorf(format string, args ...interface{}) {
	if !IsEnabledFor(l.module, ERROR) {
		return
	}
	l.logger().Errorf(format, args...)
}

// Debug calls Debug function of underlying logger
func (l *Logger) Debug(args ...interface{}) {
	if !IsEnabledFor(l.module, DEBUG) {
		return
	}
	l.logger().Debug(args...)
}

// Info calls Info function of underlying logger
func (l *Logger) Info(args ...interface{}) {
	if !IsEnabledFor(l.module, INFO) {
		return
	}
	l.logger().Info(args...)
}

// Warn calls Warn function of underlying logger
func (l *Logger) Warn(args ...interface{}) {
	if !IsEnabledFor(l.module, WARNING) {
		return
	}
	l.logger().Warn(args...)
}

// Error calls Error function of underlying logger
func (l *Logger) Error(args ...interface{}) {
	if !IsEnabledFor(l.module, ERROR) {
		return
	}
	l.logger().Error(args...)
}

// moduleLeveled tracks the configured log level per module
type moduleLeveled struct {
	sync.RWMutex
	levels map[string]Level
}

var moduleLevels = &moduleLeveled{levels: make(map[string]Level)}

// SetLevel sets the log level for the given module
func (l *moduleLeveled) SetLevel(module string, level Level) {
	l.Lock()
	defer l.Unlock()
	l.levels[module] = level
}

// GetLevel returns the log level for the given module, defaulting to INFO
func (l *moduleLeveled) GetLevel(module string) Level {
	l.RLock()
	defer l.RUnlock()
	level, exists := l.levels[module]
	if !exists {
		level, exists = l.levels[""]
		if !exists {
			level = INFO
		}
	}
	return level
}

// IsEnabledFor will return true if logging is enabled for the given module at the given level
func (l *moduleLeveled) IsEnabledFor(module string, level Level) bool {
	return level <= l.GetLevel(module)
}
