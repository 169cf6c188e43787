/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logging

// Level defines all available log levels for log messages.
type Level int

// Log levels.
const (
	CRITICAL Level = iota
	ERROR
	WARNING
	INFO
	DEBUG
)

var levelNames = map[string]Level{
	"CRITICAL": CRITICAL,
	"ERROR":    ERROR,
	"WARNING":  WARNING,
	"INFO":     INFO,
	"DEBUG":    DEBUG,
}

// Leveler allows log output for a module to be filtered
type Leveler interface {
	SetLevel(module string, level Level)
	GetLevel(module string) Level
	IsEnabledFor(module string, level Level) bool
}

// ModuleLogger is the logging interface implemented by providers
type ModuleLogger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
}

// LoggerProvider is a factory for module loggers
type LoggerProvider interface {
	GetLogger(module string) ModuleLogger
}
