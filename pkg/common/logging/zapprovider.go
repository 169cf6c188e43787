/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapProvider is the built-in LoggerProvider backed by zap. Level filtering is
// performed by the logging facade per module, so the underlying zap logger is
// configured wide open at debug.
type zapProvider struct {
	base *zap.SugaredLogger
}

func newZapProvider() LoggerProvider {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	cfg.DisableStacktrace = true
	logger, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		// zap.NewProductionConfig is a fixed config; Build only fails on
		// invalid output paths, which the default config does not have
		panic(err)
	}
	return &zapProvider{base: logger.Sugar()}
}

// GetLogger returns a named zap logger for the module
func (p *zapProvider) GetLogger(module string) ModuleLogger {
	return p.base.Named(module)
}
