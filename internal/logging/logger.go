// Package logging wraps zap construction so every component logs the same way.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production logger at the given level ("debug", "info", ...).
func New(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.DisableStacktrace = true

	return config.Build()
}

// Nop returns a logger that discards everything. Used by tests and as the
// fallback when a caller passes nil.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// OrNop returns log unchanged, or a no-op logger when log is nil.
func OrNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
