// Package logging builds the zap loggers used across timelined.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production-encoded logger writing to stderr. Debug enables
// debug-level output.
func New(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// Nop returns a no-op logger for tests and optional dependencies.
func Nop() *zap.Logger { return zap.NewNop() }
