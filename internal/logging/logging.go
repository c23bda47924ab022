// Package logging implements the scan engine's hierarchical logger
// collaborator: every scan operation takes an optional parent log node
// and returns a child node, and logging never affects scan semantics.
//
// standardbeagle/lci hand-rolls a process-global debug writer in
// internal/debug; that shape doesn't carry parent/child structure, so the
// hierarchy itself is grounded on go.uber.org/zap's native With()-chaining
// (a direct corpus dependency of LaptevIvan-Go_ITMO), which is exactly a
// child-logger-returns-child-logger API.
package logging

import (
	"go.uber.org/zap"
)

// Logger is the scan engine's hierarchical logger collaborator.
type Logger interface {
	Child(name string) Logger
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// zapLogger implements Logger on top of a zap.SugaredLogger, using With()
// to derive child nodes that carry their ancestor chain as a "scope" field.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// New builds a root Logger backed by a production zap configuration typical
// of the corpus's structured loggers. Falls back to a no-op core if zap
// construction fails (should not happen with the default config).
func New() Logger {
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	z, err := cfg.Build()
	if err != nil {
		z = zap.NewNop()
	}
	return &zapLogger{sugar: z.Sugar()}
}

// NewNop returns a Logger that discards everything, for tests that don't
// care about log output but need a non-nil collaborator.
func NewNop() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}

func (l *zapLogger) Child(name string) Logger {
	return &zapLogger{sugar: l.sugar.With("scope", name)}
}

func (l *zapLogger) Debugf(format string, args ...any) {
	l.sugar.Debugf(format, args...)
}

func (l *zapLogger) Warnf(format string, args ...any) {
	l.sugar.Warnf(format, args...)
}

func (l *zapLogger) Errorf(format string, args ...any) {
	l.sugar.Errorf(format, args...)
}
