// Package telemetry provides the structured logging and metrics shared by
// every capture pipeline component.
package telemetry

import (
	"os"

	"github.com/charmbracelet/log"
)

// Logger wraps charmbracelet/log with the terse, emoji-free field style
// this module uses everywhere: operational events carry key/value pairs
// instead of interpolated strings, so overflow, fallback, and permission
// events stay filterable in production.
type Logger struct {
	l *log.Logger
}

// New builds a Logger writing to stderr at the given level ("debug",
// "info", "warn", "error"). An empty level defaults to "info".
func New(level string) *Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})
	l.SetLevel(parseLevel(level))
	return &Logger{l: l}
}

func parseLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

func (lg *Logger) Debug(msg string, kv ...interface{}) { lg.l.Debug(msg, kv...) }
func (lg *Logger) Info(msg string, kv ...interface{})  { lg.l.Info(msg, kv...) }
func (lg *Logger) Warn(msg string, kv ...interface{})  { lg.l.Warn(msg, kv...) }
func (lg *Logger) Error(msg string, kv ...interface{}) { lg.l.Error(msg, kv...) }

// With returns a Logger that prefixes every subsequent line with the given
// key/value pairs, e.g. log.With("source", "mic").
func (lg *Logger) With(kv ...interface{}) *Logger {
	return &Logger{l: lg.l.With(kv...)}
}
