package logging

import "sync/atomic"

var global atomic.Pointer[Logger]

func init() {
	global.Store(DefaultLogger())
}

// SetGlobal replaces the global logger.
func SetGlobal(l *Logger) {
	global.Store(l)
}

// Global returns the global logger.
func Global() *Logger {
	return global.Load()
}

// Configure sets the global logger's level and format from strings.
func Configure(level, format string) {
	l := Global()
	l.SetLevel(ParseLevel(level))
	l.SetFormat(ParseFormat(format))
}

// Package-level helpers delegating to the global logger.

func Debug(msg string)                         { Global().Debug(msg) }
func Debugf(msg string, fields map[string]any) { Global().Debugf(msg, fields) }
func Info(msg string)                          { Global().Info(msg) }
func Infof(msg string, fields map[string]any)  { Global().Infof(msg, fields) }
func Warn(msg string)                          { Global().Warn(msg) }
func Warnf(msg string, fields map[string]any)  { Global().Warnf(msg, fields) }
func Error(msg string)                         { Global().Error(msg) }
func Errorf(msg string, fields map[string]any) { Global().Errorf(msg, fields) }
