package logger

import "sync/atomic"

// std is the process-wide logger installed by Init. Components that
// are not handed a Logger explicitly log through the package-level
// functions, which are no-ops until Init succeeds.
var std atomic.Pointer[Logger]

// Init installs the process-wide logger.
func Init(level Level, dir, suffix string, queueCap int) error {
	l, err := New(level, dir, suffix, queueCap)
	if err != nil {
		return err
	}
	std.Store(l)
	return nil
}

// Default returns the installed logger, or nil before Init.
func Default() *Logger { return std.Load() }

// CloseDefault drains and closes the installed logger.
func CloseDefault() {
	if l := std.Swap(nil); l != nil {
		l.Close()
	}
}

func Debugf(format string, args ...interface{}) {
	if l := std.Load(); l != nil {
		l.Debugf(format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	if l := std.Load(); l != nil {
		l.Infof(format, args...)
	}
}

func Warnf(format string, args ...interface{}) {
	if l := std.Load(); l != nil {
		l.Warnf(format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if l := std.Load(); l != nil {
		l.Errorf(format, args...)
	}
}
