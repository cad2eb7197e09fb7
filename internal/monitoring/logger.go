package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf and
// can be swapped out with SetLogger, which tests use to capture or mute output.
var Logf func(format string, v ...interface{}) = log.Printf

// Debugf carries high-volume trace output (per-chunk serial reads and the
// like). It is a no-op unless enabled with SetDebug.
var Debugf func(format string, v ...interface{}) = nop

func nop(string, ...interface{}) {}

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = nop
		return
	}
	Logf = f
}

// SetDebug routes Debugf through the package logger when enabled, and back to
// a no-op when disabled.
func SetDebug(enabled bool) {
	if enabled {
		Debugf = func(format string, v ...interface{}) { Logf(format, v...) }
		return
	}
	Debugf = nop
}
