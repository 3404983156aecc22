// Package monitoring holds the process-wide diagnostic logger hook.
// Hot-path packages log through Logf so tests can mute or capture output
// without touching the standard logger's global state.
package monitoring

import "log"

// Logf is the diagnostic logger. It defaults to log.Printf.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger, which is the usual choice in tests.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
