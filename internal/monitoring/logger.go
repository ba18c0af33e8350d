// Package monitoring holds the pipeline's shared diagnostic logger. Decoder
// drops, skipped packets, and fusion warnings all route through Logf so a
// host process (or a test) can redirect or silence them in one place.
package monitoring

import "log"

// Logf emits one diagnostic line. It defaults to log.Printf; replace it via
// SetLogger to capture strap and fusion diagnostics elsewhere.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil mutes all diagnostics.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
