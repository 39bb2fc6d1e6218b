// Package monitoring holds the replaceable diagnostic logger shared by the
// engine and the service layers.
package monitoring

import (
	"log"
	"sync"
)

var mu sync.RWMutex

var logf = log.Printf

// Logf writes a diagnostic line through the current logger. It defaults to
// log.Printf.
func Logf(format string, v ...interface{}) {
	mu.RLock()
	f := logf
	mu.RUnlock()
	f(format, v...)
}

// SetLogger replaces the package logger and returns the previous one.
// Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) func(format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	prev := logf
	if f == nil {
		logf = func(string, ...interface{}) {}
	} else {
		logf = f
	}
	return prev
}
