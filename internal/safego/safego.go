// Package safego wraps goroutine launches with panic recovery.
package safego

import "log/slog"

// Go runs fn on a new goroutine and turns a panic in fn into an error log
// instead of a process crash. Background jobs and the asynchronous last-used
// touch run through here; a panic in either must not take the gate down.
func Go(fn func()) {
	go func() {
		defer logRecovered()
		fn()
	}()
}

func logRecovered() {
	if r := recover(); r != nil {
		slog.Error("background goroutine panicked", "panic", r)
	}
}
