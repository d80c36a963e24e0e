// Package groutine starts named goroutines. The name shows up as a pprof
// label, which makes the long-lived watchers (disconnect monitors, deferred
// transport teardown) identifiable in goroutine dumps.
package groutine

import (
	"context"
	"runtime/pprof"
)

// Go runs fn on a new goroutine labeled with name.
func Go(name string, fn func()) {
	labels := pprof.Labels("goroutine_name", name)
	go pprof.Do(context.Background(), labels, func(context.Context) {
		fn()
	})
}
