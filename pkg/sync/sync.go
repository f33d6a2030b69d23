// Package sync provides synchronization primitives for the sentry.
//
// The types are the standard library's; sentry code imports this package
// instead so that lock types and scheduler hooks have a single home.
package sync

import (
	"runtime"
	"sync"
)

// Aliases for the standard library types.
type (
	Mutex     = sync.Mutex
	RWMutex   = sync.RWMutex
	Once      = sync.Once
	WaitGroup = sync.WaitGroup
	Cond      = sync.Cond
)

// Goyield yields the processor to other goroutines, as a cooperative
// scheduling point. The caller remains runnable.
func Goyield() {
	runtime.Gosched()
}
