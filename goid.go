package chunked

import "github.com/petermattis/goid"

// currentGoroutineID returns an opaque per-goroutine identifier, used only
// by ownershipLock to key its recursive-exclusive-lock depth map. Go has no
// thread-local storage; goid is the standard ecosystem substitute for a
// per-goroutine counter.
func currentGoroutineID() int64 {
	return goid.Get()
}
