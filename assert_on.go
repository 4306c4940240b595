//go:build chunked_debug

package chunked

// debugAssert panics when cond is false. Built with -tags chunked_debug:
// programming-error invariants are checked in debug builds and compiled
// away entirely in release builds.
func debugAssert(cond bool, msg string) {
	if !cond {
		panic("chunked: assertion failed: " + msg)
	}
}
