//go:build !chunked_debug

package chunked

// debugAssert is a no-op in release builds.
func debugAssert(cond bool, msg string) {}
