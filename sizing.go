package chunked

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLineSize is used to pad chunk against false sharing on its
// size/deletedCount counters.
const CacheLineSize = unsafe.Sizeof(cpu.CacheLinePad{})

// minChunkCapacity is the floor defaultCapacity computes down to when no
// WithCapacity option is given; it does not clamp an explicit WithCapacity,
// which is honored exactly (see options.go).
const minChunkCapacity = 32

// defaultChunkPayloadBytes targets roughly a 2 KiB payload area per chunk
// by default — large enough to amortize per-chunk overhead, small enough
// that a chunk still fits comfortably within a couple of virtual memory
// pages alongside its metadata.
const defaultChunkPayloadBytes = 2048

// defaultCapacity computes the default chunk capacity for element type T:
// at least minChunkCapacity, otherwise enough slots to fill roughly
// defaultChunkPayloadBytes of payload. A runtime function rather than a
// package-level constant since T's size is only known at New[T] call time,
// through a type parameter.
func defaultCapacity[T any]() int {
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	if elemSize == 0 {
		// zero-size T (e.g. struct{}): cap at a large-but-bounded default
		// rather than dividing by zero.
		return defaultChunkPayloadBytes
	}
	n := defaultChunkPayloadBytes / elemSize
	if n < minChunkCapacity {
		n = minChunkCapacity
	}
	return n
}
