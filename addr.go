package chunked

import "unsafe"

// slotAddr gives trackableSlot a total order for lock-two-at-once
// primitives (lockTwoSlots; chunkAddr does the same for lockTwoMaintenance): two locks are always taken in
// ascending address order so that two concurrent two-lock operations never
// deadlock against each other.
func slotAddr[T any](s *trackableSlot[T]) uintptr {
	return uintptr(unsafe.Pointer(s))
}

func chunkAddr[T any](c *chunk[T]) uintptr {
	return uintptr(unsafe.Pointer(c))
}
