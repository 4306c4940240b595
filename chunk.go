package chunked

import (
	"sync/atomic"
	"unsafe"
)

// chunk is the storage unit: a fixed-capacity (per container) run of slots,
// a parallel aliveness array, prev/next chain links, the two per-chunk
// locks, and the per-slot trackable-handle registry.
//
// slots/aliveness/trackables are slices sized at construction time
// (capacity is a runtime value, computed once per Container[T] by
// sizing.go). next/prev are atomic.Pointer[chunk[T]]: Go's GC gives chunks
// reference-counted lifetime for free, so there is no cyclic-ownership
// hazard to work around and no refcount-driven teardown path — see
// DESIGN.md.
type chunk[T any] struct {
	// hot counters, padded against false sharing from neighboring fields.
	size         atomic.Int64
	deletedCount atomic.Int64
	_            [chunkHotPad]byte

	capacity int

	slots      []T
	aliveness  []atomic.Bool
	trackables []trackableSlot[T]

	next atomic.Pointer[chunk[T]]
	prev atomic.Pointer[chunk[T]]

	isFirst atomic.Bool

	// in_free_list / next_free / prev_free are read/written only under the
	// chunk's own maintenance lock (in_free_list) or the free-chunk
	// registry's lock (next_free/prev_free); see freelist.go.
	inFreeList bool
	nextFree   *chunk[T]
	prevFree   *chunk[T]

	ownership   ownershipLock
	maintenance spinLock

	self *selfRef[T]

	// copied from the owning Container's options at construction time: see
	// sizing.go/options.go. checkAliveness selects whether Handle.Lock
	// reports a handle into an erased-but-not-yet-reclaimed slot as dead.
	immediateErase bool
	checkAliveness bool
}

type chunkHotCounters struct {
	size         atomic.Int64
	deletedCount atomic.Int64
}

const chunkHotPad = (CacheLineSize - unsafe.Sizeof(chunkHotCounters{})%CacheLineSize) % CacheLineSize

func newChunk[T any](capacity int, self *selfRef[T], immediateErase, checkAliveness bool) *chunk[T] {
	c := &chunk[T]{
		capacity:       capacity,
		slots:          make([]T, capacity),
		aliveness:      make([]atomic.Bool, capacity),
		trackables:     make([]trackableSlot[T], capacity),
		self:           self,
		immediateErase: immediateErase,
		checkAliveness: checkAliveness,
	}
	return c
}

func (c *chunk[T]) isFull() bool {
	return c.size.Load() == int64(c.capacity)
}

// aliveSize is the number of currently-live slots: size - deletedCount.
func (c *chunk[T]) aliveSize() int64 {
	return c.size.Load() - c.deletedCount.Load()
}

// emplaceAtTail constructs v at slot size, publishes aliveness with a
// release store, then bumps size. Precondition: caller holds this chunk's
// exclusive ownership and its maintenance lock — see DESIGN.md for why
// both are held here rather than just the maintenance lock.
func (c *chunk[T]) emplaceAtTail(v T) int {
	index := int(c.size.Load())
	debugAssert(index < c.capacity, "emplaceAtTail: chunk is full")

	c.slots[index] = v
	c.aliveness[index].Store(true) // release publish of the constructed T
	c.size.Add(1)
	return index
}

// erase marks a slot dead. Callable under at least shared ownership; does
// not destruct T — that is deferred to compaction or teardown.
func (c *chunk[T]) erase(index int) {
	c.aliveness[index].Store(false) // release
	c.deletedCount.Add(1)
}

// isAlive reads a slot's aliveness with an acquire load, so a reader that
// observes a slot as alive also observes the element's construction.
func (c *chunk[T]) isAlive(index int) bool {
	return c.aliveness[index].Load()
}

// visit calls fn(index) for every live slot in [0, size). Callable under
// shared or exclusive ownership.
func (c *chunk[T]) visit(fn func(index int)) {
	size := int(c.size.Load())
	for i := 0; i < size; i++ {
		if !c.aliveness[i].Load() {
			continue
		}
		fn(i)
	}
}

// destructSlot drops the element's references so the GC can reclaim it.
func (c *chunk[T]) destructSlot(index int) {
	var zero T
	c.slots[index] = zero
}

// teardown runs before a chunk is discarded while it may still hold live
// slots — invoked explicitly by Close, since GC alone would reclaim the
// chunk's memory but would never null out outstanding handles into it.
func (c *chunk[T]) teardown() {
	size := int(c.size.Load())
	for i := 0; i < size; i++ {
		if !c.aliveness[i].Load() {
			continue
		}
		onSlotDeleted(c, i)
		c.destructSlot(i)
		c.aliveness[i].Store(false)
	}
}
