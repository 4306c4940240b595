package chunked

import (
	"errors"
	"runtime"
	"sync/atomic"
)

// ErrClosed is returned by operations attempted after Close.
var ErrClosed = errors.New("chunked: container closed")

// Container is a concurrent, chunked, unordered collection of T. Elements
// are identified structurally by (chunk, index) rather than by position:
// there is no external index or iterator, only Handle (a trackable weak
// reference) and Cursor (a visitor-scoped reference valid only during
// Iterate/IterateShared).
//
// first is the anchor chunk: the unique current head of the chain, the
// chunk Emplace grows or, once full, prepends a new head ahead of — the
// anchor flag rotates onto that new head and the old head is demoted to an
// ordinary link, eligible for merge/deletion like any other (spec.md §8
// scenario 5). There is deliberately no tail pointer: the original grows
// only at the head (SyncedChunkedArray.h's emplace), so a chunk that falls
// off the tail via merge/deletion is simply unreachable from first — unlike
// a tracked tail pointer, nothing needs to be kept in sync when that
// happens.
type Container[T any] struct {
	cfg      containerConfig[T]
	self     *selfRef[T]
	freeList *freeList[T]

	// appendMu is the "container head lock" of spec.md §5's lock inventory:
	// short-held, guarding only the decision of whether first needs a new
	// head spliced ahead of it and the update of first itself.
	appendMu spinLock
	first    atomic.Pointer[chunk[T]]

	closed atomic.Bool
}

// New constructs an empty Container with the given options applied over
// the defaults computed by sizing.go.
func New[T any](opts ...Option[T]) *Container[T] {
	cfg := defaultContainerConfig[T]()
	for _, opt := range opts {
		opt(&cfg)
	}

	cont := &Container[T]{cfg: cfg, freeList: newFreeList[T]()}
	cont.self = newSelfRef[T](cont)

	anchor := newChunk[T](cfg.capacity, cont.self, cfg.immediateErase, cfg.handleChecksAliveness)
	anchor.isFirst.Store(true)
	cont.first.Store(anchor)
	return cont
}

// growOrSpliceHead returns the chunk Emplace should insert into next, with
// both its exclusive ownership lock and its maintenance lock held: either
// the current head, if it still has room, or a freshly spliced new head
// otherwise. Mirrors the original's first_lock-guarded sequence (grounded on
// SyncedChunkedArray.h's emplace): decide/splice under the short head lock
// alone, then acquire the resulting chunk's ownership lock afterward,
// honoring spec.md §5's order (container head lock before chunk ownership
// lock) that growOrSpliceHead must not invert.
func (c *Container[T]) growOrSpliceHead() *chunk[T] {
	for {
		c.appendMu.lock()
		head := c.first.Load()
		if head.isFull() {
			nc := newChunk[T](c.cfg.capacity, c.self, c.cfg.immediateErase, c.cfg.handleChecksAliveness)
			nc.isFirst.Store(true)
			nc.next.Store(head)
			head.prev.Store(nc)
			head.isFirst.Store(false)
			c.first.Store(nc)
			head = nc
		}
		c.appendMu.unlock()

		if !head.ownership.tryLock() {
			runtime.Gosched()
			continue
		}
		if head.isFull() {
			// lost the race: head filled (or was itself superseded) between
			// releasing appendMu and winning its ownership lock. Retry from
			// the top, which re-reads first.
			head.ownership.unlock()
			runtime.Gosched()
			continue
		}
		head.maintenance.lock()
		return head
	}
}

// Emplace inserts v into a non-full chunk — preferring a chunk already
// registered in the free-chunk registry, falling back to growing (or, once
// full, prepending ahead of) the head chunk — then invokes fn, synchronously
// and while still holding that chunk's exclusive ownership lock and its
// maintenance lock, with a Deferred naming the freshly constructed slot. fn
// may call Deferred.Handle to register a trackable handle for it, or leave
// it unnamed; either way Emplace itself releases both locks once fn returns
// (or immediately, if fn is nil), so discarding the new element without a
// handle is fully deterministic and does not depend on a GC finalizer ever
// running. This mirrors pb.MapOf's Compute/LoadOrStoreFn family
// (mapof.go), which likewise invokes a caller closure synchronously while
// holding a bucket lock rather than handing the caller a value to release
// later on their own schedule.
func (c *Container[T]) Emplace(v T, fn func(d *Deferred[T])) error {
	if c.closed.Load() {
		return ErrClosed
	}

	for {
		// getCandidateUnderMaintenance returns target with its maintenance
		// lock (spec.md §5 order 4) already held, ahead of the ownership
		// lock (order 3) acquired just below — an inversion of §5's stated
		// order that stays deadlock-free only because the ownership
		// acquisition is a non-blocking tryLock: on failure it drops the
		// maintenance lock it holds before retrying, so no goroutine ever
		// blocks while holding one waiting on the other.
		target := c.freeList.getCandidateUnderMaintenance()
		if target != nil {
			if !target.ownership.tryLock() {
				target.maintenance.unlock()
				runtime.Gosched()
				continue
			}
			if target.isFull() {
				tryRemoveFromFreeList(target)
				target.ownership.unlock()
				target.maintenance.unlock()
				runtime.Gosched()
				continue
			}
		} else {
			target = c.growOrSpliceHead()
		}

		index := target.emplaceAtTail(v)
		if target.isFull() {
			tryRemoveFromFreeList(target)
		}

		d := &Deferred[T]{chunk: target, index: index}
		if fn != nil {
			fn(d)
		}
		d.Release()
		return nil
	}
}

// EmplaceValue inserts v without naming it with a handle, equivalent to
// Emplace(v, nil).
func (c *Container[T]) EmplaceValue(v T) error {
	return c.Emplace(v, nil)
}

// EmplaceHandle inserts v and returns a trackable handle naming it,
// equivalent to calling Emplace and materializing the Deferred with Handle.
func (c *Container[T]) EmplaceHandle(v T) (*Handle[T], error) {
	var h *Handle[T]
	err := c.Emplace(v, func(d *Deferred[T]) {
		h = d.Handle()
	})
	return h, err
}

// Erase marks cur's slot dead. Equivalent to cur.Erase(); provided so
// erasure reads as a Container operation alongside Emplace/Iterate.
func (c *Container[T]) Erase(cur *Cursor[T]) {
	cur.Erase()
}

// EraseHandle erases the element a still-live handle names. Reports false
// if the handle is already dead: lock the handle exclusively, mark the
// slot dead, then release through the normal maintenance path.
func (c *Container[T]) EraseHandle(h *Handle[T]) bool {
	access, ok := h.Lock()
	if !ok {
		return false
	}
	access.chunk.erase(access.index)
	access.Release()
	return true
}

// Iterate visits every live element under each chunk's exclusive ownership
// lock, so the visitor may safely erase or mutate through the cursor.
func (c *Container[T]) Iterate(visit func(cur *Cursor[T])) {
	c.iterateGeneric(false, visit)
}

// IterateShared visits every live element under each chunk's shared
// ownership lock, allowing concurrent readers across chunks but not
// concurrent exclusive reorganization of the chunk currently being visited.
func (c *Container[T]) IterateShared(visit func(cur *Cursor[T])) {
	c.iterateGeneric(true, visit)
}

// iterateGeneric is the two-phase skipped-chunk retry loop: a first pass
// walks the chain, attempting each chunk's lock non-blockingly and reading
// its next pointer once that chunk has been visited (and maintained) or
// skipped, so that a chunk currently under maintenance never stalls the
// rest of the walk; any chunk whose lock could not be
// taken is collected, and subsequent passes — yielding with
// runtime.Gosched between them — retry only the chunks still outstanding,
// until none remain.
func (c *Container[T]) iterateGeneric(shared bool, visit func(cur *Cursor[T])) {
	visitChunk := func(ch *chunk[T]) {
		thisChunk := ch
		thisChunk.visit(func(index int) {
			visit(&Cursor[T]{chunk: thisChunk, index: index, immediateErase: thisChunk.immediateErase})
		})
		maintainAndUnlock(thisChunk, shared)
	}

	tryLockChunk := func(ch *chunk[T]) bool {
		if shared {
			// tryLockShared, not the blocking lockShared: a visitor that
			// locks a Handle shared into the very chunk this walk is
			// visiting shared recurses into the same rwSpinLock. A
			// non-blocking retry is what keeps that safe here — see the
			// hazard note on Handle.LockShared.
			return ch.ownership.tryLockShared()
		}
		return ch.ownership.tryLock()
	}

	var skipped []*chunk[T]
	for cur := c.first.Load(); cur != nil; cur = cur.next.Load() {
		if tryLockChunk(cur) {
			visitChunk(cur)
		} else {
			skipped = append(skipped, cur)
		}
	}

	for len(skipped) > 0 {
		runtime.Gosched()
		remaining := skipped[:0]
		for _, ch := range skipped {
			if tryLockChunk(ch) {
				visitChunk(ch)
			} else {
				remaining = append(remaining, ch)
			}
		}
		skipped = remaining
	}
}

// ChunkCount returns a best-effort count of chunks currently in the chain.
// Since the chain may be concurrently mutated, the result is a snapshot,
// not a linearizable count.
func (c *Container[T]) ChunkCount() int {
	n := 0
	for cur := c.first.Load(); cur != nil; cur = cur.next.Load() {
		n++
	}
	return n
}

// Close tears the container down: every chunk is locked exclusively in
// turn (which blocks until any in-flight Iterate/IterateShared/Access
// holding that chunk finishes), its live elements' trackable handles are
// invalidated, and the container's self-reference is cleared so that any
// handle or chunk outliving Close sees a torn-down container rather than a
// dangling one.
func (c *Container[T]) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	for cur := c.first.Load(); cur != nil; {
		cur.ownership.lock()
		next := cur.next.Load()
		cur.teardown()
		cur.ownership.unlock()
		cur = next
	}
	c.self.clear()
}

// Deferred is the handle-factory Emplace hands its fn callback: the new
// element's chunk is held under exclusive ownership and its maintenance
// lock for as long as the Deferred is live, guaranteeing the slot cannot be
// reorganized out from under fn before it names the element (or chooses not
// to). Emplace itself calls Release once fn returns, so a Deferred must
// never be retained or used after fn returns.
type Deferred[T any] struct {
	chunk *chunk[T]
	index int
	done  atomic.Bool
}

// Value returns a pointer to the newly constructed element, valid until
// Handle or Release is called.
func (d *Deferred[T]) Value() *T {
	return &d.chunk.slots[d.index]
}

// Handle materializes a trackable handle for the new element and releases
// the locks Emplace took out, running maintenance per the usual rules.
// Calling Handle or Release more than once is a no-op; Handle returns nil
// on the second and subsequent calls.
func (d *Deferred[T]) Handle() *Handle[T] {
	if !d.done.CompareAndSwap(false, true) {
		return nil
	}
	h := registerHandle(d.chunk, d.index)
	d.chunk.maintenance.unlock()
	maintainAndUnlock(d.chunk, false)
	return h
}

// Release discards the Deferred without naming the new element with a
// handle, still releasing the locks Emplace took out.
func (d *Deferred[T]) Release() {
	if !d.done.CompareAndSwap(false, true) {
		return
	}
	d.chunk.maintenance.unlock()
	maintainAndUnlock(d.chunk, false)
}
