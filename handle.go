package chunked

import "runtime"

// Handle is a long-lived trackable reference to a slot that survives
// compaction and merge — a weak reference with respect to erasure of its
// element. It is either live (bound to a (chunk, index) pair registered in
// that slot's trackable list) or dead.
//
// chunk/index are the handle's "identity" fields and are only ever read or
// written under h.mu; prev/next are list bookkeeping owned by the slot's
// trackableSlot lock — see trackable.go.
type Handle[T any] struct {
	mu    spinLock
	chunk *chunk[T]
	index int

	prev *Handle[T]
	next *Handle[T]
}

// Dead reports whether the handle's element has been erased and reclaimed.
// A dead handle never becomes live again.
func (h *Handle[T]) Dead() bool {
	h.mu.lock()
	dead := h.chunk == nil
	h.mu.unlock()
	return dead
}

// Lock excludes concurrent reorganization of the handle's slot's
// neighborhood and returns a mutable Access to the element, or reports dead
// if the handle has been invalidated. A slot that is erased but not yet
// reclaimed by maintenance is reported dead only when the container was
// built with WithHandleChecksAliveness(true).
func (h *Handle[T]) Lock() (*Access[T], bool) {
	return h.lockGeneric(false)
}

// LockShared is the shared-ownership counterpart of Lock, excluding
// exclusive reorganization but allowing concurrent readers.
//
// Hazard: calling LockShared on a handle that names a slot in the very
// chunk an enclosing IterateShared visitor is currently visiting shared
// recurses into that chunk's writer-biased rwSpinLock. The retry below uses
// tryLockShared rather than a blocking acquire specifically to survive
// that: a blocking lockShared could stall forever if a writer wins the
// writeNow flag between the outer and the inner acquire, since a
// writer-biased lock's pending writer then holds off every new reader
// (including the inner one) while itself waiting on the outer hold's
// readersCount to drain — a wait that never ends while the inner acquire
// is also blocked. Retrying non-blockingly avoids that deadlock at the
// cost of unbounded (but not indefinite, once the writer gives up or
// completes on a chunk not involved in the recursion) spinning.
func (h *Handle[T]) LockShared() (*Access[T], bool) {
	return h.lockGeneric(true)
}

func (h *Handle[T]) lockGeneric(shared bool) (*Access[T], bool) {
	for {
		h.mu.lock()
		c := h.chunk
		if c == nil {
			h.mu.unlock()
			return nil, false
		}
		idx := h.index

		var acquired bool
		if shared {
			acquired = c.ownership.tryLockShared()
		} else {
			acquired = c.ownership.tryLock()
		}
		h.mu.unlock()

		if !acquired {
			runtime.Gosched()
			continue
		}

		if c.checkAliveness && !c.isAlive(idx) {
			if shared {
				c.ownership.unlockShared()
			} else {
				c.ownership.unlock()
			}
			return nil, false
		}

		return &Access[T]{chunk: c, index: idx, shared: shared}, true
	}
}

// Close unlinks the handle from its slot's trackable list and marks it
// dead. A Handle dropped without Close stays on that list while its slot
// keeps it: the list references the Handle, so the finalizer set by
// registerHandle does not run for a handle still linked into a reachable
// chunk.
func (h *Handle[T]) Close() {
	runtime.SetFinalizer(h, nil)
	unregisterHandle(h)
}

// Access is a guard returned by Handle.Lock/LockShared: while held, it
// excludes the kind of reorganization its lock mode implies for the
// handle's chunk.
type Access[T any] struct {
	chunk        *chunk[T]
	index        int
	shared       bool
	relinquished bool
}

// Value returns a pointer to the element. The pointer is valid only until
// Release is called.
func (a *Access[T]) Value() *T {
	return &a.chunk.slots[a.index]
}

// Release ends the access, running maintenance on the underlying chunk.
// Maintenance only reorganizes a chunk at ownership recursion depth one,
// so a re-entrant Release from inside an enclosing iteration never
// reorganizes the chunk out from under the outer cursor.
func (a *Access[T]) Release() {
	if a.relinquished {
		return
	}
	a.relinquished = true
	maintainAndUnlock(a.chunk, a.shared)
}
