package chunked

import (
	"runtime"
	"sync/atomic"
)

// trackableSlot is the per-slot trackable-handle registry entry: a short
// exclusive lock, a have-any fast-path flag, and the head of the doubly
// linked list of handles currently naming this slot.
//
// The list's prev/next pointers are protected by this slot's lock, not by
// each handle's own lock (which protects only that handle's (chunk, index)
// identity) — see DESIGN.md.
type trackableSlot[T any] struct {
	mu      spinLock
	haveAny atomic.Bool
	first   *Handle[T]
}

// registerHandle creates a new live handle bound to (c, index) and links it
// onto that slot's trackable list.
func registerHandle[T any](c *chunk[T], index int) *Handle[T] {
	h := &Handle[T]{chunk: c, index: index}
	t := &c.trackables[index]

	t.mu.lock()
	h.next = t.first
	if t.first != nil {
		t.first.prev = h
	}
	t.first = h
	t.haveAny.Store(true)
	t.mu.unlock()

	runtime.SetFinalizer(h, finalizeHandle[T])
	return h
}

// finalizeHandle is the GC-driven counterpart of the original's
// ~trackable_iterator: it runs unregisterHandle when the GC finalizes h.
// A handle still linked into a slot's list is referenced by that list and
// so is not finalized while its chunk is reachable; unlinking such a
// handle takes an explicit Close.
func finalizeHandle[T any](h *Handle[T]) {
	unregisterHandle(h)
}

// unregisterHandle unlinks h from its slot's trackable list, marking it
// dead. No-op if h is already dead. Acquired in handle→slot order, as
// required by spec.md §5's lock sub-order for locks 6 and 7.
func unregisterHandle[T any](h *Handle[T]) {
	for {
		h.mu.lock()
		c := h.chunk
		if c == nil {
			h.mu.unlock()
			return
		}
		idx := h.index
		t := &c.trackables[idx]
		if !t.mu.tryLock() {
			h.mu.unlock()
			runtime.Gosched()
			continue
		}
		h.chunk = nil
		h.mu.unlock()

		unlinkLocked(t, h)
		t.mu.unlock()
		return
	}
}

// unlinkLocked splices h out of t's list. Caller holds t.mu. Generalizes
// trackable_iterator::~trackable_iterator's four hand-written splice cases
// into the usual doubly-linked-list unlink.
func unlinkLocked[T any](t *trackableSlot[T], h *Handle[T]) {
	if h.prev != nil {
		h.prev.next = h.next
	} else {
		t.first = h.next
	}
	if h.next != nil {
		h.next.prev = h.prev
	}
	h.prev = nil
	h.next = nil
	if t.first == nil {
		t.haveAny.Store(false)
	}
}

// walkLocked invokes fn for every handle on t's list, taking each handle's
// own short lock for the duration of fn — mirrors
// iterate_trackable_iterators, which locks m_lock per handle before
// invoking its closure. Caller holds t.mu.
func walkLocked[T any](t *trackableSlot[T], fn func(h *Handle[T])) {
	for h := t.first; h != nil; h = h.next {
		h.mu.lock()
		fn(h)
		h.mu.unlock()
	}
}

// onSlotDeleted invalidates every handle pointing at (c, index): their
// chunk field is nulled under each handle's own lock, and the slot's list
// is cleared. Grounded on track_delete_element.
func onSlotDeleted[T any](c *chunk[T], index int) {
	t := &c.trackables[index]
	if !t.haveAny.Load() {
		return
	}

	t.mu.lock()
	walkLocked(t, func(h *Handle[T]) {
		h.chunk = nil
	})
	t.first = nil
	t.haveAny.Store(false)
	t.mu.unlock()
}

// onSlotMoved splices the handle list from (from, i) onto (to, j),
// rewriting each moved handle's (chunk, index) under its own lock, and
// invalidates any handles that were already pointing at the destination
// (their identity is considered lost — the destination slot's prior
// contents are gone). Grounded on track_move_element; resolves spec.md §9's
// open question about a non-empty destination the same way the original
// does.
//
// Both slot locks are taken in ascending address order (via lockTwoSlots)
// to avoid deadlocking against a concurrent move in the opposite direction,
// mirroring std::lock(lock_from, lock_to) in the original.
func onSlotMoved[T any](from *chunk[T], iFrom int, to *chunk[T], jTo int) {
	if from == to && iFrom == jTo {
		return
	}

	tFrom := &from.trackables[iFrom]
	tTo := &to.trackables[jTo]

	if !tFrom.haveAny.Load() && !tTo.haveAny.Load() {
		return
	}

	lockTwoSlots(tFrom, tTo)

	walkLocked(tTo, func(h *Handle[T]) {
		h.chunk = nil
	})

	walkLocked(tFrom, func(h *Handle[T]) {
		h.chunk = to
		h.index = jTo
	})

	tTo.first = tFrom.first
	tFrom.first = nil

	tFrom.haveAny.Store(false)
	tTo.haveAny.Store(tTo.first != nil)

	unlockTwoSlots(tFrom, tTo)
}

// lockTwoSlots acquires both slot locks in a fixed global order (by
// address) so that two concurrent moves touching the same pair of slots in
// opposite directions cannot deadlock. Mirrors the "lock-two-at-once
// primitive" referenced throughout spec.md §4.
func lockTwoSlots[T any](a, b *trackableSlot[T]) {
	pa, pb := slotAddr(a), slotAddr(b)
	if pa == pb {
		a.mu.lock()
		return
	}
	if pa < pb {
		a.mu.lock()
		b.mu.lock()
	} else {
		b.mu.lock()
		a.mu.lock()
	}
}

func unlockTwoSlots[T any](a, b *trackableSlot[T]) {
	if slotAddr(a) == slotAddr(b) {
		a.mu.unlock()
		return
	}
	a.mu.unlock()
	b.mu.unlock()
}
