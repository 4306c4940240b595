package chunked

// ownershipLock is the chunk's "ownership lock": a writer-biased
// reader/writer spin-lock whose exclusive side is recursive per goroutine,
// with the recursion depth visible to the current holder.
//
// Only the exclusive lock/tryLock/unlock are recursive, via a per-goroutine
// depth counter; lockShared/unlockShared/tryLockShared pass straight
// through to the underlying rwSpinLock unwrapped, unlike the exclusive
// side. This is inherited as-is from the original's Recursive<T> wrapper,
// which only overrides lock/try_lock/unlock the same way, but it is not
// actually deadlock-proof to call the blocking lockShared recursively on
// the same goroutine: RWSpinLockWriterBiased.lock wins the writeNow CAS
// first and only then drains readersCount, so a writer can claim writeNow
// between an outer and an inner lockShared and then block forever waiting
// for the outer hold's readersCount to drop, while the inner call spins
// forever on writeNow — a hazard for the underlying lock's writer-biased
// design in general, not specific to this wrapper. Every call site that
// can recurse into the same chunk (Handle.LockShared, container.go's
// IterateShared loop) uses the non-blocking tryLockShared instead of
// lockShared for exactly this reason. The per-goroutine exclusive depth is
// kept in a small map guarded by a spinLock — the same
// short-lock-protected-map texture used by the free-chunk and
// trackable-handle registries.
type ownershipLock struct {
	rw    rwSpinLock
	dmu   spinLock
	depth map[int64]int32
}

// level reports the current goroutine's recursive exclusive-lock depth: 0 if
// this goroutine does not hold the lock exclusively.
func (l *ownershipLock) level() int32 {
	g := currentGoroutineID()
	l.dmu.lock()
	d := l.depth[g]
	l.dmu.unlock()
	return d
}

func (l *ownershipLock) lock() {
	g := currentGoroutineID()
	l.dmu.lock()
	if d := l.depth[g]; d > 0 {
		l.depth[g] = d + 1
		l.dmu.unlock()
		return
	}
	l.dmu.unlock()

	l.rw.lock()

	l.dmu.lock()
	l.setDepthLocked(g, 1)
	l.dmu.unlock()
}

func (l *ownershipLock) tryLock() bool {
	g := currentGoroutineID()
	l.dmu.lock()
	if d := l.depth[g]; d > 0 {
		l.depth[g] = d + 1
		l.dmu.unlock()
		return true
	}
	l.dmu.unlock()

	if !l.rw.tryLock() {
		return false
	}

	l.dmu.lock()
	l.setDepthLocked(g, 1)
	l.dmu.unlock()
	return true
}

// setDepthLocked writes depth[g] = v. Caller holds dmu. Lazily allocates the
// map so the zero ownershipLock is usable without an explicit constructor.
func (l *ownershipLock) setDepthLocked(g int64, v int32) {
	if l.depth == nil {
		l.depth = make(map[int64]int32, 1)
	}
	l.depth[g] = v
}

func (l *ownershipLock) unlock() {
	g := currentGoroutineID()
	l.dmu.lock()
	d := l.depth[g] - 1
	if d <= 0 {
		delete(l.depth, g)
		l.dmu.unlock()
		l.rw.unlock()
		return
	}
	l.depth[g] = d
	l.dmu.unlock()
}

// lockShared is not used from any path that can recurse into the same
// chunk, for exactly the hazard documented above; every such call site uses
// tryLockShared instead. Kept for symmetry with rwSpinLock's own surface.
func (l *ownershipLock) lockShared()         { l.rw.lockShared() }
func (l *ownershipLock) unlockShared()       { l.rw.unlockShared() }
func (l *ownershipLock) tryLockShared() bool { return l.rw.tryLockShared() }
