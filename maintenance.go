package chunked

// maintainAndUnlock is the online maintenance driver: deletion, then merge,
// then compaction, run in that precedence, followed by releasing whatever
// ownership lock the caller is holding on entry.
//
// The entry condition — maintenance only runs at recursion depth exactly
// one — is what lets a visitor lock a handle into the same chunk it is
// currently iterating without triggering a reorganization out from under
// the outer cursor.
func maintainAndUnlock[T any](c *chunk[T], shared bool) {
	needMerge := !c.isFirst.Load() && c.aliveSize() <= int64(c.capacity)/4
	needCompact := c.deletedCount.Load() > 0
	needMaintain := needMerge || needCompact

	tryMaintain := func() {
		if c.ownership.level() != 1 {
			return
		}
		if tryDelete(c) {
			return
		}

		if needMerge {
			merged := false
			if prev := c.prev.Load(); prev != nil {
				merged = tryMergeWith(c, prev)
			}
			if !merged {
				if next := c.next.Load(); next != nil {
					tryMergeWith(c, next)
				}
			}
		}

		if c.deletedCount.Load() > 0 {
			c.maintenance.lock()
			compact(c)
			tryAddToFreeList(c)
			c.maintenance.unlock()
		}
	}

	if !shared {
		if needMaintain {
			tryMaintain()
		}
		c.ownership.unlock()
		return
	}

	c.ownership.unlockShared()
	if needMaintain {
		if c.ownership.tryLock() {
			tryMaintain()
			c.ownership.unlock()
		}
	}
}

// tryDelete removes c from the chain if it is non-anchor and has no live
// slots.
func tryDelete[T any](c *chunk[T]) bool {
	if c.aliveSize() > 0 || c.isFirst.Load() {
		return false
	}

	c.maintenance.lock()
	if c.aliveSize() > 0 || c.isFirst.Load() {
		c.maintenance.unlock()
		return false
	}

	// every slot is dead: invalidate handles still naming erased slots
	// before the chunk leaves the chain.
	for i := 0; i < int(c.size.Load()); i++ {
		onSlotDeleted(c, i)
	}
	tryRemoveFromFreeList(c)
	removeChunkFromChain(c)
	c.maintenance.unlock()
	return true
}

// removeChunkFromChain unlinks c by CAS-updating its neighbors' links, then
// nulls its own prev. c.next is left as it is, so a chain walk positioned
// on c can still step past it.
func removeChunkFromChain[T any](c *chunk[T]) {
	prev := c.prev.Load()
	next := c.next.Load()
	if prev != nil {
		prev.next.CompareAndSwap(c, next)
	}
	if next != nil {
		next.prev.CompareAndSwap(c, prev)
	}
	c.prev.Store(nil)
}

// canMerge reports whether a and b are mergeable: both chunks must be
// non-anchor and their combined alive size must still fit the merge
// threshold. Since neither side may be the anchor, the anchor is never a
// merge source nor destination.
func canMerge[T any](a, b *chunk[T]) bool {
	return !a.isFirst.Load() && !b.isFirst.Load() &&
		a.aliveSize()+b.aliveSize() <= int64(a.capacity)/4
}

// tryMergeWith attempts to merge c with other, non-blockingly: first a
// non-blocking exclusive lock of the neighbor, then both maintenance locks
// in address order, then a recheck of the merge predicate before
// committing.
func tryMergeWith[T any](c, other *chunk[T]) bool {
	if !canMerge(c, other) {
		return false
	}
	if !other.ownership.tryLock() {
		return false
	}

	lockTwoMaintenance(c, other)

	if !canMerge(c, other) {
		unlockTwoMaintenance(c, other)
		other.ownership.unlock()
		return false
	}

	var to, from *chunk[T]
	if c.aliveSize() > other.aliveSize() {
		to, from = c, other
	} else {
		to, from = other, c
	}

	mergeChunks(to, from)

	tryRemoveFromFreeList(from)
	tryAddToFreeList(to)
	removeChunkFromChain(from)

	unlockTwoMaintenance(c, other)
	other.ownership.unlock()
	return true
}

func lockTwoMaintenance[T any](a, b *chunk[T]) {
	pa, pb := chunkAddr(a), chunkAddr(b)
	if pa == pb {
		a.maintenance.lock()
		return
	}
	if pa < pb {
		a.maintenance.lock()
		b.maintenance.lock()
	} else {
		b.maintenance.lock()
		a.maintenance.lock()
	}
}

func unlockTwoMaintenance[T any](a, b *chunk[T]) {
	if chunkAddr(a) == chunkAddr(b) {
		a.maintenance.unlock()
		return
	}
	a.maintenance.unlock()
	b.maintenance.unlock()
}

// mergeChunks moves every live element of from into to, compacting to
// first so elements land contiguously from to.size onward.
func mergeChunks[T any](to, from *chunk[T]) {
	if to.deletedCount.Load() > 0 {
		compact(to)
	}

	size := int(from.size.Load())
	for i := 0; i < size; i++ {
		if !from.aliveness[i].Load() {
			onSlotDeleted(from, i)
			continue
		}
		indexTo := int(to.size.Load())

		onSlotMoved(from, i, to, indexTo)

		to.slots[indexTo] = from.slots[i]
		to.aliveness[indexTo].Store(true)
		to.size.Add(1)

		from.destructSlot(i)
	}

	from.size.Store(0)
	from.deletedCount.Store(0)
}

// compact closes every hole in [0, size) by moving elements down from the
// tail, shrinking trailing dead slots first. Caller holds c's maintenance
// lock.
func compact[T any](c *chunk[T]) {
	deletedLeft := c.deletedCount.Load()
	size := c.size.Load()

	for i := int64(0); i < size; i++ {
		if c.aliveness[i].Load() {
			continue
		}

		for !c.aliveness[size-1].Load() {
			last := int(size - 1)
			onSlotDeleted(c, last)
			c.destructSlot(last)
			c.aliveness[last].Store(false)
			deletedLeft--
			size--
			if size == 0 {
				break
			}
		}
		if i >= size {
			break
		}

		last := int(size - 1)
		idx := int(i)
		onSlotMoved(c, last, c, idx)

		c.slots[idx] = c.slots[last]
		c.aliveness[idx].Store(true)

		c.destructSlot(last)
		c.aliveness[last].Store(false)
		size--
		deletedLeft--
		if deletedLeft == 0 {
			break
		}
	}

	c.deletedCount.Store(0)
	c.size.Store(size)
}

// tryAddToFreeList ensures c is registered in its container's free-chunk
// registry if it is now non-full and non-anchor. Precondition: caller holds
// c's maintenance lock.
func tryAddToFreeList[T any](c *chunk[T]) {
	if c.inFreeList || c.isFull() || c.isFirst.Load() {
		return
	}
	c.self.withContainer(func(cont *Container[T]) {
		cont.freeList.add(c)
	})
}

// tryRemoveFromFreeList ensures c is not registered. Precondition: caller
// holds c's maintenance lock.
func tryRemoveFromFreeList[T any](c *chunk[T]) {
	if !c.inFreeList {
		return
	}
	c.self.withContainer(func(cont *Container[T]) {
		cont.freeList.remove(c)
	})
}
