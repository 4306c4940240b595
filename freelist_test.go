package chunked

import "testing"

func TestFreeListAddRemoveIdempotent(t *testing.T) {
	fl := newFreeList[int]()
	c := newTestChunk(minChunkCapacity)

	c.maintenance.lock()
	fl.add(c)
	fl.add(c) // idempotent
	c.maintenance.unlock()

	if fl.isEmpty.Load() {
		t.Fatal("free list should not be empty after add")
	}

	c.maintenance.lock()
	fl.remove(c)
	fl.remove(c) // idempotent
	c.maintenance.unlock()

	if !fl.isEmpty.Load() {
		t.Fatal("free list should be empty after remove")
	}
}

func TestFreeListGetCandidateUnderMaintenance(t *testing.T) {
	fl := newFreeList[int]()
	if fl.getCandidateUnderMaintenance() != nil {
		t.Fatal("empty free list should yield no candidate")
	}

	c := newTestChunk(minChunkCapacity)
	c.maintenance.lock()
	fl.add(c)
	c.maintenance.unlock()

	cand := fl.getCandidateUnderMaintenance()
	if cand != c {
		t.Fatal("candidate should be the chunk just added")
	}
	// caller now owns the maintenance lock; release it.
	cand.maintenance.unlock()
}

func TestFreeListRetriesContendedHead(t *testing.T) {
	fl := newFreeList[int]()
	c := newTestChunk(minChunkCapacity)

	c.maintenance.lock()
	fl.add(c)
	c.maintenance.unlock()

	c.maintenance.lock() // hold it so getCandidate can't win the try-lock
	done := make(chan *chunk[int])
	go func() {
		done <- fl.getCandidateUnderMaintenance()
	}()

	c.maintenance.unlock()
	cand := <-done
	if cand != c {
		t.Fatal("candidate should eventually be returned once contention clears")
	}
	cand.maintenance.unlock()
}
