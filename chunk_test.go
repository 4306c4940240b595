package chunked

import "testing"

func newTestChunk(capacity int) *chunk[int] {
	cont := New[int](WithCapacity[int](capacity))
	return cont.first.Load()
}

func TestChunkEmplaceAndAliveSize(t *testing.T) {
	c := newTestChunk(minChunkCapacity)
	for i := 0; i < 5; i++ {
		idx := c.emplaceAtTail(i)
		if idx != i {
			t.Fatalf("emplaceAtTail index = %d, want %d", idx, i)
		}
	}
	if got := c.aliveSize(); got != 5 {
		t.Fatalf("aliveSize = %d, want 5", got)
	}
	if c.isFull() {
		t.Fatal("chunk should not be full")
	}
}

func TestChunkIsFull(t *testing.T) {
	c := newTestChunk(minChunkCapacity)
	for i := 0; i < minChunkCapacity; i++ {
		c.emplaceAtTail(i)
	}
	if !c.isFull() {
		t.Fatal("chunk should be full after filling to capacity")
	}
}

func TestChunkEraseMarksDeadNotDestroyed(t *testing.T) {
	c := newTestChunk(minChunkCapacity)
	c.emplaceAtTail(42)
	c.erase(0)
	if c.isAlive(0) {
		t.Fatal("slot should be dead after erase")
	}
	if c.aliveSize() != 0 {
		t.Fatalf("aliveSize = %d, want 0", c.aliveSize())
	}
	if c.deletedCount.Load() != 1 {
		t.Fatalf("deletedCount = %d, want 1", c.deletedCount.Load())
	}
}

func TestChunkVisitSkipsDead(t *testing.T) {
	c := newTestChunk(minChunkCapacity)
	for i := 0; i < 4; i++ {
		c.emplaceAtTail(i)
	}
	c.erase(1)
	c.erase(3)

	var seen []int
	c.visit(func(index int) {
		seen = append(seen, c.slots[index])
	})

	if len(seen) != 2 || seen[0] != 0 || seen[1] != 2 {
		t.Fatalf("visit saw %v, want [0 2]", seen)
	}
}

func TestChunkTeardownInvalidatesHandles(t *testing.T) {
	c := newTestChunk(minChunkCapacity)
	c.emplaceAtTail(7)
	h := registerHandle(c, 0)

	c.teardown()

	if !h.Dead() {
		t.Fatal("handle should be dead after its chunk is torn down")
	}
}
