package chunked

import "testing"

func TestRegisterHandleAndDead(t *testing.T) {
	c := newTestChunk(minChunkCapacity)
	c.emplaceAtTail(1)
	h := registerHandle(c, 0)
	if h.Dead() {
		t.Fatal("freshly registered handle should be live")
	}
}

func TestUnregisterHandleMakesItDead(t *testing.T) {
	c := newTestChunk(minChunkCapacity)
	c.emplaceAtTail(1)
	h := registerHandle(c, 0)
	unregisterHandle(h)
	if !h.Dead() {
		t.Fatal("unregistered handle should be dead")
	}
}

func TestOnSlotDeletedInvalidatesAllHandles(t *testing.T) {
	c := newTestChunk(minChunkCapacity)
	c.emplaceAtTail(1)
	h1 := registerHandle(c, 0)
	h2 := registerHandle(c, 0)

	onSlotDeleted(c, 0)

	if !h1.Dead() || !h2.Dead() {
		t.Fatal("all handles on a deleted slot should be dead")
	}
}

func TestOnSlotMovedRewritesHandles(t *testing.T) {
	c := newTestChunk(minChunkCapacity)
	c.emplaceAtTail(1)
	c.emplaceAtTail(2)
	h := registerHandle(c, 0)

	onSlotMoved(c, 0, c, 1)

	if h.Dead() {
		t.Fatal("moved handle should remain live")
	}
	access, ok := h.Lock()
	if !ok {
		t.Fatal("expected to lock a live handle")
	}
	if access.chunk != c || access.index != 1 {
		t.Fatalf("handle identity = (%p, %d), want (%p, 1)", access.chunk, access.index, c)
	}
	access.Release()
}

func TestOnSlotMovedInvalidatesPriorDestinationHandles(t *testing.T) {
	c := newTestChunk(minChunkCapacity)
	c.emplaceAtTail(1)
	c.emplaceAtTail(2)
	hDest := registerHandle(c, 1)

	onSlotMoved(c, 0, c, 1)

	if !hDest.Dead() {
		t.Fatal("a handle already pointing at the destination slot should be invalidated")
	}
}
