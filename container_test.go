package chunked

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewContainerHasSingleAnchorChunk(t *testing.T) {
	c := New[int]()
	require.Equal(t, 1, c.ChunkCount())
}

func TestEmplaceThenIterateSeesValue(t *testing.T) {
	c := New[int]()
	_, err := c.EmplaceHandle(42)
	require.NoError(t, err)

	var seen []int
	c.Iterate(func(cur *Cursor[int]) {
		seen = append(seen, *cur.Value())
	})
	require.ElementsMatch(t, []int{42}, seen)
}

func TestEmplaceManyThenIterateSeesAll(t *testing.T) {
	c := New[int](WithCapacity[int](minChunkCapacity))
	const n = 200
	for i := 0; i < n; i++ {
		require.NoError(t, c.EmplaceValue(i))
	}

	var seen []int
	c.Iterate(func(cur *Cursor[int]) {
		seen = append(seen, *cur.Value())
	})

	want := make([]int, n)
	for i := range want {
		want[i] = i
	}
	require.ElementsMatch(t, want, seen)
	// n elements at minChunkCapacity each should pack into exactly
	// ceil(n/minChunkCapacity) chunks, not one chunk per insert.
	wantChunks := (n + minChunkCapacity - 1) / minChunkCapacity
	require.Equal(t, wantChunks, c.ChunkCount())
}

func TestCursorEraseRemovesElement(t *testing.T) {
	c := New[int]()
	for _, v := range []int{1, 2, 3} {
		require.NoError(t, c.EmplaceValue(v))
	}

	c.Iterate(func(cur *Cursor[int]) {
		if *cur.Value() == 2 {
			cur.Erase()
		}
	})

	var seen []int
	c.IterateShared(func(cur *Cursor[int]) {
		seen = append(seen, *cur.Value())
	})
	require.ElementsMatch(t, []int{1, 3}, seen)
}

func TestHandleTracksElementAcrossErase(t *testing.T) {
	c := New[int]()
	h1, err := c.EmplaceHandle(1)
	require.NoError(t, err)
	require.NoError(t, c.EmplaceValue(2))

	ok := c.EraseHandle(h1)
	require.True(t, ok)
	require.True(t, h1.Dead())

	var seen []int
	c.IterateShared(func(cur *Cursor[int]) {
		seen = append(seen, *cur.Value())
	})
	require.ElementsMatch(t, []int{2}, seen)
}

func TestHandleLockMutatesElement(t *testing.T) {
	c := New[int]()
	h, err := c.EmplaceHandle(10)
	require.NoError(t, err)

	access, ok := h.Lock()
	require.True(t, ok)
	*access.Value() = 20
	access.Release()

	var seen []int
	c.IterateShared(func(cur *Cursor[int]) {
		seen = append(seen, *cur.Value())
	})
	require.ElementsMatch(t, []int{20}, seen)
}

func TestCloseInvalidatesOutstandingHandles(t *testing.T) {
	c := New[int]()
	h, err := c.EmplaceHandle(1)
	require.NoError(t, err)

	c.Close()

	require.True(t, h.Dead())
}

func TestEmplaceAfterCloseReturnsError(t *testing.T) {
	c := New[int]()
	c.Close()

	require.ErrorIs(t, c.EmplaceValue(1), ErrClosed)
}
