package bufferpool

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/rdbe/errs"
	"github.com/arloliu/rdbe/format"
	"github.com/arloliu/rdbe/page"
)

// memStore is an in-memory PageStore with failure injection and write
// counting.
type memStore struct {
	pages      map[uint64][]byte
	readErr    error
	writeErr   error
	writeCount map[uint64]int
}

func newMemStore(pageIDs ...uint64) *memStore {
	ms := &memStore{
		pages:      make(map[uint64][]byte),
		writeCount: make(map[uint64]int),
	}
	for _, id := range pageIDs {
		p := page.NewPage(id, format.PageTypeData)
		ms.pages[id] = append([]byte(nil), p.Bytes()...)
	}

	return ms
}

func (ms *memStore) ReadPage(id uint64) (*page.Page, error) {
	if ms.readErr != nil {
		return nil, ms.readErr
	}

	frame, ok := ms.pages[id]
	if !ok {
		return nil, fmt.Errorf("page %d: %w", id, errs.ErrCorrupt)
	}

	return page.FromBytes(append([]byte(nil), frame...))
}

func (ms *memStore) WritePage(p *page.Page) error {
	if ms.writeErr != nil {
		return ms.writeErr
	}

	ms.writeCount[p.ID()]++
	ms.pages[p.ID()] = append([]byte(nil), p.Bytes()...)

	return nil
}

func pinUnpin(t *testing.T, bp *Pool, id uint64) {
	t.Helper()

	_, err := bp.Pin(id)
	require.NoError(t, err)
	require.NoError(t, bp.Unpin(id, false))
}

func TestNew_CapacityValidation(t *testing.T) {
	_, err := New(newMemStore(), 0)
	require.Error(t, err)

	bp, err := New(newMemStore(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, bp.Capacity())
}

func TestPool_GetCachesAndPromotes(t *testing.T) {
	ms := newMemStore(1, 2)
	bp, err := New(ms, 4)
	require.NoError(t, err)

	p, err := bp.Get(1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), p.ID())
	require.True(t, bp.IsResident(1))

	_, err = bp.Get(2)
	require.NoError(t, err)
	require.Equal(t, []uint64{2, 1}, bp.lruOrder())

	// A hit moves the page back to the front.
	_, err = bp.Get(1)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, bp.lruOrder())

	bp.ValidateConsistency()
}

func TestPool_LRUEviction(t *testing.T) {
	ms := newMemStore(1, 2, 3, 4)
	bp, err := New(ms, 3)
	require.NoError(t, err)

	pinUnpin(t, bp, 1)
	pinUnpin(t, bp, 2)
	pinUnpin(t, bp, 3)

	_, err = bp.Get(4)
	require.NoError(t, err)

	require.False(t, bp.IsResident(1), "least recently used page is evicted")
	require.True(t, bp.IsResident(2))
	require.True(t, bp.IsResident(3))
	require.True(t, bp.IsResident(4))
	require.Equal(t, []uint64{4, 3, 2}, bp.lruOrder())

	bp.ValidateConsistency()
}

func TestPool_PinnedPageNeverEvicted(t *testing.T) {
	ms := newMemStore(1, 2, 3)
	bp, err := New(ms, 2)
	require.NoError(t, err)

	_, err = bp.Pin(1) // stays pinned
	require.NoError(t, err)
	pinUnpin(t, bp, 2)

	_, err = bp.Get(3)
	require.NoError(t, err)

	require.True(t, bp.IsResident(1), "pinned page survives despite being LRU")
	require.False(t, bp.IsResident(2))
	require.True(t, bp.IsResident(3))

	bp.ValidateConsistency()
}

func TestPool_AllPinnedFailsFast(t *testing.T) {
	ms := newMemStore(1, 2, 3)
	bp, err := New(ms, 2)
	require.NoError(t, err)

	_, err = bp.Pin(1)
	require.NoError(t, err)
	_, err = bp.Pin(2)
	require.NoError(t, err)

	_, err = bp.Get(3)
	require.ErrorIs(t, err, errs.ErrNoEvictablePage)
}

func TestPool_WorkingSetWithinCapacityNeverEvicts(t *testing.T) {
	ms := newMemStore(1, 2, 3)
	bp, err := New(ms, 3)
	require.NoError(t, err)

	for round := 0; round < 10; round++ {
		for id := uint64(1); id <= 3; id++ {
			_, err := bp.Get(id)
			require.NoError(t, err)
		}
	}

	require.Equal(t, 3, bp.Len())
	for id := uint64(1); id <= 3; id++ {
		require.True(t, bp.IsResident(id))
	}
}

func TestPool_DirtyWriteBackOnEviction(t *testing.T) {
	ms := newMemStore(1, 2)
	bp, err := New(ms, 1)
	require.NoError(t, err)

	p, err := bp.Pin(1)
	require.NoError(t, err)
	_, err = p.InsertRecord([]byte("dirty content"))
	require.NoError(t, err)
	require.NoError(t, bp.Unpin(1, true))
	require.True(t, bp.IsDirty(1))

	// Loading page 2 evicts dirty page 1, which must be written back.
	_, err = bp.Get(2)
	require.NoError(t, err)
	require.Equal(t, 1, ms.writeCount[1])

	// Reloading page 1 sees the written-back record.
	p, err = bp.Get(1)
	require.NoError(t, err)
	got, err := p.ReadRecord(0)
	require.NoError(t, err)
	require.Equal(t, []byte("dirty content"), got)
}

func TestPool_Unpin(t *testing.T) {
	ms := newMemStore(1)
	bp, err := New(ms, 2)
	require.NoError(t, err)

	t.Run("Unknown page", func(t *testing.T) {
		require.ErrorIs(t, bp.Unpin(99, false), errs.ErrUnknownPage)
	})

	t.Run("Underflow panics", func(t *testing.T) {
		_, err := bp.Get(1)
		require.NoError(t, err)
		require.Panics(t, func() {
			bp.Unpin(1, false) //nolint:errcheck,gosec
		})
	})

	t.Run("Dirty flag sticks", func(t *testing.T) {
		_, err := bp.Pin(1)
		require.NoError(t, err)
		require.NoError(t, bp.Unpin(1, true))
		require.True(t, bp.IsDirty(1))
	})
}

func TestPool_FlushPage(t *testing.T) {
	ms := newMemStore(1)
	bp, err := New(ms, 2)
	require.NoError(t, err)

	require.ErrorIs(t, bp.FlushPage(1), errs.ErrUnknownPage)

	_, err = bp.Pin(1)
	require.NoError(t, err)
	require.NoError(t, bp.Unpin(1, true))

	require.NoError(t, bp.FlushPage(1))
	require.False(t, bp.IsDirty(1))
	require.Equal(t, 1, ms.writeCount[1])

	// A clean page flushes as a no-op.
	require.NoError(t, bp.FlushPage(1))
	require.Equal(t, 1, ms.writeCount[1])
}

func TestPool_FlushAll(t *testing.T) {
	ms := newMemStore(1, 2, 3)
	bp, err := New(ms, 3)
	require.NoError(t, err)

	for id := uint64(1); id <= 3; id++ {
		_, err := bp.Pin(id)
		require.NoError(t, err)
		require.NoError(t, bp.Unpin(id, id != 2)) // 1 and 3 dirty
	}

	require.NoError(t, bp.FlushAll())
	require.False(t, bp.IsDirty(1))
	require.False(t, bp.IsDirty(3))
	require.Equal(t, 1, ms.writeCount[1])
	require.Equal(t, 0, ms.writeCount[2])
	require.Equal(t, 1, ms.writeCount[3])
}

func TestPool_FlushErrorLeavesPageDirty(t *testing.T) {
	ms := newMemStore(1)
	bp, err := New(ms, 2)
	require.NoError(t, err)

	_, err = bp.Pin(1)
	require.NoError(t, err)
	require.NoError(t, bp.Unpin(1, true))

	ms.writeErr = errors.New("disk full")
	require.Error(t, bp.FlushPage(1))
	require.True(t, bp.IsDirty(1), "a failed flush leaves the page dirty for retry")

	ms.writeErr = nil
	require.NoError(t, bp.FlushPage(1))
	require.False(t, bp.IsDirty(1))
}

func TestPool_ReadErrorNotCached(t *testing.T) {
	ms := newMemStore(1)
	bp, err := New(ms, 2)
	require.NoError(t, err)

	ms.readErr = fmt.Errorf("bad page: %w", errs.ErrChecksumMismatch)
	_, err = bp.Get(1)
	require.ErrorIs(t, err, errs.ErrChecksumMismatch)
	require.False(t, bp.IsResident(1), "a page that failed to load is never cached")

	ms.readErr = nil
	_, err = bp.Get(1)
	require.NoError(t, err)
}

func TestPool_Resize(t *testing.T) {
	ms := newMemStore(1, 2, 3, 4)
	bp, err := New(ms, 4)
	require.NoError(t, err)

	for id := uint64(1); id <= 4; id++ {
		pinUnpin(t, bp, id)
	}

	t.Run("Shrink evicts LRU pages", func(t *testing.T) {
		size, err := bp.Resize(2)
		require.NoError(t, err)
		require.Equal(t, 2, size)
		require.False(t, bp.IsResident(1))
		require.False(t, bp.IsResident(2))
		require.True(t, bp.IsResident(3))
		require.True(t, bp.IsResident(4))
		bp.ValidateConsistency()
	})

	t.Run("Pinned pages bound the shrink", func(t *testing.T) {
		_, err := bp.Pin(3)
		require.NoError(t, err)
		_, err = bp.Pin(4)
		require.NoError(t, err)

		size, err := bp.Resize(1)
		require.NoError(t, err)
		require.Equal(t, 2, size, "stops at the smallest reachable size")

		require.NoError(t, bp.Unpin(3, false))
		require.NoError(t, bp.Unpin(4, false))
	})
}

func TestPool_Clear(t *testing.T) {
	ms := newMemStore(1, 2, 3)
	bp, err := New(ms, 3)
	require.NoError(t, err)

	_, err = bp.Pin(1) // stays pinned
	require.NoError(t, err)

	_, err = bp.Pin(2)
	require.NoError(t, err)
	require.NoError(t, bp.Unpin(2, true))

	_, err = bp.Get(3)
	require.NoError(t, err)

	remaining, err := bp.Clear()
	require.NoError(t, err)
	require.Equal(t, 1, remaining, "pinned frames survive a clear")
	require.True(t, bp.IsResident(1))
	require.Equal(t, 1, ms.writeCount[2], "dirty pages flush before the drop")

	bp.ValidateConsistency()
}
