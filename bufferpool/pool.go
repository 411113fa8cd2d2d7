// Package bufferpool implements the bounded resident-page cache standing
// between the storage engine and the database file.
//
// The pool tracks, per resident page, a pin count (nonzero forbids
// eviction), a dirty flag (content diverges from disk and must be written
// back before eviction), and a position on the LRU chain. On a miss with a
// full pool the chain is walked from the tail; the first unpinned page is
// written back if dirty and evicted. When every frame is pinned the
// operation fails fast instead of blocking.
//
// Pin-count underflow and index disagreement are programming errors and
// panic; every other failure is a returned error.
package bufferpool

import (
	"errors"
	"fmt"

	"github.com/arloliu/rdbe/errs"
	"github.com/arloliu/rdbe/page"
)

// PageStore abstracts the database file: the pool reads missing pages
// through it and writes dirty pages back through it.
type PageStore interface {
	ReadPage(id uint64) (*page.Page, error)
	WritePage(p *page.Page) error
}

// lruNode is one link of the doubly-linked LRU chain. Detached nodes are
// recycled through a free list to avoid allocator churn.
type lruNode struct {
	prev, next *lruNode
	pageID     uint64
}

// frame is one resident page with its bookkeeping.
type frame struct {
	page     *page.Page
	node     *lruNode
	pinCount int
	dirty    bool
}

// Pool is a bounded page cache keyed by page id. It is not safe for
// concurrent use; the engine drives it from a single logical thread.
type Pool struct {
	store    PageStore
	frames   map[uint64]*frame
	head     *lruNode // most recently used
	tail     *lruNode // least recently used
	freeList *lruNode
	capacity int
}

// New creates a pool of the given capacity (at least 1 frame) backed by
// store.
func New(store PageStore, capacity int) (*Pool, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("pool capacity %d, minimum 1: %w", capacity, errs.ErrNotEnoughSpace)
	}

	return &Pool{
		store:    store,
		capacity: capacity,
		frames:   make(map[uint64]*frame, capacity),
	}, nil
}

// Capacity returns the maximum number of resident frames.
func (bp *Pool) Capacity() int {
	return bp.capacity
}

// Len returns the number of resident frames.
func (bp *Pool) Len() int {
	return len(bp.frames)
}

// IsResident reports whether the page is cached.
func (bp *Pool) IsResident(id uint64) bool {
	_, ok := bp.frames[id]
	return ok
}

// IsDirty reports whether the resident page has unwritten changes.
func (bp *Pool) IsDirty(id uint64) bool {
	fr, ok := bp.frames[id]
	return ok && fr.dirty
}

// PinCount returns the pin count of a resident page, or 0.
func (bp *Pool) PinCount(id uint64) int {
	fr, ok := bp.frames[id]
	if !ok {
		return 0
	}

	return fr.pinCount
}

// Get returns a read-only view of the page, fetching it from the store on a
// miss and promoting it to the front of the LRU chain.
//
// Fails with the store's error when the fetch fails (a corrupt page is
// never admitted to the cache), or ErrNoEvictablePage when the pool is full
// of pinned pages.
func (bp *Pool) Get(id uint64) (*page.Page, error) {
	fr, err := bp.fetch(id)
	if err != nil {
		return nil, err
	}

	return fr.page, nil
}

// Pin is Get plus a pin-count increment, returning a mutable view. A page
// with a nonzero pin count is never evicted. Every successful Pin must be
// paired with exactly one Unpin.
func (bp *Pool) Pin(id uint64) (*page.Page, error) {
	fr, err := bp.fetch(id)
	if err != nil {
		return nil, err
	}
	fr.pinCount++

	return fr.page, nil
}

// Unpin releases one pin. When dirty is true the page joins the dirty set.
// The LRU position is not touched. Fails with ErrUnknownPage when the page
// is not resident; unpinning below zero is a fatal programming error.
func (bp *Pool) Unpin(id uint64, dirty bool) error {
	fr, ok := bp.frames[id]
	if !ok {
		return fmt.Errorf("unpin page %d: %w", id, errs.ErrUnknownPage)
	}
	if fr.pinCount == 0 {
		panic(fmt.Sprintf("bufferpool: pin count underflow on page %d", id))
	}

	fr.pinCount--
	if dirty {
		fr.dirty = true
	}

	return nil
}

// Admit inserts a freshly allocated page as resident and dirty, evicting if
// necessary. The engine uses it after initializing a page the store has
// never seen, so the first flush writes the initialized image.
func (bp *Pool) Admit(p *page.Page) error {
	id := p.ID()
	if fr, ok := bp.frames[id]; ok {
		fr.page = p
		fr.dirty = true
		bp.moveToFront(fr.node)

		return nil
	}

	fr, err := bp.admit(id, p)
	if err != nil {
		return err
	}
	fr.dirty = true

	return nil
}

// fetch returns the resident frame for id, loading it on a miss.
func (bp *Pool) fetch(id uint64) (*frame, error) {
	if fr, ok := bp.frames[id]; ok {
		bp.moveToFront(fr.node)
		return fr, nil
	}

	p, err := bp.store.ReadPage(id)
	if err != nil {
		return nil, err
	}

	return bp.admit(id, p)
}

// admit installs p as a resident frame at the front of the chain, evicting
// the least recently used unpinned page when the pool is full.
func (bp *Pool) admit(id uint64, p *page.Page) (*frame, error) {
	if len(bp.frames) >= bp.capacity {
		if err := bp.evictOne(); err != nil {
			return nil, err
		}
	}

	fr := &frame{page: p, node: bp.pushFront(id)}
	bp.frames[id] = fr

	return fr, nil
}

// evictOne removes the least recently used unpinned page, writing it back
// first when dirty. Fails with ErrNoEvictablePage when every resident page
// is pinned.
func (bp *Pool) evictOne() error {
	for node := bp.tail; node != nil; node = node.prev {
		fr := bp.frames[node.pageID]
		if fr.pinCount > 0 {
			continue
		}

		if fr.dirty {
			if err := bp.store.WritePage(fr.page); err != nil {
				return fmt.Errorf("evict page %d: %w", node.pageID, err)
			}
		}

		bp.dropFrame(node.pageID, fr)

		return nil
	}

	return fmt.Errorf("buffer pool full: %w", errs.ErrNoEvictablePage)
}

// dropFrame removes a frame from every index.
func (bp *Pool) dropFrame(id uint64, fr *frame) {
	bp.unlink(fr.node)
	bp.recycle(fr.node)
	delete(bp.frames, id)
}

// FlushPage writes the page back through the store when dirty and clears
// the dirty flag. Fails with ErrUnknownPage when not resident. On a write
// error the page stays dirty for retry.
func (bp *Pool) FlushPage(id uint64) error {
	fr, ok := bp.frames[id]
	if !ok {
		return fmt.Errorf("flush page %d: %w", id, errs.ErrUnknownPage)
	}
	if !fr.dirty {
		return nil
	}

	if err := bp.store.WritePage(fr.page); err != nil {
		return fmt.Errorf("flush page %d: %w", id, err)
	}
	fr.dirty = false

	return nil
}

// FlushAll writes every dirty page back through the store. The first write
// error aborts the sweep, leaving the failed page and any unvisited pages
// dirty.
func (bp *Pool) FlushAll() error {
	for id, fr := range bp.frames {
		if !fr.dirty {
			continue
		}
		if err := bp.FlushPage(id); err != nil {
			return err
		}
	}

	return nil
}

// Resize changes the pool capacity. Shrinking evicts least-recently-used
// unpinned pages (dirty ones written back first) until the resident count
// fits; when pinned pages prevent reaching the target the pool stops at the
// smallest reachable size. A write-back failure stops the shrink and is
// returned, leaving that page resident and dirty. The resident count after
// resizing is returned.
func (bp *Pool) Resize(newCapacity int) (int, error) {
	if newCapacity < 1 {
		return len(bp.frames), fmt.Errorf("pool capacity %d, minimum 1: %w", newCapacity, errs.ErrNotEnoughSpace)
	}

	bp.capacity = newCapacity
	for len(bp.frames) > bp.capacity {
		if err := bp.evictOne(); err != nil {
			if errors.Is(err, errs.ErrNoEvictablePage) {
				break
			}

			return len(bp.frames), err
		}
	}

	return len(bp.frames), nil
}

// Clear flushes all dirty pages and drops every unpinned frame. Pinned
// frames remain resident; the number of frames left is returned so callers
// can detect a partial clear.
func (bp *Pool) Clear() (int, error) {
	if err := bp.FlushAll(); err != nil {
		return len(bp.frames), err
	}

	node := bp.tail
	for node != nil {
		prev := node.prev
		fr := bp.frames[node.pageID]
		if fr.pinCount == 0 {
			bp.dropFrame(node.pageID, fr)
		}
		node = prev
	}

	return len(bp.frames), nil
}

// ValidateConsistency recomputes the pool's indices and panics on any
// disagreement: a chain node without a frame, a frame off the chain, a
// resident count above capacity, or a negative pin count. Exposed for
// tests; a violation is a programming error, not a recoverable condition.
func (bp *Pool) ValidateConsistency() {
	if len(bp.frames) > bp.capacity {
		panic(fmt.Sprintf("bufferpool: %d resident frames exceed capacity %d", len(bp.frames), bp.capacity))
	}

	chainLen := 0
	seen := make(map[uint64]bool, len(bp.frames))
	for node := bp.head; node != nil; node = node.next {
		if seen[node.pageID] {
			panic(fmt.Sprintf("bufferpool: page %d appears twice on LRU chain", node.pageID))
		}
		seen[node.pageID] = true

		fr, ok := bp.frames[node.pageID]
		if !ok {
			panic(fmt.Sprintf("bufferpool: page %d on LRU chain but not resident", node.pageID))
		}
		if fr.node != node {
			panic(fmt.Sprintf("bufferpool: page %d frame points at a different node", node.pageID))
		}
		if fr.pinCount < 0 {
			panic(fmt.Sprintf("bufferpool: page %d has negative pin count", node.pageID))
		}
		chainLen++
	}

	if chainLen != len(bp.frames) {
		panic(fmt.Sprintf("bufferpool: LRU chain holds %d pages, map holds %d", chainLen, len(bp.frames)))
	}
}

// lruOrder returns the resident page ids from most to least recently used.
func (bp *Pool) lruOrder() []uint64 {
	order := make([]uint64, 0, len(bp.frames))
	for node := bp.head; node != nil; node = node.next {
		order = append(order, node.pageID)
	}

	return order
}
