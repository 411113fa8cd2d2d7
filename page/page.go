// Package page implements the fixed 8 KiB slotted page: a 16-byte header,
// a slot directory growing downward from the header, and a record heap
// growing upward from the end of the page.
//
// Header layout (all little-endian):
//
//	bytes 0-7:   page id (u64)
//	bytes 8-11:  checksum (u32, low half of xxHash64 over bytes 16-8191)
//	bytes 12-13: free space (u16, logical)
//	byte  14:    page type
//	byte  15:    reserved
//
// Slot directory entries are 4 bytes: offset (u16) + length (u16), both
// relative to the page start. A length of 0 denotes a tombstone; tombstones
// retain a non-zero offset so the directory extent and the heap boundary
// stay derivable from the raw bytes (an all-zero entry marks the end of the
// directory). Slot indices are stable for the life of the page: compaction
// rewrites offsets in place and trims only trailing tombstones.
//
// Free space is logical: header free = 8176 − 4·slots − Σ live lengths.
// Contiguous room between directory and heap can be smaller; InsertRecord
// compacts and retries once when logical space suffices but contiguous room
// does not.
package page

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/arloliu/rdbe/endian"
	"github.com/arloliu/rdbe/errs"
	"github.com/arloliu/rdbe/format"
	"github.com/arloliu/rdbe/internal/pool"
)

const (
	// Size is the fixed byte size of every page.
	Size = 8192
	// HeaderSize is the byte size of the page header.
	HeaderSize = 16
	// SlotSize is the byte size of one slot directory entry.
	SlotSize = 4
	// PayloadSize is the checksummed region below the header.
	PayloadSize = Size - HeaderSize
	// MaxRecordSize is the largest record a fresh page accepts (one slot
	// entry plus payload must fit the payload region).
	MaxRecordSize = PayloadSize - SlotSize
)

// Header field offsets.
const (
	idOffset       = 0
	checksumOffset = 8
	freeOffset     = 12
	typeOffset     = 14
)

// Page is an 8192-byte frame plus derived slot accounting. The derived
// fields are reconstructed from the raw bytes on load and kept current by
// every mutating operation.
type Page struct {
	data      []byte
	slotCount int
	heapStart int
	liveBytes int
}

// NewPage creates a zeroed page with the given id and type and a full
// payload of free space.
func NewPage(pageID uint64, pageType format.PageType) *Page {
	p := &Page{
		data:      make([]byte, Size),
		heapStart: Size,
	}

	engine := endian.GetLittleEndianEngine()
	engine.PutUint64(p.data[idOffset:], pageID)
	p.data[typeOffset] = byte(pageType)

	p.syncHeader()

	return p
}

// FromBytes reconstructs a page from a raw 8192-byte frame, taking
// ownership of data. The slot directory extent is derived by scanning;
// structural invariants are validated and ErrCorrupt returned on violation.
// Checksum verification is the caller's concern (see VerifyChecksum).
func FromBytes(data []byte) (*Page, error) {
	if len(data) != Size {
		return nil, fmt.Errorf("page frame must be %d bytes, got %d: %w", Size, len(data), errs.ErrCorrupt)
	}

	p := &Page{data: data, heapStart: Size}
	if !format.PageType(p.data[typeOffset]).IsValid() {
		return nil, fmt.Errorf("page type 0x%02x: %w", p.data[typeOffset], errs.ErrInvalidPageType)
	}

	p.deriveSlots()

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}

// deriveSlots reconstructs slotCount, heapStart and liveBytes by walking
// the directory. The gap between directory and heap is kept zeroed by every
// mutating operation and tombstones keep their offsets, so the first
// all-zero entry marks the directory end and the minimum offset over all
// entries is the heap boundary. When the gap is too small to hold a full
// zero entry, the boundary discovered so far terminates the walk instead.
func (p *Page) deriveSlots() {
	engine := endian.GetLittleEndianEngine()

	p.slotCount = 0
	p.heapStart = Size
	p.liveBytes = 0

	for i := 0; HeaderSize+SlotSize*(i+1) <= p.heapStart; i++ {
		base := HeaderSize + SlotSize*i
		offset := int(engine.Uint16(p.data[base:]))
		length := int(engine.Uint16(p.data[base+2:]))
		if offset == 0 && length == 0 {
			break
		}

		p.slotCount = i + 1
		p.liveBytes += length
		if offset < p.heapStart {
			p.heapStart = offset
		}
	}
}

// ID returns the page id from the header.
func (p *Page) ID() uint64 {
	return endian.GetLittleEndianEngine().Uint64(p.data[idOffset:])
}

// Type returns the page type from the header.
func (p *Page) Type() format.PageType {
	return format.PageType(p.data[typeOffset])
}

// FreeSpace returns the logical free space recorded in the header.
func (p *Page) FreeSpace() int {
	return int(endian.GetLittleEndianEngine().Uint16(p.data[freeOffset:]))
}

// SlotCount returns the number of slot directory entries, tombstones
// included.
func (p *Page) SlotCount() int {
	return p.slotCount
}

// Bytes returns the full 8192-byte frame backing the page.
func (p *Page) Bytes() []byte {
	return p.data
}

// slot returns the directory entry for index i.
func (p *Page) slot(i int) (offset, length int) {
	engine := endian.GetLittleEndianEngine()
	base := HeaderSize + SlotSize*i

	return int(engine.Uint16(p.data[base:])), int(engine.Uint16(p.data[base+2:]))
}

func (p *Page) setSlot(i, offset, length int) {
	engine := endian.GetLittleEndianEngine()
	base := HeaderSize + SlotSize*i
	engine.PutUint16(p.data[base:], uint16(offset)) //nolint:gosec
	engine.PutUint16(p.data[base+2:], uint16(length)) //nolint:gosec
}

func (p *Page) dirEnd() int {
	return HeaderSize + SlotSize*p.slotCount
}

// computedFree returns the logical free space implied by the directory.
func (p *Page) computedFree() int {
	return PayloadSize - SlotSize*p.slotCount - p.liveBytes
}

// syncHeader rewrites the free-space field and the checksum after a
// mutation.
func (p *Page) syncHeader() {
	engine := endian.GetLittleEndianEngine()
	engine.PutUint16(p.data[freeOffset:], uint16(p.computedFree())) //nolint:gosec
	p.UpdateChecksum()
}

// Checksum returns the stored checksum field.
func (p *Page) Checksum() uint32 {
	return endian.GetLittleEndianEngine().Uint32(p.data[checksumOffset:])
}

// UpdateChecksum recomputes the payload checksum and stores it in the
// header.
func (p *Page) UpdateChecksum() {
	engine := endian.GetLittleEndianEngine()
	engine.PutUint32(p.data[checksumOffset:], p.computeChecksum())
}

// VerifyChecksum recomputes the payload checksum and compares it with the
// stored field.
func (p *Page) VerifyChecksum() bool {
	return p.Checksum() == p.computeChecksum()
}

func (p *Page) computeChecksum() uint32 {
	return uint32(xxhash.Sum64(p.data[HeaderSize:])) //nolint:gosec
}

// InsertRecord writes record into the heap and returns the slot index used,
// reusing the lowest-indexed tombstone before growing the directory.
//
// Fails with ErrInvalidPageType on non-data pages, ErrInvalidLength on an
// empty record, and ErrNotEnoughSpace when record length + one slot entry
// exceeds the logical free space. When logical space suffices but the gap
// between directory and heap does not, the page is compacted and the insert
// retried once.
func (p *Page) InsertRecord(record []byte) (uint32, error) {
	if p.Type() != format.PageTypeData {
		return 0, fmt.Errorf("cannot insert into %s page: %w", p.Type(), errs.ErrInvalidPageType)
	}
	if len(record) == 0 {
		return 0, fmt.Errorf("zero-length record: %w", errs.ErrInvalidLength)
	}
	if len(record)+SlotSize > p.FreeSpace() {
		return 0, fmt.Errorf("record of %d bytes does not fit %d free: %w",
			len(record), p.FreeSpace(), errs.ErrNotEnoughSpace)
	}

	slotID, reuse := p.findTombstone()
	slotCost := SlotSize
	if reuse {
		slotCost = 0
	}

	if p.heapStart-p.dirEnd() < len(record)+slotCost {
		p.Compact()
		// A tombstone may have been trimmed from the directory tail.
		slotID, reuse = p.findTombstone()
		slotCost = SlotSize
		if reuse {
			slotCost = 0
		}
		if p.heapStart-p.dirEnd() < len(record)+slotCost {
			return 0, fmt.Errorf("page fragmented beyond repair: %w", errs.ErrNotEnoughSpace)
		}
	}

	p.heapStart -= len(record)
	copy(p.data[p.heapStart:], record)

	p.setSlot(slotID, p.heapStart, len(record))
	if !reuse {
		p.slotCount++
	}
	p.liveBytes += len(record)

	p.syncHeader()

	return uint32(slotID), nil //nolint:gosec
}

// findTombstone returns the lowest-indexed tombstone slot, or the next
// fresh index when none exists.
func (p *Page) findTombstone() (int, bool) {
	for i := 0; i < p.slotCount; i++ {
		if _, length := p.slot(i); length == 0 {
			return i, true
		}
	}

	return p.slotCount, false
}

// ReadRecord returns the record bytes stored at slotID. The returned slice
// aliases the page frame and is valid only until the next mutation.
//
// Fails with ErrRecordNotFound when the slot index is beyond the directory,
// the slot is a tombstone, or the entry references bytes outside the heap.
func (p *Page) ReadRecord(slotID uint32) ([]byte, error) {
	if int(slotID) >= p.slotCount {
		return nil, fmt.Errorf("slot %d of %d: %w", slotID, p.slotCount, errs.ErrRecordNotFound)
	}

	offset, length := p.slot(int(slotID))
	if length == 0 {
		return nil, fmt.Errorf("slot %d is a tombstone: %w", slotID, errs.ErrRecordNotFound)
	}
	if offset < p.heapStart || offset+length > Size {
		return nil, fmt.Errorf("slot %d references bytes outside the heap: %w", slotID, errs.ErrRecordNotFound)
	}

	return p.data[offset : offset+length], nil
}

// UpdateRecordInPlace overwrites the record at slotID with a payload no
// longer than the current one, shrinking the slot length. Larger payloads
// fail with ErrNotEnoughSpace; the caller then inserts a new record and
// deletes the old one.
func (p *Page) UpdateRecordInPlace(slotID uint32, record []byte) error {
	if p.Type() != format.PageTypeData {
		return fmt.Errorf("cannot update %s page: %w", p.Type(), errs.ErrInvalidPageType)
	}
	if int(slotID) >= p.slotCount {
		return fmt.Errorf("slot %d of %d: %w", slotID, p.slotCount, errs.ErrSlotOutOfRange)
	}
	if len(record) == 0 {
		return fmt.Errorf("zero-length record: %w", errs.ErrInvalidLength)
	}

	offset, length := p.slot(int(slotID))
	if length == 0 {
		return fmt.Errorf("slot %d is a tombstone: %w", slotID, errs.ErrRecordNotFound)
	}
	if len(record) > length {
		return fmt.Errorf("record grew from %d to %d bytes: %w", length, len(record), errs.ErrNotEnoughSpace)
	}

	copy(p.data[offset:], record)
	p.setSlot(int(slotID), offset, len(record))
	p.liveBytes -= length - len(record)

	p.syncHeader()

	return nil
}

// DeleteRecord marks the slot as a tombstone by zeroing its length. The
// offset is retained so the directory extent stays derivable; the heap
// bytes are not reclaimed until the next compaction. Fails with
// ErrSlotOutOfRange beyond the directory and ErrRecordNotFound on an
// existing tombstone.
func (p *Page) DeleteRecord(slotID uint32) error {
	if int(slotID) >= p.slotCount {
		return fmt.Errorf("slot %d of %d: %w", slotID, p.slotCount, errs.ErrSlotOutOfRange)
	}

	offset, length := p.slot(int(slotID))
	if length == 0 {
		return fmt.Errorf("slot %d already deleted: %w", slotID, errs.ErrRecordNotFound)
	}

	p.setSlot(int(slotID), offset, 0)
	p.liveBytes -= length

	p.syncHeader()

	return nil
}

// Compact rewrites live records contiguously against the high end of the
// page, updates their slot offsets in place, trims trailing tombstones from
// the directory tail, and zeroes the freed region. Interior tombstones keep
// their indices so existing handles stay valid. Compact is idempotent.
func (p *Page) Compact() {
	scratch := pool.GetDocBuffer()
	defer pool.PutDocBuffer(scratch)
	scratch.Grow(Size)
	buf := scratch.B[:Size]

	newHeap := Size
	lastLive := -1

	type move struct{ slot, newOffset, length int }
	moves := make([]move, 0, p.slotCount)

	for i := 0; i < p.slotCount; i++ {
		offset, length := p.slot(i)
		if length == 0 {
			continue
		}

		newHeap -= length
		copy(buf[newHeap:], p.data[offset:offset+length])
		moves = append(moves, move{slot: i, newOffset: newHeap, length: length})
		lastLive = i
	}

	copy(p.data[newHeap:], buf[newHeap:])
	for _, m := range moves {
		p.setSlot(m.slot, m.newOffset, m.length)
	}

	// Trim trailing tombstones; interior tombstones keep their indices,
	// with offsets normalized to the new heap boundary.
	p.slotCount = lastLive + 1
	p.heapStart = newHeap
	for i := 0; i < p.slotCount; i++ {
		if _, length := p.slot(i); length == 0 {
			p.setSlot(i, newHeap, 0)
		}
	}

	// Zero everything between the directory end and the heap so the
	// on-disk image stays scan-derivable.
	clear(p.data[p.dirEnd():p.heapStart])

	p.syncHeader()
}

// Validate checks the structural invariants: directory below heap, header
// free-space agreement, and every live slot referencing bytes inside the
// heap region. It does not verify the checksum.
func (p *Page) Validate() error {
	if p.dirEnd() > p.heapStart {
		return fmt.Errorf("slot directory overlaps heap: %w", errs.ErrCorrupt)
	}
	if p.FreeSpace() != p.computedFree() {
		return fmt.Errorf("header free space %d, directory implies %d: %w",
			p.FreeSpace(), p.computedFree(), errs.ErrCorrupt)
	}

	for i := 0; i < p.slotCount; i++ {
		offset, length := p.slot(i)
		if offset == 0 && length == 0 {
			continue
		}
		if offset < p.heapStart || offset+length > Size {
			return fmt.Errorf("slot %d outside heap region: %w", i, errs.ErrCorrupt)
		}
	}

	return nil
}
