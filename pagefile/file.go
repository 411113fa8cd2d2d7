// Package pagefile owns the single database file: the 128-byte header
// prefix, the contiguous run of 8192-byte pages behind it, the exclusive
// advisory lock, and page-granular read/write/sync.
//
// Page N lives at byte offset 128 + N*8192; pages are numbered from 0.
// Nothing outside this file is persisted.
package pagefile

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/renameio"

	"github.com/arloliu/rdbe/errs"
	"github.com/arloliu/rdbe/format"
	"github.com/arloliu/rdbe/page"
)

// File is an open database file holding the exclusive advisory lock.
type File struct {
	f      *os.File
	path   string
	header Header
}

// Create atomically initializes a new database file at path with a valid
// header and zero data pages, then opens it. The file is published with a
// rename so a crash mid-create never leaves a torn header behind. Fails if
// path already exists.
func Create(path string) (*File, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("create %s: %w", path, os.ErrExist)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	pending, err := renameio.TempFile("", path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	defer pending.Cleanup() //nolint:errcheck

	if _, err := pending.Write(NewHeader().Bytes()); err != nil {
		return nil, fmt.Errorf("create %s: write header: %w", path, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	return Open(path)
}

// Open opens an existing database file, takes the exclusive advisory lock,
// and validates the header. Fails with ErrDatabaseLocked when another
// process holds the lock, ErrIncompatibleVersion or ErrCorrupt on header
// problems.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := lockExclusive(f); err != nil {
		f.Close() //nolint:errcheck,gosec
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	pf := &File{f: f, path: path}
	if err := pf.readHeader(); err != nil {
		unlock(f)  //nolint:errcheck,gosec
		f.Close()  //nolint:errcheck,gosec

		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return pf, nil
}

func (pf *File) readHeader() error {
	buf := make([]byte, HeaderSize)
	if _, err := pf.f.ReadAt(buf, 0); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("truncated header: %w", errs.ErrCorrupt)
		}

		return err
	}

	header, err := ParseHeader(buf)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidMagicNumber) {
			return fmt.Errorf("%w: %w", errs.ErrCorrupt, err)
		}

		return err
	}

	info, err := pf.f.Stat()
	if err != nil {
		return err
	}
	expected := int64(HeaderSize) + int64(header.PageCount)*page.Size //nolint:gosec
	if info.Size() != expected {
		return fmt.Errorf("file size %d, header implies %d: %w", info.Size(), expected, errs.ErrCorrupt)
	}

	pf.header = header

	return nil
}

// writeHeader persists the in-memory header to offset 0.
func (pf *File) writeHeader() error {
	if _, err := pf.f.WriteAt(pf.header.Bytes(), 0); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	return nil
}

// Header returns a copy of the current file header.
func (pf *File) Header() Header {
	return pf.header
}

// Path returns the database file path.
func (pf *File) Path() string {
	return pf.path
}

// PageCount returns the number of allocated pages.
func (pf *File) PageCount() uint64 {
	return pf.header.PageCount
}

// pageOffset returns the byte offset of page id.
func pageOffset(id uint64) int64 {
	return int64(HeaderSize) + int64(id)*page.Size //nolint:gosec
}

// AllocatePage extends the file by one page of the given type and returns
// its id. An empty initialized frame is written immediately so the file
// never holds an unreadable page, even if the caller's content is only
// flushed later.
func (pf *File) AllocatePage(pageType format.PageType) (uint64, error) {
	if !pageType.IsValid() {
		return 0, fmt.Errorf("allocate page type 0x%02x: %w", uint8(pageType), errs.ErrInvalidPageType)
	}

	id := pf.header.PageCount

	empty := page.NewPage(id, pageType)
	if _, err := pf.f.WriteAt(empty.Bytes(), pageOffset(id)); err != nil {
		return 0, fmt.Errorf("allocate page %d: %w", id, err)
	}

	pf.header.PageCount++
	if err := pf.writeHeader(); err != nil {
		pf.header.PageCount--
		return 0, err
	}

	return id, nil
}

// ReadPage reads and validates the page with the given id. A checksum
// mismatch is reported as corruption; the page is not returned.
func (pf *File) ReadPage(id uint64) (*page.Page, error) {
	if id >= pf.header.PageCount {
		return nil, fmt.Errorf("read page %d of %d: %w", id, pf.header.PageCount, errs.ErrCorrupt)
	}

	buf := make([]byte, page.Size)
	if _, err := pf.f.ReadAt(buf, pageOffset(id)); err != nil {
		return nil, fmt.Errorf("read page %d: %w", id, err)
	}

	p, err := page.FromBytes(buf)
	if err != nil {
		return nil, fmt.Errorf("read page %d: %w", id, err)
	}
	if !p.VerifyChecksum() {
		return nil, fmt.Errorf("read page %d: %w: %w", id, errs.ErrCorrupt, errs.ErrChecksumMismatch)
	}

	return p, nil
}

// WritePage writes the page back to its slot, recomputing the checksum
// first.
func (pf *File) WritePage(p *page.Page) error {
	id := p.ID()
	if id >= pf.header.PageCount {
		return fmt.Errorf("write page %d of %d: %w", id, pf.header.PageCount, errs.ErrCorrupt)
	}

	p.UpdateChecksum()
	if _, err := pf.f.WriteAt(p.Bytes(), pageOffset(id)); err != nil {
		return fmt.Errorf("write page %d: %w", id, err)
	}

	return nil
}

// Flush forces all previously written pages and the header to stable
// storage.
func (pf *File) Flush() error {
	if err := pf.f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", pf.path, err)
	}

	return nil
}

// Close flushes, releases the advisory lock, and closes the handle.
func (pf *File) Close() error {
	if pf.f == nil {
		return nil
	}

	flushErr := pf.Flush()
	unlock(pf.f) //nolint:errcheck,gosec

	closeErr := pf.f.Close()
	pf.f = nil

	if flushErr != nil {
		return flushErr
	}

	return closeErr
}
